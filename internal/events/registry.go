// Package events holds the static catalog of domain events webhooks may
// subscribe to. The catalog is fixed at compile time; webhook creation
// rejects subscriptions to names that are not listed here.
package events

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEvent is returned when a name is not in the catalog.
var ErrUnknownEvent = errors.New("unknown event")

// Definition describes one domain event: its name, the entity and action
// it derives from, and the payload fields producers are expected to send.
type Definition struct {
	Name        string   `json:"name"`
	Entity      string   `json:"entity"`
	Action      string   `json:"action"`
	Fields      []string `json:"fields"`
	Description string   `json:"description"`
}

var catalog = map[string]Definition{}

func register(d Definition) {
	catalog[d.Name] = d
}

func init() {
	contact := []string{"id", "first_name", "last_name", "email", "phone", "company", "owner_id", "tags"}
	lead := []string{"id", "name", "email", "company", "source", "status", "score", "owner_id"}
	opportunity := []string{"id", "name", "contact_id", "amount", "currency", "stage", "close_date", "owner_id"}
	task := []string{"id", "title", "due_date", "priority", "status", "assignee_id", "related_to"}
	email := []string{"id", "contact_id", "subject", "direction", "thread_id", "owner_id"}
	call := []string{"id", "contact_id", "duration_seconds", "outcome", "notes", "owner_id"}

	register(Definition{Name: "contact.created", Entity: "contact", Action: "created", Fields: contact, Description: "A contact record was created"})
	register(Definition{Name: "contact.updated", Entity: "contact", Action: "updated", Fields: contact, Description: "A contact record was updated"})
	register(Definition{Name: "contact.deleted", Entity: "contact", Action: "deleted", Fields: []string{"id"}, Description: "A contact record was deleted"})

	register(Definition{Name: "lead.created", Entity: "lead", Action: "created", Fields: lead, Description: "A lead was captured"})
	register(Definition{Name: "lead.updated", Entity: "lead", Action: "updated", Fields: lead, Description: "A lead was updated"})
	register(Definition{Name: "lead.converted", Entity: "lead", Action: "converted", Fields: append(lead, "contact_id", "opportunity_id"), Description: "A lead was converted to a contact"})
	register(Definition{Name: "lead.deleted", Entity: "lead", Action: "deleted", Fields: []string{"id"}, Description: "A lead was deleted"})

	register(Definition{Name: "opportunity.created", Entity: "opportunity", Action: "created", Fields: opportunity, Description: "An opportunity was opened"})
	register(Definition{Name: "opportunity.updated", Entity: "opportunity", Action: "updated", Fields: opportunity, Description: "An opportunity was updated"})
	register(Definition{Name: "opportunity.stage_changed", Entity: "opportunity", Action: "stage_changed", Fields: append(opportunity, "previous_stage"), Description: "An opportunity moved to a new pipeline stage"})
	register(Definition{Name: "opportunity.won", Entity: "opportunity", Action: "won", Fields: opportunity, Description: "An opportunity was closed as won"})
	register(Definition{Name: "opportunity.lost", Entity: "opportunity", Action: "lost", Fields: append(opportunity, "lost_reason"), Description: "An opportunity was closed as lost"})

	register(Definition{Name: "task.created", Entity: "task", Action: "created", Fields: task, Description: "A task was created"})
	register(Definition{Name: "task.updated", Entity: "task", Action: "updated", Fields: task, Description: "A task was updated"})
	register(Definition{Name: "task.completed", Entity: "task", Action: "completed", Fields: task, Description: "A task was marked complete"})

	register(Definition{Name: "email.sent", Entity: "email", Action: "sent", Fields: email, Description: "An email was sent to a contact"})
	register(Definition{Name: "email.received", Entity: "email", Action: "received", Fields: email, Description: "An email was received from a contact"})

	register(Definition{Name: "call.logged", Entity: "call", Action: "logged", Fields: call, Description: "A call was logged against a contact"})

	// Synthetic event used by the management surface to exercise a webhook.
	register(Definition{Name: "webhook.test", Entity: "webhook", Action: "test", Fields: []string{"webhook_id", "test_id"}, Description: "Synthetic test delivery"})
}

// Lookup returns the definition for name.
func Lookup(name string) (Definition, error) {
	d, ok := catalog[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return d, nil
}

// All returns every definition, sorted by name.
func All() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, d := range catalog {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Validate checks every name against the catalog. Used at webhook
// create/update time so bad subscriptions never reach dispatch.
func Validate(names []string) error {
	for _, n := range names {
		if _, ok := catalog[n]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEvent, n)
		}
	}
	return nil
}

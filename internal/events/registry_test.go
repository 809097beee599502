package events

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	d, err := Lookup("contact.created")
	require.NoError(t, err)
	assert.Equal(t, "contact", d.Entity)
	assert.Equal(t, "created", d.Action)
	assert.Contains(t, d.Fields, "email")
}

func TestLookup_UnknownEvent(t *testing.T) {
	_, err := Lookup("invoice.paid")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestAll_SortedAndComplete(t *testing.T) {
	defs := All()
	require.NotEmpty(t, defs)

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "lead.converted")
	assert.Contains(t, names, "opportunity.won")
	assert.Contains(t, names, "webhook.test")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]string{"contact.created", "task.completed"}))
	assert.NoError(t, Validate(nil))

	err := Validate([]string{"contact.created", "contact.archived"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

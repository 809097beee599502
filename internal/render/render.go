// Package render turns an event payload into an outbound request body.
package render

import (
	"bytes"
	"encoding/json"
	"text/template"
)

// Renderer renders a user template with the payload as context.
// Implementations must be safe for concurrent use.
type Renderer interface {
	Render(tmpl string, payload map[string]interface{}) (string, error)
}

// TemplateRenderer renders with text/template. Templates reference
// payload keys directly, e.g. {{.data.company}}.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

func (t *TemplateRenderer) Render(tmpl string, payload map[string]interface{}) (string, error) {
	parsed, err := template.New("payload").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Body produces the request body for a dispatch. A configured template is
// rendered with the payload; any rendering failure falls open to the raw
// JSON encoding, never to an error surfaced to the dispatcher.
func Body(r Renderer, tmpl string, payload map[string]interface{}) []byte {
	if tmpl != "" && r != nil {
		if out, err := r.Render(tmpl, payload); err == nil {
			return []byte(out)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

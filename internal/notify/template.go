package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultTemplate renders a short plain-text summary of a Message.
const DefaultTemplate = `[IREC] certificate {{.Kind}} for request {{.RequestID}}
Device: {{.DeviceID}}
{{- if .Owner}}
Owner: {{.Owner}}
{{- end}}
{{- if .CertificateID}}
Certificate: {{.CertificateID}}
Tx: {{.TxHash}}
{{- end}}
{{- if .Error}}
Error: {{.Error}}
{{- end}}
At: {{.OccurredAt.UTC.Format "2006-01-02T15:04:05Z07:00"}}`

// Template renders notification content from a Message.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses text, falling back to DefaultTemplate when empty.
func NewTemplate(text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	parsed, err := template.New("issuance-notification").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("notify: parse template: %w", err)
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to msg.
func (t *Template) Render(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("notify: render: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

package notify

import (
	"fmt"
	"strings"
	"text/template"
)

type Template string

const (
	TemplateRequestReceived     Template = "request-received"
	TemplateApproved            Template = "approved"
	TemplateRejected            Template = "rejected"
	TemplateRescheduleProposed  Template = "reschedule-proposed"
	TemplateRescheduleConfirmed Template = "reschedule-confirmed"
	TemplateCancelled           Template = "cancelled"
)

// Data feeds the templates. Times are preformatted in the listing's time zone.
type Data struct {
	RecipientName  string `json:"recipient_name,omitempty"`
	ListingTitle   string `json:"listing_title"`
	ListingAddress string `json:"listing_address,omitempty"`
	ScheduledAt    string `json:"scheduled_at"`
	ProposedAt     string `json:"proposed_at,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Note           string `json:"note,omitempty"`
	RequesterName  string `json:"requester_name,omitempty"`
	ContactName    string `json:"contact_name,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
	ContactPhone   string `json:"contact_phone,omitempty"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[Template]compiled{
	TemplateRequestReceived: mustCompile(
		"New viewing request for {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

{{with .RequesterName}}{{.}}{{else}}A visitor{{end}} asked to view {{.ListingTitle}} on {{.ScheduledAt}}.
{{- with .Note}}

Note: {{.}}
{{- end}}

Approve, reject or propose another time from your dashboard.
`),
	TemplateApproved: mustCompile(
		"Viewing confirmed: {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

Your viewing of {{.ListingTitle}} on {{.ScheduledAt}} is confirmed.
{{- with .ListingAddress}}
Address: {{.}}
{{- end}}

Owner contact:
{{- with .ContactName}}
  {{.}}
{{- end}}
{{- with .ContactEmail}}
  {{.}}
{{- end}}
{{- with .ContactPhone}}
  {{.}}
{{- end}}

A calendar invite is attached.
`),
	TemplateRejected: mustCompile(
		"Viewing request declined: {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

Your request to view {{.ListingTitle}} on {{.ScheduledAt}} was declined.
{{- with .Reason}}

Reason: {{.}}
{{- end}}
`),
	TemplateRescheduleProposed: mustCompile(
		"New time proposed for {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

The owner of {{.ListingTitle}} cannot meet on {{.ScheduledAt}} and proposed {{.ProposedAt}} instead.
{{- with .Reason}}

Message: {{.}}
{{- end}}

Confirm the new time or cancel the request from your dashboard.
`),
	TemplateRescheduleConfirmed: mustCompile(
		"Rescheduled viewing confirmed: {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

{{with .RequesterName}}{{.}}{{else}}The visitor{{end}} confirmed the viewing of {{.ListingTitle}} on {{.ScheduledAt}}.

A calendar invite is attached.
`),
	TemplateCancelled: mustCompile(
		"Viewing cancelled: {{.ListingTitle}}",
		`Hello{{with .RecipientName}} {{.}}{{end}},

{{with .RequesterName}}{{.}}{{else}}The visitor{{end}} cancelled the viewing of {{.ListingTitle}} that was scheduled for {{.ScheduledAt}}.
`),
}

func mustCompile(subject, body string) compiled {
	return compiled{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Render returns the subject line and plain-text body for tpl.
func Render(tpl Template, data Data) (string, string, error) {
	c, ok := templates[tpl]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", tpl)
	}
	var subject, body strings.Builder
	if err := c.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", tpl, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", tpl, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

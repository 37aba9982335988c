package notify

import "context"

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type Message struct {
	ID          string       `json:"id"`
	To          string       `json:"to"`
	Template    Template     `json:"template"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Data        Data         `json:"data"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

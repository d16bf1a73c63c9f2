// Package transport provides the delivery transports used by the engine:
// a per-user SMTP transport, a bulk provider API transport, and a
// non-delivering sandbox transport. All transports expose the same Send
// contract so callers stay transport-agnostic.
package transport

import "context"

// Message is one outbound email.
type Message struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Result is the normalized outcome of a successful send.
type Result struct {
	MessageID  string `json:"message_id"`
	Provider   string `json:"provider"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// Transport delivers a single message.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) (*Result, error)
}

// SendError represents an expected delivery failure (rejected recipient,
// bad credentials, timeout). Temporary marks faults worth retrying out of
// band; the engine records either kind as a bounce.
type SendError struct {
	Temporary bool
	Message   string
}

func (e *SendError) Error() string {
	return e.Message
}

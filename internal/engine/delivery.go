package engine

import (
	"context"
	"fmt"

	"github.com/mailtide/mailtide/internal/models"
	"github.com/mailtide/mailtide/internal/transport"
)

// DeliveryResult is the normalized outcome of one delivery attempt.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id,omitempty"`
	Provider   string `json:"provider,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Deliver sends one rendered email to a subscriber through the transport
// resolved for the user. An expected delivery failure is reported in the
// result, never as a Go error; only transport resolution faults propagate.
func (e *Engine) Deliver(ctx context.Context, sub *models.Subscriber, tmpl *models.Template, user *models.User) (*DeliveryResult, error) {
	tr, err := e.transports.Resolve(user)
	if err != nil {
		return nil, fmt.Errorf("resolve transport: %w", err)
	}
	return e.deliverWith(ctx, tr, sub, tmpl, user), nil
}

// deliverWith renders and sends through an already-resolved transport.
func (e *Engine) deliverWith(ctx context.Context, tr transport.Transport, sub *models.Subscriber, tmpl *models.Template, user *models.User) *DeliveryResult {
	rendered := e.renderer.Render(tmpl, sub)

	msg := &transport.Message{
		From:    transport.FormatAddress(e.fromEmail(user), e.senderName(user)),
		To:      sub.Email,
		ReplyTo: e.replyTo(user),
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	}

	res, err := tr.Send(ctx, msg)
	if err != nil {
		return &DeliveryResult{Success: false, Provider: tr.Name(), Error: err.Error()}
	}
	return &DeliveryResult{
		Success:    true,
		MessageID:  res.MessageID,
		Provider:   res.Provider,
		PreviewURL: res.PreviewURL,
	}
}

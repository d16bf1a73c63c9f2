package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/mailtide/mailtide/internal/models"
)

// SMTPTransport delivers through a user's own SMTP credentials. A new
// connection is made per send; campaign batches are sequential so there is
// no connection churn worth pooling for.
type SMTPTransport struct {
	settings models.SMTPSettings
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSMTPTransport creates a transport from user SMTP settings.
func NewSMTPTransport(settings models.SMTPSettings, logger *slog.Logger) *SMTPTransport {
	return &SMTPTransport{
		settings: settings,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send delivers one message. Connection, auth and protocol faults are
// returned as *SendError so the caller records them as bounces.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	addr := net.JoinHostPort(t.settings.Host, strconv.Itoa(t.port()))
	tlsCfg := &tls.Config{ServerName: t.settings.Host}

	dialer := &net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &SendError{Temporary: true, Message: fmt.Sprintf("connect %s: %v", addr, err)}
	}
	// Deadline bounds the whole session, not just the dial.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(t.timeout))
	}

	var client *gosmtp.Client
	if t.settings.Secure {
		client = gosmtp.NewClient(tls.Client(conn, tlsCfg))
	} else {
		client, err = gosmtp.NewClientStartTLS(conn, tlsCfg)
		if err != nil {
			conn.Close()
			return nil, &SendError{Temporary: true, Message: fmt.Sprintf("starttls %s: %v", addr, err)}
		}
	}
	defer client.Close()

	if t.settings.Username != "" {
		auth := sasl.NewPlainClient("", t.settings.Username, t.settings.Password)
		if err := client.Auth(auth); err != nil {
			return nil, &SendError{Temporary: false, Message: fmt.Sprintf("auth failed: %v", err)}
		}
	}

	messageID := NewMessageID(extractDomain(msg.From))
	raw := BuildRaw(msg, messageID)

	if err := client.SendMail(envelopeFrom(msg.From), []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return nil, classifySMTPError(err)
	}
	if err := client.Quit(); err != nil {
		t.logger.Debug("smtp quit failed", "host", t.settings.Host, "error", err)
	}

	t.logger.Debug("smtp message delivered", "host", t.settings.Host, "to", msg.To, "message_id", messageID)

	return &Result{MessageID: messageID, Provider: t.Name()}, nil
}

func (t *SMTPTransport) port() int {
	if t.settings.Port > 0 {
		return t.settings.Port
	}
	if t.settings.Secure {
		return 465
	}
	return 587
}

// classifySMTPError maps an SMTP protocol error onto a SendError.
// 4xx replies are temporary, 5xx permanent.
func classifySMTPError(err error) *SendError {
	if smtpErr, ok := err.(*gosmtp.SMTPError); ok {
		return &SendError{
			Temporary: smtpErr.Code >= 400 && smtpErr.Code < 500,
			Message:   fmt.Sprintf("smtp %d: %s", smtpErr.Code, smtpErr.Message),
		}
	}
	return &SendError{Temporary: true, Message: err.Error()}
}

// envelopeFrom strips a display name down to the bare address for the
// MAIL FROM command.
func envelopeFrom(from string) string {
	start := bytes.IndexByte([]byte(from), '<')
	end := bytes.LastIndexByte([]byte(from), '>')
	if start >= 0 && end > start {
		return from[start+1 : end]
	}
	return from
}

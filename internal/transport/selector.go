package transport

import (
	"errors"
	"log/slog"

	"github.com/mailtide/mailtide/internal/models"
)

// ErrNoTransport is returned when no transport can serve a user. With a
// sandbox configured this cannot happen; it guards misconstruction.
var ErrNoTransport = errors.New("no transport available")

// Selector resolves the delivery transport for a user, in priority order:
// the user's own SMTP credentials, the process-wide bulk provider, then the
// sandbox fallback.
type Selector struct {
	provider Transport // nil when no provider API key is configured
	sandbox  Transport
	logger   *slog.Logger

	// newSMTP builds the per-user custom transport; replaceable in tests.
	newSMTP func(models.SMTPSettings) Transport
}

// NewSelector creates a selector. provider may be nil; sandbox must not be.
func NewSelector(provider Transport, sandbox Transport, logger *slog.Logger) *Selector {
	s := &Selector{
		provider: provider,
		sandbox:  sandbox,
		logger:   logger,
	}
	s.newSMTP = func(settings models.SMTPSettings) Transport {
		return NewSMTPTransport(settings, logger)
	}
	return s
}

// Resolve picks the transport for a user. The first viable option wins: a
// user with enabled SMTP credentials always gets the custom transport, even
// when a bulk provider is configured.
func (s *Selector) Resolve(user *models.User) (Transport, error) {
	if user != nil && user.Settings.SMTP.Configured() {
		s.logger.Debug("resolved custom smtp transport", "user_id", user.ID, "host", user.Settings.SMTP.Host)
		return s.newSMTP(user.Settings.SMTP), nil
	}
	if s.provider != nil {
		return s.provider, nil
	}
	if s.sandbox != nil {
		return s.sandbox, nil
	}
	return nil, ErrNoTransport
}

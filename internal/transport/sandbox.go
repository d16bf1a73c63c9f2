package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SandboxTransport captures messages instead of delivering them. It is the
// fallback when no real credentials are configured: sends succeed and the
// result carries a preview URL pointing at the captured message.
type SandboxTransport struct {
	storage     *SandboxStorage
	previewBase string
	logger      *slog.Logger

	simulateErrors   bool
	errorProbability float64 // 0.0 to 1.0
}

// NewSandboxTransport creates a sandbox transport. previewBase is the URL
// prefix for message previews, e.g. "http://localhost:8080".
func NewSandboxTransport(storage *SandboxStorage, previewBase string, logger *slog.Logger) *SandboxTransport {
	return &SandboxTransport{
		storage:          storage,
		previewBase:      strings.TrimRight(previewBase, "/"),
		logger:           logger,
		errorProbability: 0.1,
	}
}

func (t *SandboxTransport) Name() string { return "sandbox" }

// SetErrorSimulation enables random delivery failures, for exercising
// bounce handling in development.
func (t *SandboxTransport) SetErrorSimulation(enabled bool, probability float64) {
	t.simulateErrors = enabled
	if probability > 0 && probability <= 1 {
		t.errorProbability = probability
	}
}

// Send captures the message and returns a success-shaped result with a
// human-inspectable preview reference.
func (t *SandboxTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	if t.simulateErrors && rand.Float64() < t.errorProbability {
		return nil, &SendError{Temporary: false, Message: "550 user not found (simulated)"}
	}

	captured := &CapturedMessage{
		ID:         uuid.New().String(),
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		Text:       msg.Text,
		CapturedAt: time.Now(),
	}
	if err := t.storage.Save(captured); err != nil {
		return nil, &SendError{Temporary: true, Message: "sandbox capture failed: " + err.Error()}
	}

	t.logger.Info("sandbox: captured message", "id", captured.ID, "from", msg.From, "to", msg.To)

	return &Result{
		MessageID:  captured.ID,
		Provider:   t.Name(),
		PreviewURL: t.previewBase + "/api/v1/sandbox/messages/" + captured.ID,
	}, nil
}

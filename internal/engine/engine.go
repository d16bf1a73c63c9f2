// Package engine implements the campaign scheduling and batched delivery
// core: it turns a scheduled campaign into a series of rate-limited
// delivery batches, tracks progress, picks a transport per user and
// records partial failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailtide/mailtide/internal/metrics"
	"github.com/mailtide/mailtide/internal/models"
	"github.com/mailtide/mailtide/internal/template"
	"github.com/mailtide/mailtide/internal/transport"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus is returned when a campaign's lifecycle status does
	// not allow the requested operation.
	ErrInvalidStatus = errors.New("operation not allowed in current campaign status")
	// ErrBatchInFlight is returned when a batch is already running for the
	// campaign. Only one batch may be in flight per campaign.
	ErrBatchInFlight = errors.New("batch already in flight for campaign")
)

// CampaignStore persists campaigns. Update must write counters and status
// atomically.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	UpdateStatus(ctx context.Context, id string, status models.CampaignStatus) error
	FindByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
}

// ListStore resolves subscriber lists. Read-only from the engine's
// perspective.
type ListStore interface {
	Get(ctx context.Context, id string) (*models.List, error)
}

// TemplateStore resolves templates. Read-only.
type TemplateStore interface {
	Get(ctx context.Context, id string) (*models.Template, error)
}

// UserStore resolves users and their sender settings. Read-only.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// SnapshotStore persists the frozen recipient set of a sending campaign.
type SnapshotStore interface {
	Snapshot(ctx context.Context, campaignID string, subs []models.Subscriber) (int, error)
	Slice(ctx context.Context, campaignID string, offset, limit int) ([]models.Subscriber, error)
}

// TransportResolver picks the delivery transport for a user.
type TransportResolver interface {
	Resolve(user *models.User) (transport.Transport, error)
}

// Stores bundles the engine's persistence collaborators.
type Stores struct {
	Campaigns CampaignStore
	Lists     ListStore
	Templates TemplateStore
	Users     UserStore
	Snapshots SnapshotStore
}

// Options holds engine tuning and sender defaults.
type Options struct {
	// BatchInterval is the cadence between batches of one campaign.
	BatchInterval time.Duration
	// DefaultBatchSize is used when a campaign carries no send limit.
	DefaultBatchSize int

	// Sender defaults, applied when the owning user's settings are empty.
	SenderName   string
	FromEmail    string
	ReplyToEmail string
}

// Engine is the campaign delivery engine. One instance owns the timer
// registry; it is safe for concurrent use.
type Engine struct {
	stores     Stores
	transports TransportResolver
	renderer   *template.Renderer
	estimator  Estimator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	opts       Options

	now func() time.Time

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]struct{}
}

// New creates an engine. metrics may be nil.
func New(stores Stores, transports TransportResolver, renderer *template.Renderer, opts Options, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = time.Hour
	}
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = 50
	}
	return &Engine{
		stores:     stores,
		transports: transports,
		renderer:   renderer,
		estimator:  FixedRatioEstimator{OpenRate: 0.4, ClickRate: 0.1},
		metrics:    m,
		logger:     logger.With("component", "engine"),
		opts:       opts,
		now:        time.Now,
		timers:     make(map[string]*time.Timer),
		inflight:   make(map[string]struct{}),
	}
}

// SetEstimator replaces the engagement estimator.
func (e *Engine) SetEstimator(est Estimator) {
	if est != nil {
		e.estimator = est
	}
}

// ScheduleCampaign loads a campaign and schedules it.
func (e *Engine) ScheduleCampaign(ctx context.Context, campaignID string) error {
	c, err := e.stores.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if c == nil {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return e.Schedule(ctx, c)
}

// CancelCampaign disarms the campaign's timer and marks it canceled.
// Campaigns already sending or finished cannot be canceled; there is no
// mid-batch abort.
func (e *Engine) CancelCampaign(ctx context.Context, campaignID string) error {
	c, err := e.stores.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if c == nil {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if !c.CanCancel() {
		return fmt.Errorf("cancel campaign %s in status %s: %w", c.ID, c.Status, ErrInvalidStatus)
	}

	e.disarm(campaignID)

	if err := e.stores.Campaigns.UpdateStatus(ctx, campaignID, models.StatusCanceled); err != nil {
		return fmt.Errorf("persist cancellation: %w", err)
	}
	e.metrics.CampaignCanceled()
	e.logger.Info("campaign canceled", "campaign_id", campaignID)
	return nil
}

// SendTestEmail performs a single ad-hoc send of a template to one
// recipient through the owning user's transport. It bypasses campaign
// counters entirely.
func (e *Engine) SendTestEmail(ctx context.Context, templateID, recipientEmail, userID string) (*DeliveryResult, error) {
	tmpl, err := e.stores.Templates.Get(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}

	user, err := e.stores.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	sub := &models.Subscriber{Email: recipientEmail, Status: models.SubscriberActive}
	return e.Deliver(ctx, sub, tmpl, user)
}

// Recover re-arms timers for all scheduled campaigns. Called once at
// process start; campaigns whose fire time passed while the process was
// down fire immediately. A campaign stuck in sending after a crash is not
// picked up here and needs a manual batch re-trigger.
func (e *Engine) Recover(ctx context.Context) error {
	campaigns, err := e.stores.Campaigns.FindByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return fmt.Errorf("scan scheduled campaigns: %w", err)
	}
	for i := range campaigns {
		if err := e.Schedule(ctx, &campaigns[i]); err != nil {
			e.logger.Error("failed to re-arm campaign", "campaign_id", campaigns[i].ID, "error", err)
		}
	}
	e.logger.Info("recovery scan complete", "campaigns", len(campaigns))
	return nil
}

// Shutdown disarms all timers. In-flight batches finish on their own.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.metrics.SetTimersArmed(0)
}

func (e *Engine) senderName(user *models.User) string {
	if user != nil && user.Settings.SenderName != "" {
		return user.Settings.SenderName
	}
	return e.opts.SenderName
}

func (e *Engine) fromEmail(user *models.User) string {
	if user != nil && user.Settings.FromEmail != "" {
		return user.Settings.FromEmail
	}
	return e.opts.FromEmail
}

func (e *Engine) replyTo(user *models.User) string {
	if user != nil && user.Settings.ReplyToEmail != "" {
		return user.Settings.ReplyToEmail
	}
	return e.opts.ReplyToEmail
}

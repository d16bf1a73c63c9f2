package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mailtide/mailtide/internal/models"
)

// BatchResult summarizes one ProcessBatch invocation.
type BatchResult struct {
	// Skipped is set when the campaign was not in sending status and the
	// call was a no-op.
	Skipped   bool                  `json:"skipped"`
	Attempted int                   `json:"attempted"`
	Delivered int                   `json:"delivered"`
	Bounced   int                   `json:"bounced"`
	Status    models.CampaignStatus `json:"status"`
}

// ProcessBatch delivers the next slice of a sending campaign's recipient
// snapshot. batchSize <= 0 uses the campaign's send limit. Individual send
// failures are recorded as bounces and never abort the batch; an
// infrastructure fault aborts the batch and marks the campaign failed.
//
// Calling ProcessBatch on a campaign that is not sending is a no-op, so a
// stray timer or a re-trigger on a finished campaign cannot double-send.
func (e *Engine) ProcessBatch(ctx context.Context, campaignID string, batchSize int) (*BatchResult, error) {
	e.mu.Lock()
	if _, busy := e.inflight[campaignID]; busy {
		e.mu.Unlock()
		return nil, ErrBatchInFlight
	}
	e.inflight[campaignID] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, campaignID)
		e.mu.Unlock()
	}()

	c, err := e.stores.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if c.Status != models.StatusSending {
		return &BatchResult{Skipped: true, Status: c.Status}, nil
	}

	if c.Remaining() <= 0 {
		return e.complete(ctx, c)
	}

	if batchSize <= 0 {
		batchSize = c.SendLimit
	}
	if batchSize <= 0 {
		batchSize = e.opts.DefaultBatchSize
	}
	toSend := batchSize
	if r := c.Remaining(); toSend > r {
		toSend = r
	}

	subs, err := e.stores.Snapshots.Slice(ctx, c.ID, c.Processed(), toSend)
	if err != nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("load recipient slice: %w", err))
	}

	tmpl, err := e.stores.Templates.Get(ctx, c.TemplateID)
	if err != nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("load template: %w", err))
	}
	if tmpl == nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("template %s: %w", c.TemplateID, ErrNotFound))
	}

	user, err := e.stores.Users.Get(ctx, c.UserID)
	if err != nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("load user: %w", err))
	}

	// A transport resolution failure outside a specific send attempt is
	// infrastructure-level: nothing in this batch could be delivered.
	tr, err := e.transports.Resolve(user)
	if err != nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("resolve transport: %w", err))
	}

	start := time.Now()
	result := &BatchResult{Attempted: len(subs)}

	// Sequential sends; counter updates stay serialized by construction.
	for i := range subs {
		dr := e.deliverWith(ctx, tr, &subs[i], tmpl, user)
		if dr.Success {
			c.SentCount++
			result.Delivered++
		} else {
			c.BounceCount++
			result.Bounced++
			e.logger.Warn("delivery bounced",
				"campaign_id", c.ID, "to", subs[i].Email, "transport", tr.Name(), "error", dr.Error)
		}
		e.metrics.ObserveSend(tr.Name(), dr.Success)
	}

	now := e.now()
	c.LastSentAt = &now
	if c.Processed() >= c.TotalRecipients {
		c.Status = models.StatusSent
	}
	e.applyEngagement(c)

	if err := e.stores.Campaigns.Update(ctx, c); err != nil {
		return nil, e.failCampaign(ctx, c, fmt.Errorf("persist batch progress: %w", err))
	}

	e.metrics.ObserveBatch(time.Since(start).Seconds())
	result.Status = c.Status

	if c.Status == models.StatusSent {
		e.disarm(c.ID)
		e.metrics.CampaignCompleted()
		e.logger.Info("campaign complete",
			"campaign_id", c.ID, "sent", c.SentCount, "bounced", c.BounceCount)
	} else {
		e.logger.Info("batch complete",
			"campaign_id", c.ID, "delivered", result.Delivered, "bounced", result.Bounced,
			"progress", fmt.Sprintf("%d/%d", c.Processed(), c.TotalRecipients))
	}

	return result, nil
}

// complete finalizes a campaign whose snapshot is exhausted.
func (e *Engine) complete(ctx context.Context, c *models.Campaign) (*BatchResult, error) {
	c.Status = models.StatusSent
	if err := e.stores.Campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}
	e.disarm(c.ID)
	e.metrics.CampaignCompleted()
	e.logger.Info("campaign complete", "campaign_id", c.ID, "sent", c.SentCount, "bounced", c.BounceCount)
	return &BatchResult{Status: models.StatusSent}, nil
}

// failCampaign marks the campaign failed after an infrastructure fault so
// it is never left stuck in sending. Returns the original cause.
func (e *Engine) failCampaign(ctx context.Context, c *models.Campaign, cause error) error {
	c.Status = models.StatusFailed
	if err := e.stores.Campaigns.UpdateStatus(ctx, c.ID, models.StatusFailed); err != nil {
		e.logger.Error("failed to persist failed status", "campaign_id", c.ID, "error", err)
	}
	e.disarm(c.ID)
	e.metrics.CampaignFailed()
	e.logger.Error("campaign failed", "campaign_id", c.ID, "error", cause)
	return cause
}

// applyEngagement updates the simulated engagement counters. They only
// ever increase, regardless of what the estimator returns.
func (e *Engine) applyEngagement(c *models.Campaign) {
	opens, clicks := e.estimator.Estimate(c.SentCount)
	if opens > c.OpenCount {
		c.OpenCount = opens
	}
	if clicks > c.ClickCount {
		c.ClickCount = clicks
	}
}

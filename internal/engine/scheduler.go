package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailtide/mailtide/internal/models"
)

// Schedule arms the campaign. A fire time at or before now transitions the
// campaign to sending and runs the first batch before returning; a future
// fire time registers a timer keyed by campaign id and leaves the status
// scheduled.
func (e *Engine) Schedule(ctx context.Context, c *models.Campaign) error {
	if c.Status != models.StatusDraft && c.Status != models.StatusScheduled {
		return fmt.Errorf("schedule campaign %s in status %s: %w", c.ID, c.Status, ErrInvalidStatus)
	}

	if c.Status == models.StatusDraft {
		if err := e.stores.Campaigns.UpdateStatus(ctx, c.ID, models.StatusScheduled); err != nil {
			return fmt.Errorf("persist scheduled status: %w", err)
		}
		c.Status = models.StatusScheduled
		// Counted on the transition only, so the startup recovery scan
		// does not recount campaigns that were already scheduled.
		e.metrics.CampaignScheduled()
	}

	delay := c.ScheduleDate.Sub(e.now())
	if delay <= 0 {
		e.logger.Info("campaign due, firing now", "campaign_id", c.ID)
		e.fire(ctx, c.ID)
		return nil
	}

	id := c.ID
	e.arm(id, delay, func() {
		e.fire(context.Background(), id)
	})
	e.logger.Info("campaign timer armed", "campaign_id", c.ID, "fire_in", delay.Round(time.Second))
	return nil
}

// Armed reports whether a timer is registered for the campaign.
func (e *Engine) Armed(campaignID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[campaignID]
	return ok
}

// ArmedCount returns the number of registered timers.
func (e *Engine) ArmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// arm registers a timer for a campaign, replacing any previous one. The
// registry holds at most one timer per campaign id, so a campaign never
// has two pending drivers.
func (e *Engine) arm(campaignID string, delay time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[campaignID]; ok {
		t.Stop()
	}
	e.timers[campaignID] = time.AfterFunc(delay, func() {
		e.disarm(campaignID)
		fn()
	})
	e.metrics.SetTimersArmed(len(e.timers))
}

// disarm stops and removes a campaign's timer if one is registered.
func (e *Engine) disarm(campaignID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[campaignID]; ok {
		t.Stop()
		delete(e.timers, campaignID)
	}
	e.metrics.SetTimersArmed(len(e.timers))
}

// fire transitions a scheduled campaign to sending, snapshots its
// recipients and runs the first batch. Failures before the status flip
// leave the campaign scheduled; the recovery scan will retry it on next
// start.
func (e *Engine) fire(ctx context.Context, campaignID string) {
	c, err := e.stores.Campaigns.Get(ctx, campaignID)
	if err != nil {
		e.logger.Error("failed to load campaign at fire time", "campaign_id", campaignID, "error", err)
		return
	}
	if c == nil || c.Status != models.StatusScheduled {
		// Canceled or already handled by another path.
		e.logger.Debug("skipping fire, campaign not scheduled", "campaign_id", campaignID)
		return
	}

	list, err := e.stores.Lists.Get(ctx, c.ListID)
	if err != nil {
		e.logger.Error("failed to load list at fire time", "campaign_id", c.ID, "list_id", c.ListID, "error", err)
		return
	}
	if list == nil {
		e.logger.Error("campaign list missing", "campaign_id", c.ID, "list_id", c.ListID)
		return
	}

	// Freeze the recipient set; list edits after this point do not affect
	// the running campaign.
	subs := list.ActiveSubscribers()
	total, err := e.stores.Snapshots.Snapshot(ctx, c.ID, subs)
	if err != nil {
		e.logger.Error("failed to snapshot recipients", "campaign_id", c.ID, "error", err)
		return
	}

	c.TotalRecipients = total
	c.Status = models.StatusSending
	if err := e.stores.Campaigns.Update(ctx, c); err != nil {
		e.logger.Error("failed to persist sending transition", "campaign_id", c.ID, "error", err)
		return
	}

	e.logger.Info("campaign sending", "campaign_id", c.ID, "recipients", total, "batch_size", c.SendLimit)
	e.runBatch(ctx, c.ID)
}

// runBatch drives one batch and re-arms the campaign's registry slot when
// more recipients remain. Driving follow-up batches through the same
// registry keeps exactly one active driver per campaign.
func (e *Engine) runBatch(ctx context.Context, campaignID string) {
	res, err := e.ProcessBatch(ctx, campaignID, 0)
	if errors.Is(err, ErrBatchInFlight) {
		// A manually triggered batch holds the slot right now. Re-arm
		// instead of giving up, otherwise the campaign would be left in
		// sending with no driver once that batch finishes.
		e.arm(campaignID, e.opts.BatchInterval, func() {
			e.runBatch(context.Background(), campaignID)
		})
		e.logger.Warn("batch in flight, driver re-armed", "campaign_id", campaignID, "interval", e.opts.BatchInterval)
		return
	}
	if err != nil {
		e.logger.Error("batch failed", "campaign_id", campaignID, "error", err)
		return
	}
	if res.Status != models.StatusSending {
		return
	}

	e.arm(campaignID, e.opts.BatchInterval, func() {
		e.runBatch(context.Background(), campaignID)
	})
	e.logger.Info("next batch armed", "campaign_id", campaignID, "interval", e.opts.BatchInterval)
}

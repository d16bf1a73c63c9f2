package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mailtide/mailtide/internal/metrics"
	"github.com/mailtide/mailtide/internal/models"
)

func TestSchedulePastFiresImmediately(t *testing.T) {
	// Scenario: schedule date in the past, 3 recipients, send limit 10.
	// One schedule call runs scheduled -> sending -> sent.
	env := setupEnv(t, 3, Options{})
	ctx := context.Background()

	if err := env.engine.ScheduleCampaign(ctx, env.campaign.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}

	c := env.reload(t)
	if c.Status != models.StatusSent {
		t.Errorf("status = %s, want sent", c.Status)
	}
	if c.TotalRecipients != 3 || c.SentCount != 3 || c.BounceCount != 0 {
		t.Errorf("counters = total %d, sent %d, bounced %d", c.TotalRecipients, c.SentCount, c.BounceCount)
	}
	if env.engine.Armed(c.ID) {
		t.Error("completed campaign should have no armed timer")
	}

	got := env.transport.recipients()
	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScheduleFutureArmsTimer(t *testing.T) {
	// Scenario: schedule date one hour out, then immediate cancel. The
	// campaign never transitions to sending.
	env := setupEnv(t, 2, Options{})
	ctx := context.Background()

	c := env.reload(t)
	c.ScheduleDate = time.Now().Add(time.Hour)
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}
	if !env.engine.Armed(c.ID) {
		t.Fatal("timer not armed")
	}
	if got := env.reload(t); got.Status != models.StatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}

	if err := env.engine.CancelCampaign(ctx, c.ID); err != nil {
		t.Fatalf("CancelCampaign() error = %v", err)
	}
	if env.engine.Armed(c.ID) {
		t.Error("timer still armed after cancel")
	}
	if got := env.reload(t); got.Status != models.StatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if len(env.transport.recipients()) != 0 {
		t.Error("canceled campaign sent mail")
	}
}

func TestScheduleDraftTransitionsToScheduled(t *testing.T) {
	env := setupEnv(t, 1, Options{})
	ctx := context.Background()

	c := env.reload(t)
	c.Status = models.StatusDraft
	c.ScheduleDate = time.Now().Add(time.Hour)
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}
	if got := env.reload(t); got.Status != models.StatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestScheduleRejectsInvalidStatus(t *testing.T) {
	for _, status := range []models.CampaignStatus{
		models.StatusSending, models.StatusSent, models.StatusFailed, models.StatusCanceled,
	} {
		t.Run(string(status), func(t *testing.T) {
			env := setupEnv(t, 1, Options{})
			ctx := context.Background()

			c := env.reload(t)
			c.Status = status
			if err := env.store.Update(ctx, c); err != nil {
				t.Fatalf("update: %v", err)
			}

			if err := env.engine.ScheduleCampaign(ctx, c.ID); !errors.Is(err, ErrInvalidStatus) {
				t.Errorf("error = %v, want ErrInvalidStatus", err)
			}
		})
	}
}

func TestCancelRejectsSendingCampaign(t *testing.T) {
	env := setupEnv(t, 2, Options{})
	env.startSending(t)

	err := env.engine.CancelCampaign(context.Background(), env.campaign.ID)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("error = %v, want ErrInvalidStatus", err)
	}
	if c := env.reload(t); c.Status != models.StatusSending {
		t.Errorf("status = %s, want sending", c.Status)
	}
}

func TestCancelUnknownCampaign(t *testing.T) {
	env := setupEnv(t, 1, Options{})
	if err := env.engine.CancelCampaign(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMultiBatchArmsFollowUpTimer(t *testing.T) {
	// 4 recipients with send limit 2 and a long batch interval: the first
	// batch runs synchronously, the second waits on an armed timer in the
	// same registry slot.
	env := setupEnv(t, 4, Options{BatchInterval: time.Hour})
	ctx := context.Background()

	c := env.reload(t)
	c.SendLimit = 2
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}

	c = env.reload(t)
	if c.Status != models.StatusSending {
		t.Errorf("status = %s, want sending", c.Status)
	}
	if c.SentCount != 2 {
		t.Errorf("sentCount = %d, want 2", c.SentCount)
	}
	if !env.engine.Armed(c.ID) {
		t.Error("follow-up timer not armed")
	}
	if env.engine.ArmedCount() != 1 {
		t.Errorf("armed count = %d, want 1", env.engine.ArmedCount())
	}
}

func TestDriverReArmsWhenBatchInFlight(t *testing.T) {
	// The interval driver fires while a manually triggered batch holds the
	// in-flight slot. The driver must re-arm rather than exit, or the
	// campaign would be stranded in sending with no timer.
	env := setupEnv(t, 4, Options{BatchInterval: time.Hour})
	env.startSending(t)
	ctx := context.Background()

	env.engine.mu.Lock()
	env.engine.inflight[env.campaign.ID] = struct{}{}
	env.engine.mu.Unlock()

	env.engine.runBatch(ctx, env.campaign.ID)

	if !env.engine.Armed(env.campaign.ID) {
		t.Fatal("driver gave up while another batch was in flight")
	}

	// Once the colliding batch releases the slot, the armed driver can
	// finish the campaign.
	env.engine.mu.Lock()
	delete(env.engine.inflight, env.campaign.ID)
	env.engine.mu.Unlock()

	env.engine.runBatch(ctx, env.campaign.ID)

	c := env.reload(t)
	if c.Status != models.StatusSent || c.SentCount != 4 {
		t.Errorf("campaign = status %s, sent %d", c.Status, c.SentCount)
	}
	if env.engine.Armed(c.ID) {
		t.Error("completed campaign still has an armed timer")
	}
}

func TestScheduledCounterCountsTransitionOnce(t *testing.T) {
	// Re-arming an already-scheduled campaign (the recovery scan path)
	// must not bump the scheduled counter again.
	env := setupEnv(t, 1, Options{})
	m := metrics.New()
	env.engine.metrics = m
	ctx := context.Background()

	c := env.reload(t)
	c.Status = models.StatusDraft
	c.ScheduleDate = time.Now().Add(time.Hour)
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}
	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("re-arm error = %v", err)
	}
	if err := env.engine.Recover(ctx); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if got := testutil.ToFloat64(m.CampaignsScheduledTotal); got != 1 {
		t.Errorf("scheduled counter = %v, want 1", got)
	}
}

func TestSnapshotFreezesRecipients(t *testing.T) {
	env := setupEnv(t, 4, Options{BatchInterval: time.Hour})
	ctx := context.Background()

	c := env.reload(t)
	c.SendLimit = 2
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}

	// Mutate the list mid-send; the snapshot must not notice.
	env.store.mu.Lock()
	list := env.store.lists[env.campaign.ListID]
	list.Subscribers = append([]models.Subscriber{{
		ID: "intruder", ListID: list.ID, Email: "z@example.com", Status: models.SubscriberActive,
	}}, list.Subscribers...)
	env.store.mu.Unlock()

	if _, err := env.engine.ProcessBatch(ctx, c.ID, 2); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	for _, got := range env.transport.recipients() {
		if got == "z@example.com" {
			t.Error("late list addition leaked into running campaign")
		}
	}
	if got := env.reload(t); got.Status != models.StatusSent || got.SentCount != 4 {
		t.Errorf("campaign = status %s, sent %d", got.Status, got.SentCount)
	}
}

func TestRecoverReArmsScheduledCampaigns(t *testing.T) {
	env := setupEnv(t, 2, Options{})
	ctx := context.Background()

	// One future campaign plus the default past-due one.
	future := &models.Campaign{
		ID:           "camp-future",
		UserID:       "user-1",
		ListID:       env.campaign.ListID,
		TemplateID:   "tmpl-1",
		Status:       models.StatusScheduled,
		ScheduleDate: time.Now().Add(time.Hour),
		SendLimit:    10,
	}
	env.store.mu.Lock()
	env.store.campaigns[future.ID] = future
	env.store.mu.Unlock()

	if err := env.engine.Recover(ctx); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	// The past-due campaign fired; the future one is armed.
	if c := env.reload(t); c.Status != models.StatusSent {
		t.Errorf("past-due campaign status = %s, want sent", c.Status)
	}
	if !env.engine.Armed(future.ID) {
		t.Error("future campaign not re-armed")
	}
}

func TestSendTestEmailBypassesCounters(t *testing.T) {
	env := setupEnv(t, 3, Options{})
	ctx := context.Background()

	res, err := env.engine.SendTestEmail(ctx, "tmpl-1", "probe@example.com", "user-1")
	if err != nil {
		t.Fatalf("SendTestEmail() error = %v", err)
	}
	if !res.Success {
		t.Errorf("result = %+v", res)
	}

	got := env.transport.recipients()
	if len(got) != 1 || got[0] != "probe@example.com" {
		t.Errorf("recipients = %v", got)
	}
	if c := env.reload(t); c.SentCount != 0 {
		t.Errorf("test send touched campaign counters: %+v", c)
	}
}

func TestSendTestEmailUnknownTemplate(t *testing.T) {
	env := setupEnv(t, 1, Options{})
	_, err := env.engine.SendTestEmail(context.Background(), "nope", "probe@example.com", "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeliverReportsExpectedFailureInResult(t *testing.T) {
	env := setupEnv(t, 1, Options{})
	env.transport.blocked["probe@example.com"] = true

	res, err := env.engine.SendTestEmail(context.Background(), "tmpl-1", "probe@example.com", "user-1")
	if err != nil {
		t.Fatalf("expected failure in result, got error %v", err)
	}
	if res.Success {
		t.Error("expected unsuccessful result")
	}
	if !strings.Contains(res.Error, "550") {
		t.Errorf("result error = %q", res.Error)
	}
}

func TestShutdownDisarmsTimers(t *testing.T) {
	env := setupEnv(t, 1, Options{})
	ctx := context.Background()

	c := env.reload(t)
	c.ScheduleDate = time.Now().Add(time.Hour)
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := env.engine.ScheduleCampaign(ctx, c.ID); err != nil {
		t.Fatalf("ScheduleCampaign() error = %v", err)
	}

	env.engine.Shutdown()
	if env.engine.ArmedCount() != 0 {
		t.Errorf("armed count after shutdown = %d", env.engine.ArmedCount())
	}
}

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mailtide/mailtide/internal/models"
	"github.com/mailtide/mailtide/internal/template"
	"github.com/mailtide/mailtide/internal/transport"
)

// memStore is an in-memory implementation of all engine store interfaces.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	lists     map[string]*models.List
	templates map[string]*models.Template
	users     map[string]*models.User
	snapshots map[string][]models.Subscriber

	updateErr   error // injected fault for Update
	snapshotErr error // injected fault for Slice
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*models.Campaign),
		lists:     make(map[string]*models.List),
		templates: make(map[string]*models.Template),
		users:     make(map[string]*models.User),
		snapshots: make(map[string][]models.Subscriber),
	}
}

func (m *memStore) Get(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.Status = status
	return nil
}

func (m *memStore) FindByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Campaign
	for _, c := range m.campaigns {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memLists struct{ m *memStore }

func (l memLists) Get(ctx context.Context, id string) (*models.List, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	list, ok := l.m.lists[id]
	if !ok {
		return nil, nil
	}
	return list, nil
}

type memTemplates struct{ m *memStore }

func (t memTemplates) Get(ctx context.Context, id string) (*models.Template, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	tmpl, ok := t.m.templates[id]
	if !ok {
		return nil, nil
	}
	return tmpl, nil
}

type memUsers struct{ m *memStore }

func (u memUsers) Get(ctx context.Context, id string) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, nil
	}
	return user, nil
}

type memSnapshots struct{ m *memStore }

func (s memSnapshots) Snapshot(ctx context.Context, campaignID string, subs []models.Subscriber) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := make([]models.Subscriber, len(subs))
	copy(cp, subs)
	s.m.snapshots[campaignID] = cp
	return len(cp), nil
}

func (s memSnapshots) Slice(ctx context.Context, campaignID string, offset, limit int) ([]models.Subscriber, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.snapshotErr != nil {
		return nil, s.m.snapshotErr
	}
	snap := s.m.snapshots[campaignID]
	if offset >= len(snap) {
		return nil, nil
	}
	end := offset + limit
	if end > len(snap) {
		end = len(snap)
	}
	out := make([]models.Subscriber, end-offset)
	copy(out, snap[offset:end])
	return out, nil
}

// fakeTransport records sent messages and fails for blocked recipients.
type fakeTransport struct {
	mu      sync.Mutex
	name    string
	sent    []transport.Message
	blocked map[string]bool // recipient emails that fail
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{name: "fake", blocked: make(map[string]bool)}
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(ctx context.Context, msg *transport.Message) (*transport.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[msg.To] {
		return nil, &transport.SendError{Temporary: false, Message: "550 rejected"}
	}
	f.sent = append(f.sent, *msg)
	return &transport.Result{MessageID: "fake-msg", Provider: f.name}, nil
}

func (f *fakeTransport) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}
	return out
}

type fakeResolver struct {
	tr  transport.Transport
	err error
}

func (f fakeResolver) Resolve(user *models.User) (transport.Transport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tr, nil
}

type testEnv struct {
	engine    *Engine
	store     *memStore
	transport *fakeTransport
	campaign  *models.Campaign
}

// setupEnv builds an engine over in-memory stores with one campaign, its
// list, template and user.
func setupEnv(t *testing.T, subscribers int, opts Options) *testEnv {
	t.Helper()

	store := newMemStore()
	tr := newFakeTransport()

	list := &models.List{ID: "list-1", Name: "Test"}
	for i := 0; i < subscribers; i++ {
		list.Subscribers = append(list.Subscribers, models.Subscriber{
			ID:        string(rune('a'+i)) + "-sub",
			ListID:    list.ID,
			Email:     string(rune('a'+i)) + "@example.com",
			FirstName: "Sub",
			Status:    models.SubscriberActive,
		})
	}
	store.lists[list.ID] = list
	store.templates["tmpl-1"] = &models.Template{
		ID:      "tmpl-1",
		Subject: "Hi {{firstName}}",
		Text:    "Hello {{firstName}}, unsub: {{unsubscribe}}",
	}
	store.users["user-1"] = &models.User{ID: "user-1", Email: "owner@example.com"}

	campaign := &models.Campaign{
		ID:           "camp-1",
		UserID:       "user-1",
		ListID:       list.ID,
		TemplateID:   "tmpl-1",
		Status:       models.StatusScheduled,
		ScheduleDate: time.Now().Add(-time.Minute),
		SendLimit:    10,
	}
	store.campaigns[campaign.ID] = campaign

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(
		Stores{
			Campaigns: store,
			Lists:     memLists{store},
			Templates: memTemplates{store},
			Users:     memUsers{store},
			Snapshots: memSnapshots{store},
		},
		fakeResolver{tr: tr},
		template.NewRenderer("http://localhost:8080"),
		opts,
		nil,
		logger,
	)

	return &testEnv{engine: eng, store: store, transport: tr, campaign: campaign}
}

func (env *testEnv) reload(t *testing.T) *models.Campaign {
	t.Helper()
	c, err := env.store.Get(context.Background(), env.campaign.ID)
	if err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	if c == nil {
		t.Fatal("campaign disappeared")
	}
	return c
}

// startSending flips the campaign to sending with a snapshot already
// taken, bypassing the scheduler, for batch-level tests.
func (env *testEnv) startSending(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	list := env.store.lists[env.campaign.ListID]
	subs := list.ActiveSubscribers()
	n, err := memSnapshots{env.store}.Snapshot(ctx, env.campaign.ID, subs)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	c := env.reload(t)
	c.TotalRecipients = n
	c.Status = models.StatusSending
	if err := env.store.Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
}

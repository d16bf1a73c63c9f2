package transport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func setupSandbox(t *testing.T) (*SandboxTransport, *SandboxStorage) {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "sandbox.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open bolt db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewSandboxStorage(db)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return NewSandboxTransport(storage, "http://localhost:8080/", discardLogger()), storage
}

func TestSandboxSendCaptures(t *testing.T) {
	sandbox, storage := setupSandbox(t)

	res, err := sandbox.Send(context.Background(), &Message{
		From:    "s@example.com",
		To:      "r@example.com",
		Subject: "Hello",
		Text:    "body",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.MessageID == "" {
		t.Error("expected a message id")
	}
	if res.Provider != "sandbox" {
		t.Errorf("provider = %q", res.Provider)
	}
	if want := "http://localhost:8080/api/v1/sandbox/messages/" + res.MessageID; res.PreviewURL != want {
		t.Errorf("preview url = %q, want %q", res.PreviewURL, want)
	}

	msg, err := storage.Get(res.MessageID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if msg == nil {
		t.Fatal("captured message not found")
	}
	if msg.To != "r@example.com" || msg.Subject != "Hello" || msg.Text != "body" {
		t.Errorf("captured message = %+v", msg)
	}
}

func TestSandboxListNewestFirst(t *testing.T) {
	sandbox, storage := setupSandbox(t)

	var ids []string
	for _, subject := range []string{"first", "second", "third"} {
		res, err := sandbox.Send(context.Background(), &Message{
			From:    "s@example.com",
			To:      "r@example.com",
			Subject: subject,
		})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		ids = append(ids, res.MessageID)
	}

	msgs, err := storage.List(2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("List() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != ids[2] || msgs[1].ID != ids[1] {
		t.Errorf("List() order = [%s %s], want [%s %s]", msgs[0].ID, msgs[1].ID, ids[2], ids[1])
	}

	n, err := storage.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestSandboxGetMissing(t *testing.T) {
	_, storage := setupSandbox(t)

	msg, err := storage.Get("nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if msg != nil {
		t.Errorf("Get() = %+v, want nil", msg)
	}
}

func TestSandboxErrorSimulation(t *testing.T) {
	sandbox, _ := setupSandbox(t)
	sandbox.SetErrorSimulation(true, 1.0)

	_, err := sandbox.Send(context.Background(), &Message{From: "s@x.com", To: "r@x.com"})
	if err == nil {
		t.Fatal("expected simulated failure")
	}
	sendErr, ok := err.(*SendError)
	if !ok {
		t.Fatalf("error type = %T, want *SendError", err)
	}
	if sendErr.Temporary {
		t.Error("simulated failure should be permanent")
	}
	if !strings.Contains(sendErr.Message, "simulated") {
		t.Errorf("message = %q", sendErr.Message)
	}
}

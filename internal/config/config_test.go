package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_addr: \":9000\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Database.Path != "data/mailtide.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Engine.BatchInterval != time.Hour {
		t.Errorf("batch_interval = %s", cfg.Engine.BatchInterval)
	}
	if cfg.Engine.DefaultBatchSize != 50 {
		t.Errorf("default_batch_size = %d", cfg.Engine.DefaultBatchSize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":8443"
  base_url: "https://mail.example.com"
database:
  path: /var/lib/mailtide/db.sqlite
sandbox:
  path: /var/lib/mailtide/sandbox.db
  simulate_errors: true
  error_probability: 0.25
provider:
  name: sendgrid
  base_url: https://api.example.com
  api_key: secret
engine:
  batch_interval: 30m
  default_batch_size: 100
  sender_name: Acme
  from_email: news@acme.com
  reply_to_email: support@acme.com
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Provider.Configured() {
		t.Error("provider should be configured")
	}
	if cfg.Engine.BatchInterval != 30*time.Minute {
		t.Errorf("batch_interval = %s", cfg.Engine.BatchInterval)
	}
	if cfg.Engine.FromEmail != "news@acme.com" {
		t.Errorf("from_email = %q", cfg.Engine.FromEmail)
	}
	if !cfg.Sandbox.SimulateErrors || cfg.Sandbox.ErrorProbability != 0.25 {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "batch interval too small",
			content: "engine:\n  batch_interval: 10ms\n",
		},
		{
			name:    "negative batch size",
			content: "engine:\n  default_batch_size: -1\n",
		},
		{
			name:    "provider key without url",
			content: "provider:\n  api_key: secret\n",
		},
		{
			name:    "bad logging format",
			content: "logging:\n  format: xml\n",
		},
		{
			name:    "error probability out of range",
			content: "sandbox:\n  error_probability: 1.5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Provider.Configured() {
		t.Error("default provider should not be configured")
	}
}

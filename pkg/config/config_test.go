package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - address: me@corp.io
    password: secret
    host: imap.corp.io
    port: 993
    tls: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SyncDays != 30 {
		t.Errorf("SyncDays = %d, want default 30", cfg.SyncDays)
	}
	if cfg.Index.Path != "onebox.db" {
		t.Errorf("Index.Path = %q, want default onebox.db", cfg.Index.Path)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Address != "me@corp.io" {
		t.Errorf("Accounts = %+v", cfg.Accounts)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
sync_days: 7
accounts:
  - address: a@corp.io
    password: one
    host: imap.corp.io
    port: 993
    tls: true
  - address: b@corp.io
    password: two
    host: mail.other.io
    port: 143
    tls: false
index:
  path: /var/lib/onebox/index.db
slack:
  webhook_url: https://hooks.slack.com/services/T/B/X
webhook:
  url: https://automation.example.com/hook
reply:
  product_info: OneBox triages inbound leads
  meeting_link: https://cal.example.com/book
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Accounts) != 2 {
		t.Fatalf("len(Accounts) = %d, want 2", len(cfg.Accounts))
	}
	if cfg.Accounts[1].Port != 143 || cfg.Accounts[1].TLS {
		t.Errorf("second account = %+v", cfg.Accounts[1])
	}
	if cfg.SyncDays != 7 {
		t.Errorf("SyncDays = %d", cfg.SyncDays)
	}
	if cfg.Reply.MeetingLink != "https://cal.example.com/book" {
		t.Errorf("Reply.MeetingLink = %q", cfg.Reply.MeetingLink)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no accounts", `sync_days: 30`, "no accounts"},
		{"missing address", `
accounts:
  - password: x
    host: imap.corp.io
    port: 993
`, "address is required"},
		{"missing host", `
accounts:
  - address: me@corp.io
    password: x
    port: 993
`, "host is required"},
		{"missing port", `
accounts:
  - address: me@corp.io
    password: x
    host: imap.corp.io
`, "port is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded for a missing file")
	}
}

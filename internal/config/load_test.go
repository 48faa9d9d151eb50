package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: debug
  file:
    enabled: false
storage:
  path: ./postbot.db
  busy_timeout: "5s"
bot:
  owner_user_ids: [42, 77]
  workers: 4
scheduler:
  interval: "30s"
  stale_claim_after: "10m"
retention:
  session_window: "168h"
uploader:
  steem:
    username: alice
    posting_wif: 5JExampleExampleExampleExampleExampleExampleExample
publisher:
  instagram:
    access_token: EAAtoken
    account_id: "17841400000000000"
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Bot.OwnerUserIDs) != 2 || cfg.Bot.OwnerUserIDs[0] != 42 {
		t.Errorf("owners = %v", cfg.Bot.OwnerUserIDs)
	}
	if cfg.Scheduler.Interval != "30s" {
		t.Errorf("interval = %q", cfg.Scheduler.Interval)
	}
	if cfg.Publisher.Instagram.AccountID != "17841400000000000" {
		t.Errorf("account = %q", cfg.Publisher.Instagram.AccountID)
	}
}

func TestLoadJSON(t *testing.T) {
	body := `{
  "telegram": {"token": "123:abc"},
  "storage": {"path": "./db.sqlite"},
  "uploader": {"steem": {"username": "alice", "posting_wif": "5J..."}},
  "publisher": {"instagram": {"access_token": "EAA", "account_id": "178"}}
}`
	cfg, err := Load(writeTemp(t, "config.json", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "./db.sqlite" {
		t.Errorf("path = %q", cfg.Storage.Path)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	body := validYAML + "\nextra_section:\n  what: 1\n"
	_, err := Load(writeTemp(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("want unknown field error, got %v", err)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		drop string
		want string
	}{
		{"token", `token: "123:abc"`, "telegram.token"},
		{"storage", "path: ./postbot.db", "storage.path"},
		{"wif", "posting_wif: 5JExampleExampleExampleExampleExampleExampleExample", "posting_wif"},
		{"account", `account_id: "17841400000000000"`, "account_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Replace(validYAML, tc.drop, "", 1)
			_, err := Load(writeTemp(t, "config.yaml", body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	body := strings.Replace(validYAML, `interval: "30s"`, `interval: "soon"`, 1)
	_, err := Load(writeTemp(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "scheduler.interval") {
		t.Fatalf("want duration error, got %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 2*time.Minute)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "45s", 2*time.Minute)
	if err != nil || d != 45*time.Second {
		t.Fatalf("set: d=%v err=%v", d, err)
	}
}

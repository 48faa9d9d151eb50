package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load reads, strictly decodes, and validates the config at path.
// YAML and JSON are both accepted (see coerceToJSONBytes).
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes. Unknown fields are rejected so typos are
// caught at startup rather than silently ignored.
func Parse(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and that every duration string parses.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Uploader.Steem.Username == "" {
		return fmt.Errorf("uploader.steem.username is required")
	}
	if c.Uploader.Steem.PostingWIF == "" {
		return fmt.Errorf("uploader.steem.posting_wif is required")
	}
	if c.Publisher.Instagram.AccessToken == "" {
		return fmt.Errorf("publisher.instagram.access_token is required")
	}
	if c.Publisher.Instagram.AccountID == "" {
		return fmt.Errorf("publisher.instagram.account_id is required")
	}
	if c.Bot.Workers < 0 {
		return fmt.Errorf("bot.workers must be >= 0")
	}
	if c.Scheduler.NotifyRatePerSec < 0 {
		return fmt.Errorf("scheduler.notify_rate_per_sec must be >= 0")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"bot.handler_timeout", c.Bot.HandlerTimeout},
		{"scheduler.interval", c.Scheduler.Interval},
		{"scheduler.stale_claim_after", c.Scheduler.StaleClaimAfter},
		{"retention.sweep_interval", c.Retention.SweepInterval},
		{"retention.session_window", c.Retention.SessionWindow},
		{"retention.job_window", c.Retention.JobWindow},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}

package config

// Config is the full bot configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Bot       BotConfig       `json:"bot"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Retention RetentionConfig `json:"retention"`
	Uploader  UploaderConfig  `json:"uploader"`
	Publisher PublisherConfig `json:"publisher"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level string      `json:"level,omitempty"`
	File  LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the sqlite persistence layer.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type BotConfig struct {
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	Workers      int     `json:"workers,omitempty"`
	// HandlerTimeout bounds a single update handler. Defaults to "3m".
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

// SchedulerConfig controls the background publishing loop.
//
// Defaults (when fields are omitted/zero):
//   - interval: "1m"
//   - stale_claim_after: 5 * interval
//   - notify_rate_per_sec: 10
type SchedulerConfig struct {
	Interval         string `json:"interval,omitempty"`
	StaleClaimAfter  string `json:"stale_claim_after,omitempty"`
	NotifyRatePerSec int    `json:"notify_rate_per_sec,omitempty"`
}

// RetentionConfig controls the retention sweeper.
//
// Defaults: sweep_interval "1h", session_window "168h", job_window "720h".
type RetentionConfig struct {
	SweepInterval string `json:"sweep_interval,omitempty"`
	SessionWindow string `json:"session_window,omitempty"`
	JobWindow     string `json:"job_window,omitempty"`
}

type UploaderConfig struct {
	Steem SteemConfig `json:"steem"`
}

type SteemConfig struct {
	Username   string `json:"username"`
	PostingWIF string `json:"posting_wif"`
	Endpoint   string `json:"endpoint,omitempty"`
}

type PublisherConfig struct {
	Instagram InstagramConfig `json:"instagram"`
}

type InstagramConfig struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id"`
	APIVersion  string `json:"api_version,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
}

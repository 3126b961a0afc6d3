package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// All durations are Go duration strings (e.g. "100ms", "10s", "1m").
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
	Downloader    DownloaderConfig    `json:"downloader"`
	Observability ObservabilityConfig `json:"observability"`
	Report        ReportConfig        `json:"report"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserID is the single user allowed to run admin commands.
	AdminUserID int64  `json:"admin_user_id"`
	GroupLog    string `json:"group_log"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout"`
	// CommandTimeout bounds ordinary command handlers (default "60s").
	// Broadcasts are not bound by it.
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects where the recipient registry lives.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./users.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type BroadcastConfig struct {
	// Pace is the delay after every delivery attempt (default "100ms").
	Pace string `json:"pace,omitempty"`
	// ProgressEvery is the status update cadence in recipients (default 10).
	ProgressEvery int `json:"progress_every,omitempty"`
	// ParseMode renders the body as "HTML", "Markdown" or "MarkdownV2"; empty is plain text.
	ParseMode string `json:"parse_mode,omitempty"`
}

type DownloaderConfig struct {
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	// UserInterval is the minimum spacing of extraction requests per user (default "3s").
	UserInterval string `json:"user_interval,omitempty"`
	UserBurst    int    `json:"user_burst,omitempty"`
}

// ObservabilityConfig controls the optional HTTP server exposing pprof and Prometheus metrics.
//
// Prefer binding to localhost. A non-loopback address requires a token or allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Metrics       bool   `json:"metrics"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// ReportConfig schedules a periodic stats message to the admin.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"` // cron spec, default "0 9 * * *"
	Timezone string `json:"timezone,omitempty"`
}

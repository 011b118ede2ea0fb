package config

// Config is the file representation of castbot's settings. Environment
// variables are overlaid on top of it (see ApplyEnv).
//
// All durations are Go duration strings (e.g. "50ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Webhook   WebhookConfig   `json:"webhook"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminChatID is the only chat allowed to broadcast. 0 disables admin
	// commands entirely.
	AdminChatID int64 `json:"admin_chat_id"`
	// ChatIDs are always broadcast to, in addition to stored subscribers.
	ChatIDs []string `json:"chat_ids,omitempty"`

	// Mode is "webhook" (default) or "polling".
	Mode        string `json:"mode"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	ParseMode   string `json:"parse_mode,omitempty"`
	APIURL      string `json:"api_url,omitempty"`
}

type WebhookConfig struct {
	Listen string `json:"listen"`
	Path   string `json:"path"`
	// PublicURL is what `castbot webhook set` registers with Telegram.
	PublicURL   string `json:"public_url,omitempty"`
	SecretToken string `json:"secret_token,omitempty"` // do not log
	DropPending bool   `json:"drop_pending,omitempty"`
	// Pprof serves /debug/pprof/ behind SecretToken.
	Pprof bool `json:"pprof,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type BroadcastConfig struct {
	SendInterval   string `json:"send_interval,omitempty"`
	ReportFailures int    `json:"report_failures,omitempty"`
	ReasonMaxLen   int    `json:"reason_max_len,omitempty"`
	StatusHistory  int    `json:"status_history,omitempty"`
	StatusTTL      string `json:"status_ttl,omitempty"`
}

// StorageConfig selects the subscriber store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/castbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // redis/postgres URL; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
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

// LoggingTelegram forwards log lines at or above MinLevel to the admin chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode:        ModeWebhook,
			PollTimeout: "10s",
			ParseMode:   "HTML",
		},
		Webhook: WebhookConfig{
			Listen: ":8080",
			Path:   "/",
		},
		Broadcast: BroadcastConfig{
			SendInterval:   "50ms",
			ReportFailures: 10,
			ReasonMaxLen:   30,
			StatusHistory:  200,
			StatusTTL:      "24h",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/castbot.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
	}
}

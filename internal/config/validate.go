package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownDrivers = map[string]bool{
	"": true, "none": true, "memory": true, "file": true,
	"sqlite": true, "sqlite3": true,
	"redis":    true,
	"postgres": true, "postgresql": true, "pg": true,
}

// Validate checks cfg for values the runtime cannot use. requireToken is
// false for offline commands (subscriber management).
func Validate(cfg *Config, requireToken bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode)) {
	case "", ModeWebhook, ModePolling:
	default:
		errs = append(errs, fmt.Errorf("telegram.mode: unknown mode %q", cfg.Telegram.Mode))
	}
	switch strings.ToUpper(strings.TrimSpace(cfg.Telegram.ParseMode)) {
	case "", "HTML", "MARKDOWN", "MARKDOWNV2", "NONE":
	default:
		errs = append(errs, fmt.Errorf("telegram.parse_mode: unknown parse mode %q", cfg.Telegram.ParseMode))
	}
	if !knownDrivers[strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))] {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Broadcast.ReportFailures < 0 {
		errs = append(errs, errors.New("broadcast.report_failures: must be >= 0"))
	}
	if cfg.Broadcast.ReasonMaxLen < 0 {
		errs = append(errs, errors.New("broadcast.reason_max_len: must be >= 0"))
	}

	durations := map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"webhook.read_timeout":     cfg.Webhook.ReadTimeout,
		"webhook.shutdown_timeout": cfg.Webhook.ShutdownTimeout,
		"broadcast.send_interval":  cfg.Broadcast.SendInterval,
		"broadcast.status_ttl":     cfg.Broadcast.StatusTTL,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
	}
	for _, path := range sortedKeys(durations) {
		if _, err := ParseDurationField(path, durations[path]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

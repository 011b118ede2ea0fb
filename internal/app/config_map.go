package app

import (
	"strings"
	"time"

	"castbot/internal/bot"
	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/server"
	"castbot/internal/storage"
	"castbot/internal/transport/telegram"
	logx "castbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// MapStorageConfig converts the file/env storage section. The CLI uses it
// for offline subscriber management too.
func MapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
		Prefix:      strings.TrimSpace(sc.Prefix),
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	interval, err := config.ParseDurationOrDefault("broadcast.send_interval", cfg.Broadcast.SendInterval, broadcast.DefaultSendInterval)
	if err != nil {
		return broadcast.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("broadcast.status_ttl", cfg.Broadcast.StatusTTL, 24*time.Hour)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		SendInterval: interval,
		StatusMax:    cfg.Broadcast.StatusHistory,
		StatusTTL:    ttl,
	}, nil
}

func mapBotSettings(cfg *config.Config) bot.Settings {
	return bot.Settings{
		AdminChatID:   cfg.Telegram.AdminChatID,
		StaticChatIDs: append([]string(nil), cfg.Telegram.ChatIDs...),
		ParseMode:     strings.TrimSpace(cfg.Telegram.ParseMode),
		Report: broadcast.ReportOptions{
			MaxFailures:  cfg.Broadcast.ReportFailures,
			ReasonMaxLen: cfg.Broadcast.ReasonMaxLen,
		},
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationField("webhook.read_timeout", cfg.Webhook.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	shutdown, err := config.ParseDurationField("webhook.shutdown_timeout", cfg.Webhook.ShutdownTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Listen:          strings.TrimSpace(cfg.Webhook.Listen),
		Path:            strings.TrimSpace(cfg.Webhook.Path),
		SecretToken:     strings.TrimSpace(cfg.Webhook.SecretToken),
		Pprof:           cfg.Webhook.Pprof,
		ReadTimeout:     read,
		ShutdownTimeout: shutdown,
	}, nil
}

// MapTelegramConfig converts the telegram section into adapter settings.
func MapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		APIURL:      strings.TrimSpace(cfg.Telegram.APIURL),
	}, nil
}

// MapWebhookSettings is what `webhook set` and webhook-mode startup
// register with Telegram.
func MapWebhookSettings(cfg *config.Config) telegram.WebhookSettings {
	return telegram.WebhookSettings{
		URL:         strings.TrimSpace(cfg.Webhook.PublicURL),
		SecretToken: cfg.Webhook.SecretToken,
		DropPending: cfg.Webhook.DropPending,
	}
}

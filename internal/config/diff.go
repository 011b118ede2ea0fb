package config

import (
	"slices"
	"sort"
	"strings"

	logx "castbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. Tokens, secrets and DSNs are never included; only
// whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		ot.AdminChatID != nt.AdminChatID ||
		!slices.Equal(ot.ChatIDs, nt.ChatIDs) ||
		ot.Mode != nt.Mode ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.ParseMode != nt.ParseMode ||
		ot.APIURL != nt.APIURL {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.admin_set", nt.AdminChatID != 0),
			logx.Int("telegram.static_chat_count", len(nt.ChatIDs)),
			logx.String("telegram.mode", nt.Mode),
			logx.String("telegram.parse_mode", nt.ParseMode),
		)
	}

	ow, nw := oldCfg.Webhook, newCfg.Webhook
	if ow.Listen != nw.Listen || ow.Path != nw.Path || ow.PublicURL != nw.PublicURL ||
		ow.SecretToken != nw.SecretToken || ow.DropPending != nw.DropPending || ow.Pprof != nw.Pprof ||
		ow.ReadTimeout != nw.ReadTimeout || ow.ShutdownTimeout != nw.ShutdownTimeout {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.String("webhook.listen", nw.Listen),
			logx.String("webhook.path", nw.Path),
			logx.Bool("webhook.public_url_set", strings.TrimSpace(nw.PublicURL) != ""),
			logx.Bool("webhook.secret_set", nw.SecretToken != ""),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		nb := newCfg.Broadcast
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.send_interval", strings.TrimSpace(nb.SendInterval)),
			logx.Int("broadcast.report_failures", nb.ReportFailures),
			logx.Int("broadcast.reason_max_len", nb.ReasonMaxLen),
			logx.Int("broadcast.status_history", nb.StatusHistory),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		ns := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(ns.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(ns.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(ns.DSN) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(ns.BusyTimeout)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		nl := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", nl.Level),
			logx.Bool("logx.console", nl.Console),
			logx.Bool("logx.file_enabled", nl.File.Enabled),
			logx.Bool("logx.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists the changed settings that a running process
// cannot pick up.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if oldCfg.Telegram.Mode != newCfg.Telegram.Mode {
		out = append(out, "telegram.mode")
	}
	if oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL {
		out = append(out, "telegram.api_url")
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram.poll_timeout")
	}
	ow, nw := oldCfg.Webhook, newCfg.Webhook
	if ow.Listen != nw.Listen || ow.Path != nw.Path || ow.SecretToken != nw.SecretToken || ow.Pprof != nw.Pprof ||
		ow.ReadTimeout != nw.ReadTimeout || ow.ShutdownTimeout != nw.ShutdownTimeout {
		out = append(out, "webhook")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	return out
}

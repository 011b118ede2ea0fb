package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingToken = errors.New("telegram token is required (set TOKEN)")

// DefaultEnvFiles are loaded by LoadDotEnv when no files are given;
// .env.local overrides .env.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadDotEnv copies variables from dotenv files into the process
// environment. Later files override earlier ones; variables already set in
// the process environment always win. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	merged := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	for k, v := range merged {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// NewEnv returns a viper instance reading the process environment. Flags
// bound into it (BindPFlag) take precedence over the environment.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ParseChatIDs splits a comma separated recipient list. Blank entries are
// ignored.
func ParseChatIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookup(v *viper.Viper, key string) (string, bool) {
	if v == nil || !v.IsSet(key) {
		return "", false
	}
	return strings.TrimSpace(v.GetString(key)), true
}

// ApplyEnv overlays environment settings onto cfg:
//
//	TOKEN, ADMIN_CHAT_ID, LIST_CHAT_IDS, PORT, MODE,
//	WEBHOOK_URL, WEBHOOK_SECRET, WEBHOOK_PATH,
//	STORAGE_DRIVER, STORAGE_PATH, STORAGE_DSN, LOG_LEVEL
func ApplyEnv(cfg *Config, v *viper.Viper) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if s, ok := lookup(v, "token"); ok {
		cfg.Telegram.Token = s
	}
	if s, ok := lookup(v, "admin_chat_id"); ok && s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("ADMIN_CHAT_ID: invalid chat id %q", s)
		}
		cfg.Telegram.AdminChatID = id
	}
	if s, ok := lookup(v, "list_chat_ids"); ok {
		cfg.Telegram.ChatIDs = ParseChatIDs(s)
	}
	if s, ok := lookup(v, "port"); ok && s != "" {
		if strings.Contains(s, ":") {
			cfg.Webhook.Listen = s
		} else {
			if _, err := strconv.ParseUint(s, 10, 16); err != nil {
				return fmt.Errorf("PORT: invalid port %q", s)
			}
			cfg.Webhook.Listen = ":" + s
		}
	}
	if s, ok := lookup(v, "mode"); ok && s != "" {
		cfg.Telegram.Mode = strings.ToLower(s)
	}
	if s, ok := lookup(v, "webhook_url"); ok {
		cfg.Webhook.PublicURL = s
	}
	if s, ok := lookup(v, "webhook_secret"); ok {
		cfg.Webhook.SecretToken = s
	}
	if s, ok := lookup(v, "webhook_path"); ok && s != "" {
		cfg.Webhook.Path = s
	}
	if s, ok := lookup(v, "storage_driver"); ok && s != "" {
		cfg.Storage.Driver = strings.ToLower(s)
	}
	if s, ok := lookup(v, "storage_path"); ok && s != "" {
		cfg.Storage.Path = s
	}
	if s, ok := lookup(v, "storage_dsn"); ok {
		cfg.Storage.DSN = s
	}
	if s, ok := lookup(v, "log_level"); ok && s != "" {
		cfg.Logging.Level = s
	}
	return nil
}

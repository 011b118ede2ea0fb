package bot

import (
	"context"
	"strings"

	kit "castbot/internal/transport"
)

// sanitizeTelegramCommand converts a command name into a Telegram-safe bot
// command ([a-z0-9_]{1,32}).
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// MenuCommands is the public command menu. Admin commands are left out: the
// menu is global and everyone sees it.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	var out []kit.BotCommand
	seen := map[string]bool{}
	for _, c := range d.visibleCommands(false) {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, kit.BotCommand{Command: name, Description: c.Description})
	}
	return out
}

// PublishMenu pushes MenuCommands through the adapter.
func (d *Dispatcher) PublishMenu(ctx context.Context, mu kit.CommandMenuUpdater) error {
	if mu == nil {
		return nil
	}
	return mu.UpdateMenuCommands(ctx, d.MenuCommands())
}

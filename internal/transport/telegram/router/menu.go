package router

import (
	"strings"
	"unicode"

	kit "igrelay/internal/transport"
)

// sanitizeTelegramCommand lowercases s and reduces it to Telegram's
// command alphabet [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "/")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// buildTelegramMenuCommands lists public commands first, then admin ones
// marked with a lock.
func buildTelegramMenuCommands(cmds []Command) []kit.BotCommand {
	var public, admin []kit.BotCommand
	for _, c := range cmds {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		if c.Access == AccessAdminOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		bc := kit.BotCommand{Command: c.Name, Description: desc}
		if c.Access == AccessAdminOnly {
			admin = append(admin, bc)
		} else {
			public = append(public, bc)
		}
	}
	out := append(public, admin...)
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}

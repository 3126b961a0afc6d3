package router

import (
	"igrelay/pkg/tgui"
)

// helpText renders the command list in HTML. Admin-only commands are listed
// for the admin only.
func (m *CommandManager) helpText(isAdmin bool) string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	lines := []tgui.H{tgui.Concat(tgui.Raw("📚 "), tgui.B("Commands")), ""}
	for _, c := range cmds {
		if c.Access == AccessAdminOnly && !isAdmin {
			continue
		}
		row := tgui.Concat(tgui.Raw("/"), tgui.Esc(c.Name))
		if c.Description != "" {
			row = tgui.Concat(row, tgui.Raw(" - "), tgui.Esc(c.Description))
		}
		if c.Access == AccessAdminOnly {
			row = tgui.Concat(tgui.Raw("🔒 "), row)
		}
		lines = append(lines, row)
		if c.Usage != "" {
			lines = append(lines, tgui.Concat(tgui.Raw("    "), tgui.Code(c.Usage)))
		}
	}
	return tgui.Lines(lines...).String()
}

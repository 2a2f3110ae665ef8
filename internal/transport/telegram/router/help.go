package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders help in Telegram HTML parse mode.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	ordered := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	if len(args) > 0 {
		if c, ok := m.lookup(normalizeCommand(args[0])); ok {
			return helpCommandHTML(c)
		}
		return "❓ <b>Unknown command</b>\nType <code>/help</code> to list commands."
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;cmd&gt;</code> for details.", ""}
	for _, c := range ordered {
		if c.Hidden {
			continue
		}
		line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<pre>"+html.EscapeString(u)+"</pre>")
	}
	if len(c.Aliases) > 0 {
		al := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			if a = normalizeCommand(a); a != "" {
				al = append(al, "<code>/"+html.EscapeString(a)+"</code>")
			}
		}
		if len(al) > 0 {
			lines = append(lines, "", "<b>Aliases</b> "+strings.Join(al, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

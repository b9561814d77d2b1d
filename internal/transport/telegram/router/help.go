package router

import "strings"

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	order := m.order
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Available commands:")
	for _, c := range order {
		b.WriteString("\n/")
		if u := strings.TrimSpace(c.Usage); u != "" {
			b.WriteString(strings.TrimPrefix(u, "/"))
		} else {
			b.WriteString(c.Name)
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(" - ")
			b.WriteString(d)
		}
	}
	return b.String()
}

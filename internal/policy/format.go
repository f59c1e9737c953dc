package policy

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("4")).Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Bold(true).Width(22)
	offStyle    = lipgloss.NewStyle().Faint(true)
)

// Render returns a human-readable summary of p, shown before confirmation
// prompts and by get-config --format formatted.
func Render(p *Policy) string {
	var sb strings.Builder

	row := func(key string, value any) {
		sb.WriteString(keyStyle.Render(key))
		sb.WriteString(fmt.Sprint(value))
		sb.WriteByte('\n')
	}

	sb.WriteString(headerStyle.Render("PROGRAM"))
	sb.WriteByte('\n')
	row("Name", p.ProgramName())
	row("Type", p.Kind())
	row("Interface", p.Interface(""))
	token, ok := p.DefaultToken()
	if ok {
		row("Default action", token)
	} else {
		row("Default action", fmt.Sprintf("%s (unsupported %q)", token, p.DefaultAction))
	}
	if p.IsLocal() {
		row("Target", "localhost")
	} else {
		target := p.Target.Address()
		if p.Target.Username != "" {
			target = p.Target.Username + "@" + target
		}
		row("Target", target)
	}

	for _, name := range AllLists {
		sb.WriteByte('\n')
		sb.WriteString(headerStyle.Render(strings.ToUpper(string(name))))
		sb.WriteByte('\n')
		l := p.List(name)
		if l == nil || !l.Enabled {
			sb.WriteString(offStyle.Render("disabled"))
			sb.WriteByte('\n')
			continue
		}
		row("Max entries", l.MaxEntries)
		if name == Graylist && !l.Binary() {
			row("Action", l.Action+" (rate limited)")
			row("Frequency (ms)", l.Frequency)
			row("Fast packet threshold", l.FastPacketThreshold)
		} else {
			row("Action", fmt.Sprintf("%s -> %s", l.Action, l.Token()))
		}
		entries := p.PreloadFor(name)
		if len(entries) == 0 {
			row("Preload", "-")
		} else {
			row("Preload", strings.Join(entries, ", "))
		}
	}

	return sb.String()
}

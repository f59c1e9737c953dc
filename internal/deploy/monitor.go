package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"grimm.is/sieve/internal/mapdata"
	"grimm.is/sieve/internal/policy"
)

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(44)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Width(22)
	valueStyle = lipgloss.NewStyle().Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// Monitor polls every enabled map of a held program until ctx is done. The
// summary is printed again only when the number of distinct addresses
// changes.
func (o *Orchestrator) Monitor(ctx context.Context, r MapReader, p *policy.Policy) error {
	lists := p.EnabledLists()
	observed := make(map[policy.ListName]*mapdata.Observed, len(lists))
	for _, l := range lists {
		observed[l] = mapdata.NewObserved()
	}

	last := -1
	poll := func() {
		total := 0
		for _, l := range lists {
			records, err := r.Dump(string(l))
			o.opts.Metrics.RecordMapRead(string(l), len(records), err)
			if err != nil {
				log.Warn("map read failed", "map", l, "error", err)
			} else {
				observed[l].Add(records...)
			}
			total += observed[l].Len()
		}
		o.opts.Metrics.ObservedIPs.Set(float64(total))
		if total != last {
			fmt.Fprintln(o.opts.Out, renderSummary(lists, observed))
			last = total
		}
	}

	log.Info("monitoring maps", "program", p.ProgramName(), "interval", o.opts.MonitorInterval)
	poll()

	ticker := time.NewTicker(o.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("monitor stopped", "program", p.ProgramName())
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

func renderSummary(lists []policy.ListName, observed map[policy.ListName]*mapdata.Observed) string {
	if len(lists) == 0 {
		return boxStyle.Render(faintStyle.Render("No lists enabled."))
	}

	boxes := make([]string, 0, len(lists))
	for _, l := range lists {
		ips := observed[l].IPs()
		lastIP := faintStyle.Render("none")
		if len(ips) > 0 {
			lastIP = valueStyle.Render(ips[len(ips)-1])
		}

		var sb strings.Builder
		sb.WriteString(titleStyle.Render(strings.ToUpper(string(l))))
		sb.WriteByte('\n')
		sb.WriteString(labelStyle.Render("Distinct IPs"))
		sb.WriteString(valueStyle.Render(fmt.Sprint(len(ips))))
		sb.WriteByte('\n')
		sb.WriteString(labelStyle.Render("Last IP"))
		sb.WriteString(lastIP)
		boxes = append(boxes, boxStyle.Render(sb.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}

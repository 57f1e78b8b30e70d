// Package render formats engine output for the terminal: day sections,
// the month activity calendar and project counts.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/ai-session-hub/internal/aggregate"
	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	remoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))

	// five-step activity scale for the calendar heat-map
	heatStyles = []lipgloss.Style{
		lipgloss.NewStyle().Faint(true),
		lipgloss.NewStyle().Foreground(lipgloss.Color("22")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	}
)

// Sections renders the grouped session list, newest day first.
func Sections(sections []filter.Section, width int) string {
	if len(sections) == 0 {
		return dimStyle.Render("no sessions") + "\n"
	}
	var b strings.Builder
	for _, sec := range sections {
		head := fmt.Sprintf("%s  %d sessions  %s  %d events",
			sec.DayKey, len(sec.Sessions), fmtDuration(sec.Duration), sec.Events)
		b.WriteString(headerStyle.Render(head))
		b.WriteString("\n")
		for _, r := range sec.Sessions {
			b.WriteString(sessionLine(r, width))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sessionLine(r session.Record, width int) string {
	name := r.Overlay.Title
	if name == "" {
		name = aggregate.DirBase(r.WorkingDir)
	}
	if name == "" {
		name = r.ID
	}

	src := string(r.Source.Kind)
	if r.Source.Locality == session.Remote {
		src = remoteStyle.Render(r.Source.String())
	}

	meta := fmt.Sprintf("%s  %dm %dt  %s",
		r.UpdatedAt.Format("15:04"), r.Messages, r.ToolCalls, src)
	line := "  " + titleStyle.Render(truncate(name, 40)) + "  " + dimStyle.Render(meta)
	if r.Overlay.Comment != "" {
		line += "  " + dimStyle.Render(truncate(r.Overlay.Comment, 30))
	}
	if width > 0 {
		line = truncate(line, width)
	}
	return line
}

// Calendar renders a month heat-map from a histogram: one row per
// week, day cells shaded by activity.
func Calendar(monthStart time.Time, hist aggregate.Histogram) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(monthStart.Format("January 2006")))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Mo Tu We Th Fr Sa Su"))
	b.WriteString("\n")

	peak := 0
	for _, n := range hist {
		if n > peak {
			peak = n
		}
	}

	// Monday-based leading gap
	lead := (int(monthStart.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", lead))
	col := lead

	days := monthStart.AddDate(0, 1, -1).Day()
	for d := 1; d <= days; d++ {
		cell := fmt.Sprintf("%2d", d)
		b.WriteString(heatStyle(hist[d], peak).Render(cell))
		col++
		if col%7 == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	if col%7 != 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func heatStyle(n, peak int) lipgloss.Style {
	if n <= 0 || peak <= 0 {
		return heatStyles[0]
	}
	idx := 1 + (n*(len(heatStyles)-2))/peak
	if idx >= len(heatStyles) {
		idx = len(heatStyles) - 1
	}
	return heatStyles[idx]
}

// Projects renders aggregate counts as an aligned table, visible over
// total per project.
func Projects(agg map[string]aggregate.Counts, names map[string]string) string {
	ids := make([]string, 0, len(agg))
	nameW := len("(unassigned)")
	for id := range agg {
		ids = append(ids, id)
		if w := runewidth.StringWidth(displayProject(id, names)); w > nameW {
			nameW = w
		}
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		c := agg[id]
		label := runewidth.FillRight(displayProject(id, names), nameW)
		b.WriteString(fmt.Sprintf("%s  %s\n",
			titleStyle.Render(label),
			totalStyle.Render(fmt.Sprintf("%d/%d", c.Visible, c.Total))))
	}
	return b.String()
}

func displayProject(id string, names map[string]string) string {
	if id == "" {
		return "(unassigned)"
	}
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/oriongate/sentryhive/pkg/sanitize"
)

// TopSources renders the top attacking source addresses by hit count,
// adapted from internal/tui/views/topips.go.
type TopSources struct {
	Entries      []*IPEntry
	Width        int
	VisibleCount int
}

func NewTopSources(width int) *TopSources {
	return &TopSources{Entries: make([]*IPEntry, 0), Width: width, VisibleCount: 25}
}

func (v *TopSources) Update(entries []*IPEntry) { v.Entries = entries }

func (v *TopSources) Render() string {
	green := lipgloss.NewStyle().Foreground(ColorPrimary)
	greenDim := lipgloss.NewStyle().Foreground(ColorPrimaryDim)
	amber := lipgloss.NewStyle().Foreground(ColorAmber)
	red := lipgloss.NewStyle().Foreground(ColorRed)
	dim := lipgloss.NewStyle().Foreground(ColorDim)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	text := lipgloss.NewStyle().Foreground(ColorText)

	if len(v.Entries) == 0 {
		return dim.Italic(true).Render("  No source addresses tracked")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(fmt.Sprintf(" %-3s %-17s %-12s %-10s %s",
		"#", "SOURCE", "HITS", "LAST", "KINDS")))
	lines = append(lines, dim.Render(strings.Repeat("─", v.Width)))

	maxHits := 0
	for _, e := range v.Entries {
		if e.HitCount > maxHits {
			maxHits = e.HitCount
		}
	}

	visible := v.Entries
	if len(visible) > v.VisibleCount {
		visible = visible[:v.VisibleCount]
	}

	for i, e := range visible {
		idx := muted.Render(fmt.Sprintf("%2d.", i+1))

		addr := sanitize.SanitizeIP(e.IP)
		if len(addr) > 17 {
			addr = addr[:14] + "..."
		}
		style := greenDim
		if maxHits > 0 && float64(e.HitCount)/float64(maxHits) > 0.7 {
			style = red.Bold(true)
		} else if maxHits > 0 && float64(e.HitCount)/float64(maxHits) > 0.4 {
			style = amber.Bold(true)
		} else if e.HitCount > 5 {
			style = green
		}

		barWidth := 6
		fillWidth := 0
		if maxHits > 0 {
			fillWidth = int(float64(e.HitCount) / float64(maxHits) * float64(barWidth))
		}
		if fillWidth > barWidth {
			fillWidth = barWidth
		}
		bar := strings.Repeat("█", fillWidth) + strings.Repeat("░", barWidth-fillWidth)
		hits := style.Render(fmt.Sprintf("%s %5s", bar, fmtLarge(int64(e.HitCount))))

		last := muted.Render(padRight(e.LastSeen, 10))

		var kinds []string
		for _, k := range e.Kinds {
			kinds = append(kinds, sanitize.SanitizeForTerminal(k))
		}
		kindsStr := strings.Join(kinds, ", ")
		maxLen := max(v.Width-50, 10)
		if len(kindsStr) > maxLen {
			kindsStr = kindsStr[:maxLen-3] + "..."
		}

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s",
			idx,
			style.Render(padRight(addr, 17)),
			hits,
			last,
			text.Render(kindsStr),
		))
	}

	if len(v.Entries) > v.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d sources]", v.VisibleCount, len(v.Entries))))
	}

	return strings.Join(lines, "\n")
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	return s + strings.Repeat(" ", length-len(s))
}

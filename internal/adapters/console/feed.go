package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/pkg/sanitize"
)

// RecordFeed renders the scrolling list of canonical attack records,
// adapted from internal/tui/views/alertfeed.go's AlertList.
type RecordFeed struct {
	Records       []domain.CanonicalAttackRecord
	VisibleCount  int
	ScrollPos     int
	Width         int
	SelectedIndex int
}

func NewRecordFeed(visibleCount int) *RecordFeed {
	return &RecordFeed{VisibleCount: visibleCount, Width: 100, SelectedIndex: -1}
}

func (f *RecordFeed) Update(records []domain.CanonicalAttackRecord) { f.Records = records }

func (f *RecordFeed) ScrollUp() {
	if f.SelectedIndex < len(f.Records)-1 {
		f.SelectedIndex++
	}
	f.ensureSelectionVisible()
}

func (f *RecordFeed) ScrollDown() {
	if f.SelectedIndex > 0 {
		f.SelectedIndex--
	}
	f.ensureSelectionVisible()
}

func (f *RecordFeed) ensureSelectionVisible() {
	if len(f.Records) <= f.VisibleCount {
		f.ScrollPos = 0
		return
	}
	maxScroll := len(f.Records) - f.VisibleCount
	if f.ScrollPos < 0 {
		f.ScrollPos = 0
	}
	if f.ScrollPos > maxScroll {
		f.ScrollPos = maxScroll
	}
}

func (f *RecordFeed) Render() string {
	dim := lipgloss.NewStyle().Foreground(ColorDim)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	text := lipgloss.NewStyle().Foreground(ColorText)
	green := lipgloss.NewStyle().Foreground(ColorPrimary)
	red := lipgloss.NewStyle().Foreground(ColorRed)

	if len(f.Records) == 0 {
		return dim.Italic(true).Render("  No records")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(
		fmt.Sprintf("  %-8s  %-3s  %-15s  %-16s  %-3s  %s",
			"TIME", "SEV", "SOURCE", "KIND", "CAT", "DESCRIPTION")))
	lines = append(lines, dim.Render("  "+strings.Repeat("─", max(f.Width-4, 10))))

	startIdx := 0
	endIdx := len(f.Records)
	if len(f.Records) > f.VisibleCount {
		startIdx = len(f.Records) - f.VisibleCount - f.ScrollPos
		if startIdx < 0 {
			startIdx = 0
		}
		endIdx = startIdx + f.VisibleCount
		if endIdx > len(f.Records) {
			endIdx = len(f.Records)
		}
	}

	for i := endIdx - 1; i >= startIdx; i-- {
		rec := f.Records[i]
		isSelected := i == f.SelectedIndex
		prefix := "  "
		if isSelected {
			prefix = "▶ "
		}

		sevStyle := severityStyle(rec.Severity)
		ip := sanitize.SanitizeIP(rec.SourceAddress)
		if len(ip) > 15 {
			ip = ip[:12] + "..."
		}
		ipStyle := text
		if rec.Severity >= 5 {
			ipStyle = red.Bold(true)
		}

		kind := sanitize.SanitizeForTerminal(string(rec.Kind))
		if len(kind) > 16 {
			kind = kind[:13] + "..."
		}

		desc := sanitize.SanitizeForTerminal(rec.Description)
		maxLen := max(f.Width-58, 10)
		if len(desc) > maxLen {
			desc = desc[:maxLen-3] + "..."
		}

		line := fmt.Sprintf("%s%-8s  %s  %-15s  %-16s  %-3s   %s",
			prefix,
			dim.Render(rec.Timestamp.Format("15:04:05")),
			sevStyle.Render(fmt.Sprintf("%d", rec.Severity)),
			ipStyle.Render(fmt.Sprintf("%-15s", ip)),
			green.Render(fmt.Sprintf("%-16s", kind)),
			muted.Render(string(rec.Category)[:min(len(string(rec.Category)), 3)]),
			muted.Render(desc),
		)
		lines = append(lines, line)
	}

	if len(f.Records) > f.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]",
			f.ScrollPos+1, min(f.ScrollPos+f.VisibleCount, len(f.Records)), len(f.Records))))
	}

	return strings.Join(lines, "\n")
}

func (f *RecordFeed) GetSelected() *domain.CanonicalAttackRecord {
	if f.SelectedIndex >= 0 && f.SelectedIndex < len(f.Records) {
		return &f.Records[f.SelectedIndex]
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package console

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBar renders the bottom gauge line, adapted from
// internal/tui/views/statusbar.go: log-throughput/memory gauges become
// observation-rate/spool-depth/heartbeat gauges.
type StatusBar struct {
	Width      int
	Gauges     Gauges
	StartTime  time.Time
	lastUpdate time.Time
}

func NewStatusBar(width int) *StatusBar {
	return &StatusBar{Width: width, StartTime: time.Now()}
}

func (s *StatusBar) Update(g Gauges) {
	s.Gauges = g
	s.lastUpdate = time.Now()
}

func (s *StatusBar) Render() string {
	green := lipgloss.NewStyle().Foreground(ColorPrimary)
	amber := lipgloss.NewStyle().Foreground(ColorAmber)
	red := lipgloss.NewStyle().Foreground(ColorRed)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	border := lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a2a"))

	hb := s.heartbeatIcon(green, amber, red)

	rate := green
	if s.Gauges.ObservationsPerSecond > 20 {
		rate = red.Bold(true)
	} else if s.Gauges.ObservationsPerSecond > 5 {
		rate = amber.Bold(true)
	}

	spool := green
	if s.Gauges.SpoolDepth > 500 {
		spool = red.Bold(true)
	} else if s.Gauges.SpoolDepth > 50 {
		spool = amber.Bold(true)
	}

	hbFail := green
	if s.Gauges.HeartbeatFailures > 3 {
		hbFail = red.Bold(true)
	} else if s.Gauges.HeartbeatFailures > 0 {
		hbFail = amber.Bold(true)
	}

	uptime := time.Since(s.StartTime).Round(time.Second)
	sep := border.Render(" │ ")

	items := []string{
		hb,
		muted.Render("RATE:") + " " + rate.Render(fmt.Sprintf("%.1f/s", s.Gauges.ObservationsPerSecond)),
		muted.Render("OBS:") + " " + green.Render(fmtLarge(s.Gauges.TotalObservations)),
		muted.Render("RPT:") + " " + green.Render(fmtLarge(s.Gauges.TotalReports)),
		muted.Render("SUP:") + " " + green.Render(fmtLarge(s.Gauges.TotalSuppressed)),
		muted.Render("SPOOL:") + " " + spool.Render(fmt.Sprintf("%d", s.Gauges.SpoolDepth)),
		muted.Render("HB-FAIL:") + " " + hbFail.Render(fmt.Sprintf("%d", s.Gauges.HeartbeatFailures)),
		muted.Render("UP:") + " " + green.Render(fmtUptime(uptime)),
	}

	line := ""
	for i, item := range items {
		if i > 0 {
			line += sep
		}
		line += item
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(ColorBg).
		Render(line)
}

func (s *StatusBar) heartbeatIcon(active, warn, crit lipgloss.Style) string {
	elapsed := time.Since(s.lastUpdate)
	var icon string
	var style lipgloss.Style

	switch {
	case elapsed < 2*time.Second:
		icon, style = "●", active.Bold(true)
	case elapsed < 10*time.Second:
		icon, style = "○", warn
	default:
		icon, style = "○", crit
	}

	return lipgloss.NewStyle().Foreground(ColorMuted).Render("SYS:") + " " + style.Render(icon)
}

func fmtLarge(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func fmtUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

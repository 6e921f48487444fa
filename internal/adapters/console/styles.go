package console

import "github.com/charmbracelet/lipgloss"

var (
	ColorBg         = lipgloss.Color("#0a0a0a")
	ColorBgAlt      = lipgloss.Color("#0f0f0f")
	ColorBorder     = lipgloss.Color("#1a3a1a")
	ColorPrimary    = lipgloss.Color("#00ff41")
	ColorPrimaryDim = lipgloss.Color("#00aa2a")
	ColorPrimaryBg  = lipgloss.Color("#0a1f0a")
	ColorAmber      = lipgloss.Color("#ffb000")
	ColorRed        = lipgloss.Color("#ff3333")
	ColorCyan       = lipgloss.Color("#00b8ff")
	ColorCritical   = ColorRed
	ColorText       = lipgloss.Color("#e5e5e5")
	ColorMuted      = lipgloss.Color("#707070")
	ColorDim        = lipgloss.Color("#404040")
	ColorSelect     = lipgloss.Color("#003300")
	ColorSelectFg   = lipgloss.Color("#00ff41")
)

var Logo = lipgloss.NewStyle().Foreground(ColorPrimary).Render(`▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄
█ ╔═╗╔═╗╔╗╔╔╦╗╦═╗╦ ╦╦ ╦╦╦  ╦╔═╗ │ HONEY █
█ ╚═╗║╣ ║║║ ║ ╠╦╝╚╦╝╠═╣║╚╗╔╝║╣  │ POT    █
█ ╚═╝╚═╝╝╚╝ ╩ ╩╚═ ╩ ╩ ╩╩ ╚╝ ╚═╝ │ v1.0   █
▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀`)

// severityStyle colors a 1-5 severity value, matching the 1-5 range
// ClampSeverity enforces domain-wide.
func severityStyle(severity int) lipgloss.Style {
	switch {
	case severity >= 5:
		return lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	case severity == 4:
		return lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
	case severity == 3:
		return lipgloss.NewStyle().Foreground(ColorCyan)
	default:
		return lipgloss.NewStyle().Foreground(ColorPrimaryDim)
	}
}

package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent     = lipgloss.Color("#14B8A6")
	accentSoft = lipgloss.Color("#0F766E")
	green      = lipgloss.Color("#22C55E")
	yellow     = lipgloss.Color("#F59E0B")
	red        = lipgloss.Color("#EF4444")
	blue       = lipgloss.Color("#38BDF8")
	slate      = lipgloss.Color("#94A3B8")
	slateDim   = lipgloss.Color("#64748B")
	panelBg    = lipgloss.Color("#111827")
	bgDark     = lipgloss.Color("#0B1220")
	line       = lipgloss.Color("#1F2937")
	ink        = lipgloss.Color("#E5E7EB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ink).
			Background(bgDark).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderForeground(accent).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(1, 1)

	panelHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ink)

	mutedBadgeStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	keycapStyle = lipgloss.NewStyle().
			Foreground(ink).
			Background(lipgloss.Color("#1E293B")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(slateDim)

	okStyle   = lipgloss.NewStyle().Foreground(green)
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(red)
	warnStyle = lipgloss.NewStyle().Foreground(yellow)
)

// topicStyle colors an event's topic badge. Unrecognized topics fall back
// to the neutral blue used for informational bus traffic.
func topicStyle(topic string) lipgloss.Style {
	switch topic {
	case "claim.lost", "task.failed":
		return warnStyle
	case "pr.event":
		return lipgloss.NewStyle().Foreground(blue)
	case "polling.tick":
		return dimStyle
	case "gateway.decision":
		return lipgloss.NewStyle().Foreground(accent)
	default:
		return lipgloss.NewStyle().Foreground(blue)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

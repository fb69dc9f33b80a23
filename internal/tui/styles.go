package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorGood    = lipgloss.Color("#04B575")
	colorError   = lipgloss.Color("#FF5F87")
	colorWarn    = lipgloss.Color("#FFAF00")
	colorSubtle  = lipgloss.Color("#767676")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle  = lipgloss.NewStyle().Width(16).Foreground(colorSubtle)
	activeStyle = lipgloss.NewStyle().Foreground(colorGood)
	errStyle    = lipgloss.NewStyle().Foreground(colorError)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	subtleStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1)
)

var sparkLevels = []rune(" ▂▃▄▅▆▇█")

// sparkline maps values onto block characters scaled to the window maximum.
func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	var b strings.Builder
	for _, v := range values {
		if max <= 0 || v <= 0 {
			b.WriteRune(sparkLevels[0])
			continue
		}
		idx := int(v / max * float64(len(sparkLevels)-1))
		if idx >= len(sparkLevels) {
			idx = len(sparkLevels) - 1
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}

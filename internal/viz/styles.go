package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/heaterloop/internal/telemetry"
)

type styles struct {
	header lipgloss.Style
	panel  lipgloss.Style
	label  lipgloss.Style
	muted  lipgloss.Style
	value  lipgloss.Style
	active lipgloss.Style
	graph  lipgloss.Style
	help   lipgloss.Style
	editor lipgloss.Style
	err    lipgloss.Style
	theme  Theme
}

func newStyles(t Theme) styles {
	return styles{
		header: lipgloss.NewStyle().Foreground(t.Primary).Bold(true).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(t.Muted),
		panel: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(t.Muted).Padding(0, 2).Width(58),
		label:  lipgloss.NewStyle().Foreground(t.Muted).Width(14),
		muted:  lipgloss.NewStyle().Foreground(t.Muted),
		value:  lipgloss.NewStyle().Foreground(t.Text),
		active: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		graph:  lipgloss.NewStyle().Foreground(t.Secondary),
		help:   lipgloss.NewStyle().Foreground(t.Muted).Italic(true).MarginTop(1),
		editor: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1),
		err:    lipgloss.NewStyle().Foreground(t.Error),
		theme:  t,
	}
}

// state renders the link state in its status color.
func (s styles) state(st telemetry.State) string {
	c := s.theme.Muted
	switch st {
	case telemetry.Connected:
		c = s.theme.Success
	case telemetry.Connecting:
		c = s.theme.Warning
	case telemetry.Failed:
		c = s.theme.Error
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(strings.ToUpper(st.String()))
}

// ratioBar renders a 0..1 value as a filled bar.
func (s styles) ratioBar(ratio float64, width int) string {
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := s.theme.Error
	if ratio > 0.8 {
		c = s.theme.Success
	} else if ratio > 0.4 {
		c = s.theme.Warning
	}
	return lipgloss.NewStyle().Foreground(c).Render(bar)
}

// sparkline renders values sampled down to width cells.
func sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / rng * float64(len(chars)-1))
		b.WriteRune(chars[max(0, min(idx, len(chars)-1))])
	}
	return b.String()
}

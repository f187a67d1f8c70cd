package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/jobtrail/internal/pipeline"
)

// newMarker renders pipeline progress tags for w. Colors are only emitted
// when w is a terminal.
func newMarker(w io.Writer) pipeline.Marker {
	r := lipgloss.NewRenderer(w)
	styles := map[string]lipgloss.Style{
		"STEP":    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"}),
		"AUDIT":   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "6", Dark: "14"}),
		"STOP":    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "3", Dark: "11"}),
		"SKIP":    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "3", Dark: "11"}),
		"WARN":    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"}),
		"DRY RUN": r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "5", Dark: "13"}),
		"DONE":    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}),
		"INFO":    r.NewStyle().Faint(true),
	}
	return func(tag string) string {
		text := pipeline.PlainMarker(tag)
		key := tag
		if strings.HasPrefix(tag, "STEP") {
			key = "STEP"
		}
		if st, ok := styles[key]; ok {
			return st.Render(text)
		}
		return text
	}
}

// statusStyle colors a llm_status name for tables.
func statusStyle(w io.Writer) func(status string) string {
	r := lipgloss.NewRenderer(w)
	styles := map[string]lipgloss.Style{
		"NEW":     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"}),
		"PENDING": r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "3", Dark: "11"}),
		"DONE":    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}),
		"ERROR":   r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"}),
	}
	return func(status string) string {
		padded := status + strings.Repeat(" ", max(0, 8-len(status)))
		if st, ok := styles[status]; ok {
			return st.Render(padded)
		}
		return padded
	}
}

package status

import (
	"fmt"

	"github.com/AathavaleHarsh/issue-resolver/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

// Connection describes the stream link as shown in the status bar.
type Connection int

const (
	Submitting Connection = iota
	Connecting
	Streaming
	Reconnecting
	Ended
)

// Model holds the status bar state.
type Model struct {
	Conn    Connection
	State   string
	Reason  string
	Lines   int
	Attempt int
	Err     error
	Width   int
}

// New creates a status bar model.
func New() Model {
	return Model{State: "pending"}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var connStr string
	switch m.Conn {
	case Submitting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorPending).Render("◎ Submitting...")
	case Connecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	case Streaming:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Streaming")
	case Reconnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(
			fmt.Sprintf("○ Reconnecting (attempt %d)...", m.Attempt))
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render("○ Stream closed")
	}

	stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).
		Render(theme.StateGlyph(m.State) + " " + m.State)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + stateStr + sep + fmt.Sprintf("%d lines", m.Lines)
	if m.Reason != "" {
		content += sep + m.Reason
	}
	if m.Err != nil {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(m.Err.Error())
	}

	return lipgloss.NewStyle().
		Width(width-2).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// Package issue renders the header panel describing the issue being worked.
package issue

import (
	"fmt"
	"strings"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/theme"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	labelWidth = 10
	// maxDescriptionLines keeps a long description from crowding out the log.
	maxDescriptionLines = 8
	DefaultStyle        = "dark"
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)
)

// Model holds the issue header state. Issue is nil when the client attached
// to an existing session and never saw the issue itself.
type Model struct {
	Issue     *dispatch.Issue
	SessionID string
	// Style is a glamour standard style name.
	Style string

	width    int
	rendered string
}

// New creates a header for the given issue.
func New(issue *dispatch.Issue, style string) Model {
	if style == "" {
		style = DefaultStyle
	}
	return Model{Issue: issue, Style: style}
}

// SetWidth re-renders the description for a new terminal width.
func (m *Model) SetWidth(width int) {
	if width == m.width {
		return
	}
	m.width = width
	m.rendered = m.renderDescription()
}

// View renders the header panel.
func (m Model) View() string {
	width := max(m.width, 40)

	var b strings.Builder
	if m.Issue == nil {
		b.WriteString(styleTitle.Render("Attached to session " + shortID(m.SessionID)))
		return stylePanel.Width(width - 2).Render(b.String())
	}

	title := m.Issue.Title
	if m.Issue.Number > 0 {
		title = fmt.Sprintf("#%d %s", m.Issue.Number, title)
	}
	b.WriteString(styleTitle.Render(title) + "\n")

	if m.Issue.Repository != "" {
		writeRow(&b, "Repo", m.Issue.Repository)
	}
	if m.Issue.CreatorName != "" {
		writeRow(&b, "Creator", m.Issue.CreatorName)
	}
	if m.Issue.SourceURL != "" {
		writeRow(&b, "Source", m.Issue.SourceURL)
	}
	if len(m.Issue.Labels) > 0 {
		writeRow(&b, "Labels", strings.Join(m.Issue.Labels, ", "))
	}
	if m.SessionID != "" {
		writeRow(&b, "Session", shortID(m.SessionID))
	}
	if m.rendered != "" {
		b.WriteString(m.rendered)
	}

	return stylePanel.Width(width - 2).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderDescription() string {
	if m.Issue == nil || strings.TrimSpace(m.Issue.Description) == "" {
		return ""
	}
	wrap := max(m.width-6, 20)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return m.Issue.Description
	}
	out, err := r.Render(m.Issue.Description)
	if err != nil {
		return m.Issue.Description
	}
	lines := trimBlank(strings.Split(out, "\n"))
	if len(lines) > maxDescriptionLines {
		lines = append(lines[:maxDescriptionLines], theme.StyleDimmed.Render("  …"))
	}
	return strings.Join(lines, "\n")
}

// trimBlank drops the whitespace-only margin lines glamour puts around a
// document.
func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "…"
	}
	return id
}

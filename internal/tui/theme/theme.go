// Package theme provides the Lip Gloss color palette and reusable styles
// for the issue terminal client.
package theme

import (
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// Origin colors.
var (
	ColorAgent  = lipgloss.Color("#3b82f6")
	ColorError  = lipgloss.Color("#dc2626")
	ColorSystem = lipgloss.Color("#d1d5db")
)

// Session state colors.
var (
	ColorPending   = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#2563eb")
	ColorCompleted = lipgloss.Color("#16a34a")
	ColorFailed    = lipgloss.Color("#dc2626")
	ColorClosed    = lipgloss.Color("#374151")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// OriginColor returns the Lip Gloss color for a log line origin.
func OriginColor(o session.Origin) lipgloss.Color {
	switch o {
	case session.Agent:
		return ColorAgent
	case session.Error:
		return ColorError
	default:
		return ColorSystem
	}
}

// OriginBadge returns the short tag drawn in front of a log line.
func OriginBadge(o session.Origin) string {
	switch o {
	case session.Agent:
		return lipgloss.NewStyle().Foreground(ColorAgent).Render("[A]")
	case session.Error:
		return lipgloss.NewStyle().Foreground(ColorError).Bold(true).Render("[!]")
	default:
		return lipgloss.NewStyle().Foreground(ColorDimmed).Render("[·]")
	}
}

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "pending":
		return ColorPending
	case "running":
		return ColorRunning
	case "completed":
		return ColorCompleted
	case "failed":
		return ColorFailed
	case "closed":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a session state name.
func StateGlyph(state string) string {
	switch state {
	case "pending":
		return "◎"
	case "running":
		return "●>"
	case "completed":
		return "✓"
	case "failed":
		return "✗"
	case "closed":
		return "○"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)
)

package client

import (
	"strings"

	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
)

// Line is one log frame as received from the stream.
type Line struct {
	Origin session.Origin
	Text   string
}

// ParseFrame recovers the origin of a text frame from its prefix.
func ParseFrame(frame string) Line {
	switch {
	case strings.HasPrefix(frame, wire.PrefixAgent):
		return Line{Origin: session.Agent, Text: strings.TrimPrefix(frame, wire.PrefixAgent)}
	case strings.HasPrefix(frame, wire.PrefixError):
		return Line{Origin: session.Error, Text: strings.TrimPrefix(frame, wire.PrefixError)}
	default:
		return Line{Origin: session.System, Text: frame}
	}
}

// --- Bubble Tea messages ---

// SubmittedMsg is sent once the server accepted an issue.
type SubmittedMsg struct {
	SessionID string
	Message   string
}

// SubmitFailedMsg is sent when the issue could not be submitted.
type SubmitFailedMsg struct{ Err error }

// StreamOpenedMsg is sent when the log stream connects. The server replays
// the whole log on every attach.
type StreamOpenedMsg struct{}

// LineMsg delivers one log line.
type LineMsg struct{ Line Line }

// StreamClosedMsg is sent when the stream ends. Code and Reason come from
// the server's close frame; Err is set instead when the connection failed.
type StreamClosedMsg struct {
	Code   int
	Reason string
	Err    error
}

// CancelledMsg reports the result of a cancel request.
type CancelledMsg struct{ Err error }

// SessionInfoMsg carries a session snapshot from the REST API.
type SessionInfoMsg struct {
	Info *session.Info
	Err  error
}

// Package wire holds the message shapes and stream conventions shared by the
// server and its clients.
package wire

import (
	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
)

// Application close codes sent on the log stream. Normal completion uses
// websocket.CloseNormalClosure and shutdown uses websocket.CloseGoingAway.
const (
	CloseUnknownSession  = 4404
	CloseAlreadyAttached = 4409
)

const (
	PrefixAgent = "AGENT: "
	PrefixError = "ERROR: "
)

// FormatEvent renders an event as the text of one stream frame. Terminal
// markers are not sent as frames and report false.
func FormatEvent(ev session.LogEvent) (string, bool) {
	switch ev.Origin {
	case session.Agent:
		return PrefixAgent + ev.Content, true
	case session.Error:
		return PrefixError + ev.Content, true
	case session.Done:
		return "", false
	default:
		return ev.Content, true
	}
}

type ProcessIssueRequest struct {
	Issue dispatch.Issue `json:"issue"`
}

type ProcessIssueResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

package session

import (
	"encoding/json"
	"time"
)

// State is a session's lifecycle position. Transitions only move forward:
// Pending -> Running -> {Completed|Failed} -> Closed.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	Closed
)

var stateNames = map[State]string{
	Pending:   "pending",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	Closed:    "closed",
}

var stateFromName = map[string]State{
	"pending":   Pending,
	"running":   Running,
	"completed": Completed,
	"failed":    Failed,
	"closed":    Closed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether no further events are accepted.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed || s == Closed
}

// canTransition enforces forward-only movement through the lifecycle.
func canTransition(from, to State) bool {
	switch from {
	case Pending:
		return to == Running || to == Failed || to == Closed
	case Running:
		return to == Completed || to == Failed || to == Closed
	case Completed, Failed:
		return to == Closed
	}
	return false
}

// Info is a point-in-time snapshot of a session, safe to retain and encode.
// ID is the session token itself and is only filled in for callers that
// already hold it; Ref is a non-secret fingerprint safe to show anyone.
type Info struct {
	ID                 string     `json:"sessionId,omitempty"`
	Ref                string     `json:"ref"`
	State              State      `json:"state"`
	Events             int        `json:"events"`
	SubscriberAttached bool       `json:"subscriberAttached"`
	CreatedAt          time.Time  `json:"createdAt"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
}

package session

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// Origin tags who produced a LogEvent.
type Origin int

const (
	System Origin = iota
	Agent
	Error
	Done // terminal marker appended when the executor finishes
)

var originNames = map[Origin]string{
	System: "system",
	Agent:  "agent",
	Error:  "error",
	Done:   "done",
}

var originFromName = map[string]Origin{
	"system": System,
	"agent":  Agent,
	"error":  Error,
	"done":   Done,
}

func (o Origin) String() string {
	if s, ok := originNames[o]; ok {
		return s
	}
	return "unknown"
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Origin) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := originFromName[s]
	if !ok {
		return fmt.Errorf("unknown origin %q", s)
	}
	*o = v
	return nil
}

// LogEvent is one ordered unit of streamed output. Seq is assigned by the
// session at append time and is the only ordering key.
type LogEvent struct {
	Seq     uint64    `json:"seq"`
	Origin  Origin    `json:"origin"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// truncateContent bounds content to max bytes, cutting on a rune boundary and
// appending a marker that says how much was dropped. max <= 0 disables the
// bound.
func truncateContent(content string, max int) (string, bool) {
	if max <= 0 || len(content) <= max {
		return content, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	dropped := len(content) - cut
	return fmt.Sprintf("%s …[truncated %d bytes]", content[:cut], dropped), true
}

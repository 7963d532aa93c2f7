package session

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is an event to be appended; the session assigns Seq and Time.
type Entry struct {
	Origin  Origin
	Content string
}

// Session is the server-side state for one issue-processing request: an
// append-only event buffer with live-tail delivery to at most one attached
// cursor. All mutation is serialized by the session's own lock.
type Session struct {
	id            string
	createdAt     time.Time
	maxEventBytes int
	logger        *zap.Logger
	onTerminal    func(*Session)

	mu         sync.Mutex
	state      State
	events     []LogEvent
	notify     chan struct{} // closed and replaced on every change
	attached   *Cursor
	finishedAt time.Time
	idleTimer  *time.Timer
}

func newSession(id string, maxEventBytes int, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:            id,
		createdAt:     time.Now(),
		maxEventBytes: maxEventBytes,
		logger:        logger.With(zap.String("session", Redact(id))),
		state:         Pending,
		notify:        make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of stored events.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Events returns a copy of the buffered events.
func (s *Session) Events() []LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:                 s.id,
		Ref:                Redact(s.id),
		State:              s.state,
		Events:             len(s.events),
		SubscriberAttached: s.attached != nil,
		CreatedAt:          s.createdAt,
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		info.FinishedAt = &t
	}
	return info
}

// Start moves a pending session to Running.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(Running)
}

// Append stores an event and wakes the attached cursor. Once the session is
// terminal the call is a no-op and returns false; a cancelled executor may
// still emit after the fact and must not be able to change the history.
func (s *Session) Append(origin Origin, content string) (LogEvent, bool) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("dropping event for terminal session",
			zap.Stringer("state", state),
			zap.Stringer("origin", origin))
		return LogEvent{}, false
	}
	ev := s.appendLocked(origin, content)
	s.wakeLocked()
	s.mu.Unlock()
	return ev, true
}

// Finish appends the final entries and moves the session to outcome
// (Completed or Failed) in one step, so a cursor never observes the terminal
// state without the events that explain it. It returns false if the session
// was already terminal.
func (s *Session) Finish(outcome State, final ...Entry) bool {
	if outcome != Completed && outcome != Failed {
		return false
	}
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	for _, e := range final {
		s.appendLocked(e.Origin, e.Content)
	}
	s.transitionLocked(outcome)
	s.finishedAt = time.Now()
	s.wakeLocked()
	hook := s.onTerminal
	s.mu.Unlock()

	s.logger.Info("session finished", zap.Stringer("state", outcome))
	if hook != nil {
		hook(s)
	}
	return true
}

// Close moves the session to Closed, ends any live cursor and drops the
// subscriber. Subsequent appends are ignored.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transitionLocked(Closed) {
		return false
	}
	if s.finishedAt.IsZero() {
		s.finishedAt = time.Now()
	}
	s.attached = nil
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.wakeLocked()
	return true
}

// Subscribe returns a non-exclusive cursor that replays from sequence 0.
func (s *Session) Subscribe() *Cursor {
	return &Cursor{s: s}
}

// Attach returns the session's exclusive cursor. Only one may be live at a
// time; a second attempt fails with ErrAlreadyAttached and leaves the first
// untouched.
func (s *Session) Attach() (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil, ErrSessionClosed
	}
	if s.attached != nil {
		return nil, ErrAlreadyAttached
	}
	c := &Cursor{s: s, exclusive: true}
	s.attached = c
	return c, nil
}

func (s *Session) appendLocked(origin Origin, content string) LogEvent {
	content, truncated := truncateContent(content, s.maxEventBytes)
	if truncated {
		s.logger.Warn("event content truncated", zap.Int("limit", s.maxEventBytes))
	}
	ev := LogEvent{
		Seq:     uint64(len(s.events)),
		Origin:  origin,
		Content: content,
		Time:    time.Now(),
	}
	s.events = append(s.events, ev)
	return ev
}

func (s *Session) transitionLocked(to State) bool {
	if !canTransition(s.state, to) {
		return false
	}
	s.state = to
	return true
}

func (s *Session) wakeLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Cursor is a subscriber's view into a session's history plus its live tail.
type Cursor struct {
	s         *Session
	exclusive bool

	// guarded by s.mu
	next    int
	closed  bool
	drained bool
}

// Next returns the next event in sequence order, blocking until one is
// appended. It returns io.EOF once a terminal session has been fully
// delivered or the session is closed, and ctx.Err() if ctx ends first.
func (c *Cursor) Next(ctx context.Context) (LogEvent, error) {
	s := c.s
	for {
		s.mu.Lock()
		if c.closed {
			s.mu.Unlock()
			return LogEvent{}, ErrCursorClosed
		}
		if s.state == Closed {
			s.mu.Unlock()
			return LogEvent{}, io.EOF
		}
		if c.next < len(s.events) {
			ev := s.events[c.next]
			c.next++
			s.mu.Unlock()
			return ev, nil
		}
		if s.state.IsTerminal() {
			c.drained = true
			s.mu.Unlock()
			return LogEvent{}, io.EOF
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return LogEvent{}, ctx.Err()
		}
	}
}

// Drained reports whether the cursor delivered every event of a terminal
// session.
func (c *Cursor) Drained() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.drained
}

// Close detaches the cursor. It is safe to call more than once.
func (c *Cursor) Close() {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.exclusive && s.attached == c {
		s.attached = nil
	}
	s.wakeLocked()
}

// Session returns the session the cursor reads from.
func (c *Cursor) Session() *Session { return c.s }

package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// idBytes is the entropy behind every session id (256 bits).
	idBytes = 32

	DefaultIdleWindow    = 5 * time.Minute
	DefaultMaxEventBytes = 16 * 1024
)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// IdleWindow is how long a terminal session without a subscriber is
	// kept before eviction.
	IdleWindow time.Duration
	// MaxEventBytes bounds a single event's content; longer content is
	// truncated with a marker. Zero disables the bound.
	MaxEventBytes int
	Logger        *zap.Logger
	// Entropy is the id source; crypto/rand when nil.
	Entropy io.Reader
}

// Registry is the process-wide table of live sessions. Its lock covers only
// the id map; session state is guarded per session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleWindow    time.Duration
	maxEventBytes int
	entropy       io.Reader
	logger        *zap.Logger
}

func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		IdleWindow:    DefaultIdleWindow,
		MaxEventBytes: DefaultMaxEventBytes,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Entropy == nil {
		opts.Entropy = rand.Reader
	}
	return &Registry{
		sessions:      make(map[string]*Session),
		idleWindow:    opts.IdleWindow,
		maxEventBytes: opts.MaxEventBytes,
		entropy:       opts.Entropy,
		logger:        opts.Logger.With(zap.String("component", "registry")),
	}
}

// Create allocates a fresh id and registers a Pending session under it. The
// only failure is an unreadable entropy source.
func (r *Registry) Create() (*Session, error) {
	for {
		id, err := r.newID()
		if err != nil {
			return nil, fmt.Errorf("generating session id: %w", err)
		}

		r.mu.Lock()
		if _, exists := r.sessions[id]; exists {
			r.mu.Unlock()
			continue
		}
		s := newSession(id, r.maxEventBytes, r.logger)
		s.onTerminal = r.armIdle
		r.sessions[id] = s
		count := len(r.sessions)
		r.mu.Unlock()

		r.logger.Debug("session created",
			zap.String("session", Redact(id)),
			zap.Int("live", count))
		return s, nil
	}
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Evict removes the session and closes it. Unknown ids are ignored.
func (r *Registry) Evict(id string) {
	r.evict(id, "explicit")
}

func (r *Registry) evict(id, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	r.logger.Info("session evicted",
		zap.String("session", Redact(id)),
		zap.String("reason", reason),
		zap.Int("live", count))
}

// Detach closes a cursor obtained from Attach and applies the eviction
// policy: a terminal session whose subscriber drained every event is evicted
// at once; otherwise a terminal session waits out the idle window.
func (r *Registry) Detach(c *Cursor) {
	c.Close()
	s := c.Session()
	state := s.State()
	switch {
	case state == Closed:
	case state.IsTerminal() && c.Drained():
		r.evict(s.ID(), "drained")
	case state.IsTerminal():
		r.armIdle(s)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of every live session, oldest first. Tokens are
// left out; entries are identified by Ref only.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	result := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		info.ID = ""
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Close evicts every session.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.evict(id, "shutdown")
	}
}

// armIdle (re)starts the idle eviction timer of a terminal session.
func (r *Registry) armIdle(s *Session) {
	if r.idleWindow <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(r.idleWindow, func() { r.idleExpired(s) })
}

func (r *Registry) idleExpired(s *Session) {
	s.mu.Lock()
	attached := s.attached != nil
	s.idleTimer = nil
	s.mu.Unlock()
	if attached {
		// re-armed by Detach
		return
	}
	r.evict(s.ID(), "idle")
}

func (r *Registry) newID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := io.ReadFull(r.entropy, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

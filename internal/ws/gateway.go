package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 512
)

var (
	errPeerGone     = errors.New("peer disconnected")
	errShuttingDown = errors.New("server shutting down")
)

type GatewayOptions struct {
	// CheckOrigin vets the Origin header of upgrade requests; nil accepts
	// same-host and loopback origins only.
	CheckOrigin  func(r *http.Request) bool
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Gateway streams one session's log to one WebSocket subscriber. Incoming
// frames are read only to notice disconnects and answer pings.
type Gateway struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	opts     GatewayOptions
	logger   *zap.Logger

	mu       sync.Mutex
	streams  map[string]context.CancelCauseFunc
	closing  bool
	inflight sync.WaitGroup
}

func NewGateway(registry *session.Registry, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{
		PingPeriod:   pingPeriod,
		PongWait:     pongWait,
		WriteTimeout: writeWait,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = newOriginPolicy(nil).check
	}
	return &Gateway{
		registry: registry,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		opts:     opts,
		logger:   opts.Logger.With(zap.String("component", "gateway")),
		streams:  make(map[string]context.CancelCauseFunc),
	}
}

// Serve upgrades the request and streams session id to the peer until the
// session finishes, the peer leaves or the gateway shuts down.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, id string) {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	g.streams[connID] = cancel
	g.inflight.Add(1)
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.streams, connID)
		g.mu.Unlock()
		g.inflight.Done()
	}()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := g.logger.With(
		zap.String("conn", connID),
		zap.String("session", session.Redact(id)))

	s, err := g.registry.Get(id)
	if err != nil {
		logger.Info("stream rejected", zap.Error(err))
		g.closeWith(conn, wire.CloseUnknownSession, "unknown session")
		return
	}
	cur, err := s.Attach()
	switch {
	case errors.Is(err, session.ErrAlreadyAttached):
		logger.Info("stream rejected", zap.Error(err))
		g.closeWith(conn, wire.CloseAlreadyAttached, "already attached")
		return
	case err != nil:
		logger.Info("stream rejected", zap.Error(err))
		g.closeWith(conn, wire.CloseUnknownSession, "unknown session")
		return
	}
	defer g.registry.Detach(cur)

	logger.Info("subscriber attached")
	go g.readPump(conn, cancel)
	go g.pingLoop(ctx, conn)

	code, reason, err := g.forward(ctx, conn, cur)
	switch {
	case err != nil:
		logger.Info("subscriber detached", zap.Error(err))
	default:
		g.closeWith(conn, code, reason)
		logger.Info("stream closed", zap.Int("code", code), zap.String("reason", reason))
	}
}

// forward writes events until the cursor ends. It returns the close frame
// to send, or an error when the connection is already unusable.
func (g *Gateway) forward(ctx context.Context, conn *websocket.Conn, cur *session.Cursor) (int, string, error) {
	var reason string
	for {
		ev, err := cur.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			if cur.Drained() {
				return websocket.CloseNormalClosure, reason, nil
			}
			return websocket.CloseGoingAway, "session closed", nil
		case err != nil:
			cause := context.Cause(ctx)
			if errors.Is(cause, errShuttingDown) {
				return websocket.CloseGoingAway, "server shutting down", nil
			}
			if cause != nil {
				return 0, "", cause
			}
			return 0, "", err
		}

		text, ok := wire.FormatEvent(ev)
		if !ok {
			reason = ev.Content
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			return 0, "", err
		}
	}
}

// readPump discards inbound frames; its only job is to process control
// frames and notice when the peer goes away.
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelCauseFunc) {
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel(errPeerGone)
			return
		}
	}
}

func (g *Gateway) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(g.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(g.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// maxCloseReason is the room left for a reason in a 125-byte control frame.
const maxCloseReason = 123

func (g *Gateway) closeWith(conn *websocket.Conn, code int, reason string) {
	if len(reason) > maxCloseReason {
		cut := maxCloseReason
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.opts.WriteTimeout))
}

// Active returns the number of open streams.
func (g *Gateway) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.streams)
}

// Shutdown closes every open stream with a going-away frame and waits for
// the handlers to return or ctx to end. Sessions are left untouched.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	for _, cancel := range g.streams {
		cancel(errShuttingDown)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

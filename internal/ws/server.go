package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AathavaleHarsh/issue-resolver/internal/config"
	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/frontend"
	"github.com/AathavaleHarsh/issue-resolver/internal/health"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

// Server exposes the HTTP API and the log stream endpoint.
type Server struct {
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	gateway    *Gateway
	health     *health.Checker
	origins    *originPolicy
	logger     *zap.Logger
	httpServer *http.Server
}

func NewServer(cfg *config.Config, registry *session.Registry, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := newOriginPolicy(cfg.Server.AllowedOrigins)
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		origins:    origins,
		logger:     logger.With(zap.String("component", "http")),
		gateway: NewGateway(registry, func(o *GatewayOptions) {
			o.CheckOrigin = origins.check
			o.Logger = logger
		}),
		health: health.NewChecker(registry.Len, dispatcher.Running),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.Routes(),
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.origins.cors)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/", s.handleWelcome)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process-issue", s.handleProcessIssue)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Delete("/{sessionID}", s.handleCancelSession)
		})
	})

	r.Get("/ws/issue-logs/{sessionID}", s.handleStream)

	r.Get("/console", http.RedirectHandler("/console/", http.StatusMovedPermanently).ServeHTTP)
	r.Handle("/console/*", http.StripPrefix("/console", frontend.Handler()))
	return r
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes open log streams with a
// going-away frame and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	streamErr := s.gateway.Shutdown(ctx)
	httpErr := s.httpServer.Shutdown(ctx)
	return errors.Join(streamErr, httpErr)
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WelcomeResponse{
		Message: "Issue resolver is running. POST an issue to /api/process-issue, then stream /ws/issue-logs/{sessionId}. A browser console is served at /console/.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Report())
}

func (s *Server) handleProcessIssue(w http.ResponseWriter, r *http.Request) {
	var req wire.ProcessIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Issue.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.dispatcher.Submit(req.Issue)
	switch {
	case errors.Is(err, dispatch.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start processing")
		return
	}

	writeJSON(w, http.StatusAccepted, wire.ProcessIssueResponse{
		Message:   fmt.Sprintf("Processing started for issue: %s", req.Issue.Title),
		SessionID: id,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	err := s.dispatcher.Cancel(chi.URLParam(r, "sessionID"))
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.gateway.Serve(w, r, chi.URLParam(r, "sessionID"))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}

package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AathavaleHarsh/issue-resolver/internal/config"
	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv        *httptest.Server
	server     *Server
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
}

func newTestEnv(t *testing.T, exec dispatch.Executor, mutate ...func(c *config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	reg := session.NewRegistry(func(o *session.RegistryOptions) {
		o.IdleWindow = cfg.Sessions.IdleEviction
	})
	d := dispatch.New(reg, exec, func(o *dispatch.Options) {
		o.Timeout = cfg.Executor.Timeout
	})
	s := NewServer(cfg, reg, d, nil)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.gateway.Shutdown(ctx)
		srv.Close()
		_ = d.Shutdown(ctx)
		reg.Close()
	})
	return &testEnv{srv: srv, server: s, registry: reg, dispatcher: d}
}

func (e *testEnv) submit(t *testing.T, issue dispatch.Issue) string {
	t.Helper()
	body, err := json.Marshal(wire.ProcessIssueRequest{Issue: issue})
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+"/api/process-issue", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out wire.ProcessIssueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func (e *testEnv) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/issue-logs/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilClose collects text frames until the server closes the stream.
func readUntilClose(t *testing.T, conn *websocket.Conn) ([]string, *websocket.CloseError) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frames []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
			return frames, ce
		}
		frames = append(frames, string(data))
	}
}

func TestStream_SuccessfulRun(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.Agent, "a")
		emit(session.Agent, "b")
		return nil
	}))

	id := env.submit(t, dispatch.Issue{Title: "Bug", Description: "d", CreatorName: "u", SourceURL: "x"})
	sess, err := env.registry.Get(id)
	require.NoError(t, err)

	frames, ce := readUntilClose(t, env.dial(t, id))
	assert.Equal(t, []string{"AGENT: a", "AGENT: b"}, frames)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, dispatch.MsgComplete, ce.Text)

	require.Eventually(t, func() bool {
		_, err := env.registry.Get(id)
		return errors.Is(err, session.ErrUnknownSession)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Closed, sess.State())
}

func TestStream_ExecutorErrorAfterOneEvent(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.Agent, "x")
		return errors.New("boom")
	}))

	id := env.submit(t, dispatch.Issue{Title: "Bug"})
	sess, err := env.registry.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.State() == session.Failed }, time.Second, 5*time.Millisecond)

	frames, ce := readUntilClose(t, env.dial(t, id))
	assert.Equal(t, []string{"AGENT: x", "ERROR: boom"}, frames)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, dispatch.MsgFailed, ce.Text)
}

func TestStream_SystemEventsUnprefixed(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.System, "plain")
		return nil
	}))
	id := env.submit(t, dispatch.Issue{Title: "Bug"})
	frames, _ := readUntilClose(t, env.dial(t, id))
	assert.Equal(t, []string{"plain"}, frames)
}

func TestStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		return nil
	}))

	frames, ce := readUntilClose(t, env.dial(t, "does-not-exist"))
	assert.Empty(t, frames)
	assert.Equal(t, wire.CloseUnknownSession, ce.Code)
	assert.Equal(t, "unknown session", ce.Text)
}

func TestStream_SecondSubscriberRejected(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.Agent, "before")
		<-release
		emit(session.Agent, "after")
		return nil
	}))

	id := env.submit(t, dispatch.Issue{Title: "Bug"})
	first := env.dial(t, id)
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := first.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AGENT: before", string(data))

	frames, ce := readUntilClose(t, env.dial(t, id))
	assert.Empty(t, frames)
	assert.Equal(t, wire.CloseAlreadyAttached, ce.Code)

	close(release)
	frames, ce = readUntilClose(t, first)
	assert.Equal(t, []string{"AGENT: after"}, frames)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

func TestStream_DisconnectKeepsSessionAndReplays(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.Agent, "one")
		<-release
		emit(session.Agent, "two")
		return nil
	}))

	id := env.submit(t, dispatch.Issue{Title: "Bug"})
	sess, err := env.registry.Get(id)
	require.NoError(t, err)

	conn := env.dial(t, id)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AGENT: one", string(data))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return !sess.Info().SubscriberAttached
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Running, sess.State())

	close(release)
	frames, ce := readUntilClose(t, env.dial(t, id))
	assert.Equal(t, []string{"AGENT: one", "AGENT: two"}, frames)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

func TestStream_ShutdownSendsGoingAway(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		emit(session.Agent, "started")
		<-ctx.Done()
		return ctx.Err()
	}))

	id := env.submit(t, dispatch.Issue{Title: "Bug"})
	conn := env.dial(t, id)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.server.gateway.Shutdown(ctx)
	}()

	frames, ce := readUntilClose(t, conn)
	assert.Empty(t, frames)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
}

func TestStream_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		return nil
	}))
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/issue-logs/any"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProcessIssue_MissingTitle(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		return nil
	}))

	for _, body := range []string{`{"issue": {"description": "no title"}}`, `not json`} {
		resp, err := http.Post(env.srv.URL+"/api/process-issue", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Equal(t, 0, env.registry.Len())
}

func TestSessionsAPI(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	id := env.submit(t, dispatch.Issue{Title: "Bug"})

	resp, err := http.Get(env.srv.URL + "/api/sessions/" + id)
	require.NoError(t, err)
	var info session.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, id, info.ID)
	assert.Equal(t, session.Running, info.State)

	assert.Equal(t, session.Redact(id), info.Ref)

	resp, err = http.Get(env.srv.URL + "/api/sessions")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.NotContains(t, string(body), id, "the listing must not leak session tokens")
	var list []session.Info
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].ID)
	assert.Equal(t, session.Redact(id), list[0].Ref)

	del := func(id string) int {
		req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/sessions/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, del(id))
	assert.Equal(t, http.StatusConflict, del(id))
	assert.Equal(t, http.StatusNotFound, del("missing"))

	resp, err = http.Get(env.srv.URL + "/api/sessions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndWelcome(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		return nil
	}))

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, "ok", report["status"])
	assert.Contains(t, report, "sessions")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(env.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The bare path redirects to the embedded console.
	resp, err = http.Get(env.srv.URL + "/console")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Issue Resolver Console")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, dispatch.ExecutorFunc(func(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
		return nil
	}), func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"http://app.example"}
	})

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/process-issue", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://other.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
	tea "github.com/charmbracelet/bubbletea"
)

// HTTPClient makes REST calls to the issue resolver.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit sends POST /api/process-issue.
func (c *HTTPClient) Submit(ctx context.Context, issue dispatch.Issue) (*wire.ProcessIssueResponse, error) {
	var out wire.ProcessIssueResponse
	if err := c.do(ctx, http.MethodPost, "/api/process-issue", wire.ProcessIssueRequest{Issue: issue}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session fetches /api/sessions/{id}.
func (c *HTTPClient) Session(ctx context.Context, id string) (*session.Info, error) {
	var out session.Info
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel sends DELETE /api/sessions/{id}.
func (c *HTTPClient) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// SubmitCmd wraps Submit for the Bubble Tea runtime.
func (c *HTTPClient) SubmitCmd(ctx context.Context, issue dispatch.Issue) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.Submit(ctx, issue)
		if err != nil {
			return SubmitFailedMsg{Err: err}
		}
		return SubmittedMsg{SessionID: resp.SessionID, Message: resp.Message}
	}
}

// SessionCmd wraps Session for the Bubble Tea runtime.
func (c *HTTPClient) SessionCmd(ctx context.Context, id string) tea.Cmd {
	return func() tea.Msg {
		info, err := c.Session(ctx, id)
		return SessionInfoMsg{Info: info, Err: err}
	}
}

// CancelCmd wraps Cancel for the Bubble Tea runtime.
func (c *HTTPClient) CancelCmd(ctx context.Context, id string) tea.Cmd {
	return func() tea.Msg {
		return CancelledMsg{Err: c.Cancel(ctx, id)}
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, errorText(resp.Body))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// errorText prefers the server's JSON error message over the raw body.
func errorText(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e wire.ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

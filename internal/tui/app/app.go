package app

import (
	"context"
	"strings"
	"time"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/client"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/theme"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/views/issue"
	"github.com/AathavaleHarsh/issue-resolver/internal/tui/views/status"
	"github.com/AathavaleHarsh/issue-resolver/internal/wire"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

const maxReconnects = 5

// Options configures the root model. Exactly one of Issue or SessionID is
// expected: an issue is submitted first, a session id is attached to
// directly.
type Options struct {
	BaseURL   string
	Issue     *dispatch.Issue
	SessionID string
	// MarkdownStyle is the glamour style used for the issue description.
	MarkdownStyle string
}

type reconnectMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	baseURL string
	http    *client.HTTPClient
	stream  *client.StreamClient
	issue   *dispatch.Issue
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int

	sessionID string
	lines     []client.Line
	rendered  []string
	follow    bool

	viewport  viewport.Model
	header    issue.Model
	statusBar status.Model
}

// New creates the root model.
func New(opts Options) (Model, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		baseURL:   opts.BaseURL,
		http:      client.NewHTTPClient(opts.BaseURL),
		issue:     opts.Issue,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		sessionID: opts.SessionID,
		follow:    true,
		viewport:  viewport.New(0, 0),
		header:    issue.New(opts.Issue, opts.MarkdownStyle),
		statusBar: status.New(),
	}
	m.header.SessionID = opts.SessionID
	if opts.SessionID != "" {
		stream, err := client.NewStreamClient(opts.BaseURL, opts.SessionID)
		if err != nil {
			cancel()
			return Model{}, err
		}
		m.stream = stream
		m.statusBar.Conn = status.Connecting
	}
	return m, nil
}

// Init submits the issue or attaches to the session.
func (m Model) Init() tea.Cmd {
	if m.stream != nil {
		return m.stream.Connect(m.ctx)
	}
	if m.issue != nil {
		return m.http.SubmitCmd(m.ctx, *m.issue)
	}
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd

	case client.SubmittedMsg:
		stream, err := client.NewStreamClient(m.baseURL, msg.SessionID)
		if err != nil {
			m.statusBar.Conn = status.Ended
			m.statusBar.Err = err
			return m, nil
		}
		m.sessionID = msg.SessionID
		m.header.SessionID = msg.SessionID
		m.stream = stream
		m.statusBar.Conn = status.Connecting
		m.resize()
		return m, m.stream.Connect(m.ctx)

	case client.SubmitFailedMsg:
		m.statusBar.Conn = status.Ended
		m.statusBar.State = "failed"
		m.statusBar.Err = msg.Err
		return m, nil

	case client.StreamOpenedMsg:
		m.statusBar.Conn = status.Streaming
		m.statusBar.Attempt = 0
		m.statusBar.Err = nil
		// Every attach replays the log from the start.
		m.lines = nil
		m.rendered = nil
		m.refresh()
		return m, tea.Batch(m.next(), m.http.SessionCmd(m.ctx, m.sessionID))

	case client.LineMsg:
		m.lines = append(m.lines, msg.Line)
		m.rendered = append(m.rendered, m.renderLine(msg.Line))
		m.refresh()
		return m, m.next()

	case client.SessionInfoMsg:
		if msg.Err == nil && msg.Info != nil && m.statusBar.Conn != status.Ended {
			m.statusBar.State = msg.Info.State.String()
		}
		return m, nil

	case client.StreamClosedMsg:
		return m.handleClosed(msg)

	case reconnectMsg:
		if m.stream == nil || m.ctx.Err() != nil {
			return m, nil
		}
		m.statusBar.Conn = status.Connecting
		return m, m.stream.Connect(m.ctx)

	case client.CancelledMsg:
		if msg.Err != nil {
			m.statusBar.Err = msg.Err
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleClosed(msg client.StreamClosedMsg) (tea.Model, tea.Cmd) {
	if m.ctx.Err() != nil {
		return m, nil
	}
	// A reconnect can race the server noticing the old connection is gone,
	// so an already-attached rejection then is retried like a drop.
	retry := msg.Err != nil ||
		(msg.Code == wire.CloseAlreadyAttached && m.statusBar.Attempt > 0)
	if retry {
		if m.statusBar.Attempt >= maxReconnects {
			m.statusBar.Conn = status.Ended
			m.statusBar.Err = msg.Err
			if msg.Err == nil {
				m.statusBar.Reason = msg.Reason
				m.statusBar.State = "unavailable"
			}
			return m, nil
		}
		m.statusBar.Attempt++
		m.statusBar.Conn = status.Reconnecting
		return m, tea.Tick(client.Backoff(m.statusBar.Attempt), func(time.Time) tea.Msg {
			return reconnectMsg{}
		})
	}

	m.statusBar.Conn = status.Ended
	m.statusBar.Reason = msg.Reason
	switch msg.Code {
	case websocket.CloseNormalClosure:
		if msg.Reason == dispatch.MsgComplete {
			m.statusBar.State = session.Completed.String()
		} else {
			m.statusBar.State = session.Failed.String()
		}
	case websocket.CloseGoingAway:
		if msg.Reason == "session closed" {
			m.statusBar.State = session.Closed.String()
		}
	case wire.CloseUnknownSession, wire.CloseAlreadyAttached:
		m.statusBar.State = "unavailable"
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.stream != nil {
			_ = m.stream.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		m.follow = true
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.sessionID == "" || m.statusBar.Conn == status.Ended {
			return m, nil
		}
		return m, m.http.CancelCmd(m.ctx, m.sessionID)
	}

	// j/k, arrows and paging are the viewport's own bindings.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m Model) next() tea.Cmd {
	if m.stream == nil {
		return nil
	}
	return m.stream.Next()
}

// resize lays the header, log and status bar out for the current window.
func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	m.header.SetWidth(m.width)
	m.statusBar.Width = m.width

	chrome := lipgloss.Height(m.header.View()) + lipgloss.Height(m.statusBar.View()) + 1
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 1)

	m.rendered = make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		m.rendered = append(m.rendered, m.renderLine(l))
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.statusBar.Lines = len(m.lines)
	m.viewport.SetContent(strings.Join(m.rendered, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderLine(l client.Line) string {
	style := lipgloss.NewStyle().Foreground(theme.OriginColor(l.Origin))
	if m.width > 8 {
		style = style.Width(m.width - 4)
	}
	return theme.OriginBadge(l.Origin) + " " + style.Render(l.Text)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	help := theme.StyleDimmed.Render("  " + m.keys.helpLine())
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		m.viewport.View(),
		m.statusBar.View(),
		help,
	)
}

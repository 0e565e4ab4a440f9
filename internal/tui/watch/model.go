package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
)

// Options tunes the view.
type Options struct {
	// PollInterval is the delay between polls of status, logs and usage.
	PollInterval time.Duration
	// LogLines is how many lines of output are fetched per poll.
	LogLines int
}

const (
	defaultPollInterval = 2 * time.Second
	defaultLogLines     = 200
	maxEventLog         = 50
)

type keyMap struct {
	Quit   key.Binding
	Follow key.Binding
}

var keys = keyMap{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Follow: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow output")),
}

// Model is the bubbletea model for the node watch view.
type Model struct {
	src  Source
	opts Options

	width  int
	height int

	node     NodeState
	job      job.Snapshot
	logs     viewport.Model
	follow   bool
	eventLog []events.Event
	lastID   int64

	ticker   Ticker
	activity Activity
	theme    Theme

	hubEvents chan events.Event
	lastError string
}

// New creates the watch model for src.
func New(src Source, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.LogLines <= 0 {
		opts.LogLines = defaultLogLines
	}
	return Model{
		src:       src,
		opts:      opts,
		node:      NodeState{Address: src.BaseURL()},
		logs:      viewport.New(0, 0),
		follow:    true,
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.src, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		poll(m.src, m.opts.LogLines),
		tick(time.Second),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Follow):
			m.follow = true
			m.logs.GotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		m.follow = m.logs.AtBottom()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogs()

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tick(time.Second)

	case pollMsg:
		m.ticker.Tick()
		m.node.LastCheck = msg.At
		if msg.Err != nil {
			m.node.Connected = false
			m.lastError = msg.Err.Error()
		} else {
			m.node.Connected = true
			m.node.Status = msg.Health.Status
			m.node.Usage = msg.Usage
			m.job = msg.Status
			m.setLogs(msg.Logs)
			m.lastError = ""
		}
		m.resizeLogs()
		src, lines := m.src, m.opts.LogLines
		return m, tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
			return poll(src, lines)()
		})

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(time.Now())
		return m, receiveNextEvent(m.hubEvents)

	case sseDisconnectedMsg:
		if msg.err != nil {
			m.lastError = "event stream: " + msg.err.Error()
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// The pending receiveNextEvent keeps reading the same channel.
		return m, subscribeToEvents(m.src, m.lastID, m.hubEvents)
	}

	return m, nil
}

func (m *Model) setLogs(text string) {
	m.logs.SetContent(text)
	if m.follow {
		m.logs.GotoBottom()
	}
}

// resizeLogs gives the output panel whatever height the other panels leave.
func (m *Model) resizeLogs() {
	if m.width == 0 {
		return
	}
	used := lipgloss.Height(m.renderTop()) + lipgloss.Height(m.renderBottom()) + 4
	m.logs.Width = max(m.width-8, 10)
	m.logs.Height = max(m.height-used, 3)
	if m.follow {
		m.logs.GotoBottom()
	}
}

func (m Model) renderTop() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(m.node, m.ticker, m.activity, m.theme, m.width),
		renderJob(m.job, m.theme, m.width),
	)
}

func (m Model) renderBottom() string {
	parts := []string{renderEventStream(m.eventLog, m.theme, m.width)}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	follow := ""
	if !m.follow {
		follow = " • [f] Follow"
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓/PgUp/PgDn] Scroll output"+follow))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.node.Address + "..."
	}

	title := m.theme.Title.Render("OUTPUT")
	body := m.logs.View()
	if strings.TrimSpace(body) == "" {
		body = m.theme.Dim.Render("  No output")
	}
	output := m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.renderTop(), output, m.renderBottom()),
	)
}

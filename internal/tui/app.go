// Package tui implements the bubbletea live-monitor client: a terminal
// dashboard that dials the Supervisor's Bus /monitor websocket endpoint
// (spec.md §4.10, §6) and renders the event stream as it arrives.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

const maxEventLog = 500

// App is the root bubbletea model for `agent-forge monitor`.
type App struct {
	url    string
	conn   *websocket.Conn
	err    error
	width  int
	height int

	events []eventMsg
	counts map[string]int
	paused bool
}

// NewApp constructs the TUI application pointed at a monitor endpoint URL
// (e.g. ws://127.0.0.1:8080/monitor).
func NewApp(url string) *App {
	return &App{url: url, counts: make(map[string]int)}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return connectCmd(a.url)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if a.conn != nil {
				a.conn.Close()
			}
			return a, tea.Quit
		case "c":
			a.events = nil
			a.counts = make(map[string]int)
		case " ":
			a.paused = !a.paused
		}

	case connectedMsg:
		a.conn = msg.conn
		a.err = nil
		return a, readCmd(a.conn)

	case disconnectedMsg:
		a.err = msg.err
		a.conn = nil
		return a, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return a, connectCmd(a.url)

	case eventMsg:
		if !a.paused {
			a.counts[msg.topic]++
			a.events = append(a.events, msg)
			if len(a.events) > maxEventLog {
				a.events = a.events[len(a.events)-maxEventLog:]
			}
		}
		if a.conn != nil {
			return a, readCmd(a.conn)
		}
	}
	return a, nil
}

// reconnectMsg fires a reconnect attempt after a disconnect.
type reconnectMsg struct{}

func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()

	lineLimit := max(5, a.height-8)
	start := 0
	if len(a.events) > lineLimit {
		start = len(a.events) - lineLimit
	}

	var rows strings.Builder
	for _, evt := range a.events[start:] {
		ts := evt.ts.Format("15:04:05")
		badge := topicStyle(evt.topic).Render(fmt.Sprintf(" %-18s", evt.topic))
		payload := evt.payload
		if len(payload) > 120 {
			payload = payload[:120] + "..."
		}
		rows.WriteString(dimStyle.Render(ts) + " " + badge + " " + payload + "\n")
	}
	if len(a.events) == 0 {
		rows.WriteString(dimStyle.Render("waiting for events...\n"))
	}

	eventsPanel := panelStyle.Width(max(20, a.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("Event Stream"),
			rows.String(),
		),
	)

	status := a.renderStatus()

	return lipgloss.JoinVertical(lipgloss.Left, header, eventsPanel, status)
}

func (a *App) renderHeader() string {
	var counts []string
	for _, topic := range []string{"polling.tick", "gateway.decision", "pr.event", "task.failed", "claim.lost"} {
		if n := a.counts[topic]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s:%d", topic, n))
		}
	}
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("agent-forge monitor"),
		"  ",
		dimStyle.Render(a.url),
		"  ",
		mutedBadgeStyle.Render(strings.Join(counts, "  ")),
	)
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(row)
}

func (a *App) renderStatus() string {
	conn := okStyle.Render("connected")
	if a.conn == nil {
		conn = errStyle.Render("reconnecting...")
		if a.err != nil {
			conn += dimStyle.Render(" (" + a.err.Error() + ")")
		}
	}
	pauseHint := ""
	if a.paused {
		pauseHint = warnStyle.Render(" PAUSED ")
	}
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		conn, "   ",
		keycapStyle.Render("space"), dimStyle.Render(" pause  "),
		keycapStyle.Render("c"), dimStyle.Render(" clear  "),
		keycapStyle.Render("q"), dimStyle.Render(" quit"),
		"  ", pauseHint,
	)
	return lipgloss.NewStyle().Width(a.width).Padding(0, 1).Render(row)
}

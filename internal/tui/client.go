package tui

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// wireEvent mirrors bus.Event's JSON shape without importing the bus
// package's in-process Event type, since the TUI only ever sees events
// that have already crossed the /monitor websocket as JSON.
type wireEvent struct {
	Topic   string          `json:"topic"`
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// connectedMsg reports a successful dial. The connection rides along in
// the message since a tea.Cmd can only communicate by returning a Msg.
type connectedMsg struct{ conn *websocket.Conn }

// disconnectedMsg reports the connection dropping, with the error that
// caused it (nil on a clean server-initiated close).
type disconnectedMsg struct{ err error }

// eventMsg carries one decoded frame from the monitor stream.
type eventMsg struct {
	topic   string
	ts      time.Time
	payload string // pretty-printed for display; heartbeats are filtered before reaching here
}

// connectCmd dials the Bus's /monitor websocket endpoint.
func connectCmd(url string) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readCmd blocks for the next frame on conn. The caller re-issues this
// after every eventMsg to keep the read loop alive — the same
// self-perpetuating tea.Cmd chain idiom as a periodic tea.Tick, just
// driven by socket reads instead of a timer.
func readCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var raw wireEvent
		if err := conn.ReadJSON(&raw); err != nil {
			return disconnectedMsg{err: err}
		}
		if raw.Topic == "_heartbeat" {
			return readCmd(conn)()
		}
		return eventMsg{topic: raw.Topic, ts: raw.Ts, payload: string(raw.Payload)}
	}
}

package bus

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// heartbeatInterval matches spec.md §4.10 and the teacher's runStatsTicker
// periodic-push idiom.
const heartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MonitorHandler upgrades a request to a websocket connection (the
// Supervisor mounts it at GET /monitor?topics=...; there is no /events
// route) and streams newline-delimited JSON event frames, grounded on
// ODSapper-CLIAIMONITOR's gorilla/websocket + gorilla/mux live monitor.
// The stream is server-to-client only: the topic filter comes from the
// query string, and messages the client sends are read and discarded.
func (b *Bus) MonitorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var topics []string
		if raw := r.URL.Query().Get("topics"); raw != "" {
			topics = strings.Split(raw, ",")
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("bus: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := b.Subscribe(topics)
		defer unsubscribe()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		done := make(chan struct{})
		go discardInbound(conn, done)

		for {
			select {
			case <-done:
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case <-heartbeat.C:
				frame := map[string]any{"topic": "_heartbeat", "ts": time.Now()}
				data, _ := json.Marshal(frame)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}
}

// discardInbound drains client messages (the monitor stream is
// server-to-client only; this just detects client disconnects promptly).
func discardInbound(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agent-forge/agent-forge/internal/bus"
)

// eventRow is the bus_events table's row shape.
type eventRow struct {
	ID         int64  `db:"id"`
	Topic      string `db:"topic"`
	Payload    string `db:"payload"`
	OccurredAt string `db:"occurred_at"`
}

// Mirror subscribes to every Bus topic and writes a best-effort row per
// event. It is never consulted to make orchestration decisions — GitHub
// remains the system of record (spec.md §4.10).
type Mirror struct {
	db  DB
	bus *bus.Bus
}

// NewMirror constructs a Mirror and runs its migrations.
func NewMirror(ctx context.Context, db DB, b *bus.Bus) (*Mirror, error) {
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	return &Mirror{db: db, bus: b}, nil
}

// Run subscribes to the bus and writes rows until ctx is cancelled. A
// marshal or insert failure is logged and the event is dropped — the
// mirror must never block or backpressure the bus.
func (m *Mirror) Run(ctx context.Context) {
	events, unsubscribe := m.bus.Subscribe(nil)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			m.write(ctx, evt)
		}
	}
}

func (m *Mirror) write(ctx context.Context, evt bus.Event) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		slog.Warn("audit: marshaling event payload failed", "topic", evt.Topic, "error", err)
		return
	}
	row := eventRow{Topic: evt.Topic, Payload: string(payload), OccurredAt: evt.Ts.UTC().Format(time.RFC3339Nano)}
	if _, err := m.db.Insert(ctx, "bus_events", row); err != nil {
		slog.Warn("audit: writing event row failed", "topic", evt.Topic, "error", err)
	}
}

// Recent returns the most recent limit rows, newest first, for the TUI and
// control-surface debug endpoints.
func (m *Mirror) Recent(ctx context.Context, limit int) ([]eventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := m.db.Select(ctx, &rows, `SELECT id, topic, payload, occurred_at FROM bus_events ORDER BY id DESC LIMIT ?`, limit)
	return rows, err
}

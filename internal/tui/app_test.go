package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestUpdateWindowSizeMsgRecordsDimensions(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	model, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	got := model.(*App)
	if got.width != 100 || got.height != 40 {
		t.Fatalf("expected width=100 height=40, got width=%d height=%d", got.width, got.height)
	}
}

func TestUpdateQuitKeyReturnsQuitCmd(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected ctrl+c to produce a quit command")
	}
}

func TestUpdateClearKeyResetsEventsAndCounts(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	a.events = []eventMsg{{topic: "pr.event", ts: time.Now(), payload: "{}"}}
	a.counts["pr.event"] = 3

	model, _ := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	got := model.(*App)
	if len(got.events) != 0 {
		t.Fatalf("expected 'c' to clear the event log, got %d entries", len(got.events))
	}
	if got.counts["pr.event"] != 0 {
		t.Fatalf("expected 'c' to reset per-topic counts")
	}
}

func TestUpdateSpaceTogglesPause(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	model, _ := a.Update(tea.KeyMsg{Type: tea.KeySpace})
	if !model.(*App).paused {
		t.Fatalf("expected space to pause")
	}
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeySpace})
	if model.(*App).paused {
		t.Fatalf("expected a second space to unpause")
	}
}

func TestUpdateEventMsgAppendsWhenNotPaused(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	model, _ := a.Update(eventMsg{topic: "pr.event", ts: time.Now(), payload: "{}"})
	got := model.(*App)
	if len(got.events) != 1 {
		t.Fatalf("expected 1 event recorded, got %d", len(got.events))
	}
	if got.counts["pr.event"] != 1 {
		t.Fatalf("expected pr.event count 1, got %d", got.counts["pr.event"])
	}
}

func TestUpdateEventMsgIgnoredWhenPaused(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	a.paused = true
	model, _ := a.Update(eventMsg{topic: "pr.event", ts: time.Now(), payload: "{}"})
	if len(model.(*App).events) != 0 {
		t.Fatalf("expected a paused App to drop incoming events")
	}
}

func TestUpdateEventLogIsBoundedToMaxEventLog(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	var model tea.Model = a
	for i := 0; i < maxEventLog+50; i++ {
		model, _ = model.Update(eventMsg{topic: "pr.event", ts: time.Now(), payload: "{}"})
	}
	if got := len(model.(*App).events); got != maxEventLog {
		t.Fatalf("expected the event log capped at %d, got %d", maxEventLog, got)
	}
}

func TestUpdateDisconnectedMsgClearsConnAndSchedulesReconnect(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	model, cmd := a.Update(disconnectedMsg{err: errors.New("connection reset")})
	got := model.(*App)
	if got.conn != nil {
		t.Fatalf("expected conn to be cleared on disconnect")
	}
	if got.err == nil {
		t.Fatalf("expected the disconnect error to be recorded")
	}
	if cmd == nil {
		t.Fatalf("expected a reconnect tick command to be scheduled")
	}
}

func TestUpdateReconnectMsgReturnsConnectCmd(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	_, cmd := a.Update(reconnectMsg{})
	if cmd == nil {
		t.Fatalf("expected reconnectMsg to return a non-nil connect command")
	}
}

func TestViewBeforeWindowSizeShowsLoading(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	if got := a.View(); got != "Loading..." {
		t.Fatalf("expected a pre-resize View to render a loading placeholder, got %q", got)
	}
}

func TestViewRendersEventsAfterResize(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	a.width, a.height = 100, 30
	a.events = []eventMsg{{topic: "pr.event", ts: time.Now(), payload: `{"number":7}`}}

	out := a.View()
	if !strings.Contains(out, "pr.event") {
		t.Fatalf("expected the rendered view to mention the event topic, got:\n%s", out)
	}
	if !strings.Contains(out, "agent-forge monitor") {
		t.Fatalf("expected the header title in the rendered view")
	}
}

func TestViewShowsWaitingPlaceholderWithNoEvents(t *testing.T) {
	a := NewApp("ws://example.invalid/monitor")
	a.width, a.height = 100, 30
	if out := a.View(); !strings.Contains(out, "waiting for events") {
		t.Fatalf("expected a waiting placeholder when no events arrived yet, got:\n%s", out)
	}
}

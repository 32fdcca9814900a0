package bus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByTopic(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe([]string{"task.progress"})
	defer unsubscribe()

	b.Publish("agent.state", "ignored")
	b.Publish("task.progress", "wanted")

	select {
	case evt := <-ch:
		if evt.Topic != "task.progress" || evt.Payload != "wanted" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatalf("expected the filtered topic to be delivered")
	}

	select {
	case evt := <-ch:
		t.Fatalf("expected no second event, got %+v", evt)
	default:
	}
}

func TestSubscribeEmptyTopicsReceivesEverything(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(nil)
	defer unsubscribe()

	b.Publish("anything", 1)
	b.Publish("anything.else", 2)

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		default:
			t.Fatalf("expected event %d to be delivered to an unfiltered subscriber", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(nil)
	unsubscribe()

	if _, open := <-ch; open {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
	if stats := b.Stats(); stats.Subscribers != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", stats.Subscribers)
	}
}

// TestSlowSubscriberDisconnectsAfterThreeMisses exercises spec.md §4.10's
// "a slow subscriber that overflows three times in a row is disconnected".
func TestSlowSubscriberDisconnectsAfterThreeMisses(t *testing.T) {
	b := New()
	_, unsubscribe := b.Subscribe(nil)
	defer unsubscribe()

	// Fill the subscriber's buffer without ever draining it.
	for i := 0; i < DefaultBufferSize; i++ {
		b.Publish("fill", i)
	}
	if stats := b.Stats(); stats.Subscribers != 1 {
		t.Fatalf("expected the subscriber to survive a full-but-not-overflowed buffer, got %d", stats.Subscribers)
	}

	// Three more publishes each miss once the buffer is full.
	b.Publish("miss-1", nil)
	b.Publish("miss-2", nil)
	if stats := b.Stats(); stats.Subscribers != 1 {
		t.Fatalf("expected the subscriber to survive two misses, got %d", stats.Subscribers)
	}
	b.Publish("miss-3", nil)

	stats := b.Stats()
	if stats.Subscribers != 0 {
		t.Fatalf("expected the subscriber to be disconnected after three consecutive misses, got %d", stats.Subscribers)
	}
	if stats.DroppedTotal < 3 {
		t.Fatalf("expected at least 3 dropped events recorded, got %d", stats.DroppedTotal)
	}
}

func TestMissStreakResetsOnSuccessfulDelivery(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(nil)
	defer unsubscribe()

	for i := 0; i < DefaultBufferSize; i++ {
		b.Publish("fill", i)
	}
	b.Publish("miss-1", nil)
	b.Publish("miss-2", nil)

	// Drain one slot and deliver successfully; this should reset the miss
	// streak so the next two misses alone don't disconnect the subscriber.
	<-ch
	b.Publish("delivered", nil)

	b.Publish("miss-again-1", nil)
	b.Publish("miss-again-2", nil)
	if stats := b.Stats(); stats.Subscribers != 1 {
		t.Fatalf("expected the miss streak reset to keep the subscriber connected, got %d subscribers", stats.Subscribers)
	}
}

func TestRunningReportsFalseForNilBus(t *testing.T) {
	var b *Bus
	if b.Running() {
		t.Fatalf("expected a nil *Bus to report not running")
	}
	if !New().Running() {
		t.Fatalf("expected a constructed Bus to report running")
	}
}

func TestEventTimestampUsesBusClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := New()
	b.now = func() time.Time { return fixed }

	ch, unsubscribe := b.Subscribe(nil)
	defer unsubscribe()
	b.Publish("clocked", nil)

	evt := <-ch
	if !evt.Ts.Equal(fixed) {
		t.Fatalf("expected event timestamp %v, got %v", fixed, evt.Ts)
	}
}

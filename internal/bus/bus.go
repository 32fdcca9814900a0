// Package bus implements the in-process pub/sub event bus (spec.md §4.10),
// grounded on the teacher's internal/gateway/broadcaster.go (subs map +
// non-blocking select-default drop) combined with ODSapper-CLIAIMONITOR's
// internal/events/bus.go typed-event + drop-counter idiom. Unlike
// ODSapper's retry-then-keep-subscribed version, a subscriber that
// overflows three times in a row is disconnected outright, matching
// spec.md's "a slow subscriber that overflows is disconnected".
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber channel capacity (spec.md §4.10).
const DefaultBufferSize = 1024

// maxMissStreak is how many consecutive full-buffer publishes a subscriber
// tolerates before being disconnected.
const maxMissStreak = 3

// Event is one message delivered on the Bus.
type Event struct {
	Topic   string    `json:"topic"`
	Ts      time.Time `json:"ts"`
	Payload any       `json:"payload"`
}

type subscriber struct {
	ch         chan Event
	topics     map[string]struct{} // empty = all topics
	missStreak int
}

// Bus is the in-process publish/subscribe hub.
type Bus struct {
	mu          sync.Mutex
	subs        map[chan Event]*subscriber
	droppedTotal atomic.Int64
	now         func() time.Time
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[chan Event]*subscriber),
		now:  time.Now,
	}
}

// Subscribe registers a new subscriber filtered to topics (nil/empty means
// all topics) and returns its receive channel plus an Unsubscribe func.
func (b *Bus) Subscribe(topics []string) (<-chan Event, func()) {
	ch := make(chan Event, DefaultBufferSize)
	filter := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		filter[t] = struct{}{}
	}
	sub := &subscriber{ch: ch, topics: filter}

	b.mu.Lock()
	b.subs[ch] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish fans payload out to every subscriber interested in topic. Delivery
// is best-effort: a full subscriber buffer counts as a miss, and three
// consecutive misses disconnect that subscriber (spec.md §4.10). Ordering
// is preserved per topic per subscriber since each subscriber has its own
// channel and Publish delivers synchronously per subscriber.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Ts: b.now(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, sub := range b.subs {
		if len(sub.topics) > 0 {
			if _, interested := sub.topics[topic]; !interested {
				continue
			}
		}
		select {
		case ch <- evt:
			sub.missStreak = 0
		default:
			sub.missStreak++
			b.droppedTotal.Add(1)
			if sub.missStreak >= maxMissStreak {
				delete(b.subs, ch)
				close(ch)
			}
		}
	}
}

// Stats reports bus-wide counters for the Supervisor's /health surface.
type Stats struct {
	Subscribers  int
	DroppedTotal int64
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Subscribers: len(b.subs), DroppedTotal: b.droppedTotal.Load()}
}

// Running reports whether the Bus is accepting publishes — it always is
// once constructed, so this exists purely as the Supervisor's liveness
// check hook (spec.md §4.11: "liveness = is Bus running").
func (b *Bus) Running() bool { return b != nil }

package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/feedmeta/feedmeta/internal/core"
)

// EventType names a push notification.
type EventType string

const (
	EventEntityUpdated    EventType = "entityUpdated"
	EventRateLimitEntered EventType = "rateLimitEntered"
	EventRateLimitCleared EventType = "rateLimitCleared"
	EventSettingsChanged  EventType = "settingsChanged"
)

// Event is pushed to every subscriber.
type Event struct {
	ID          uuid.UUID        `json:"id"`
	Type        EventType        `json:"type"`
	Key         string           `json:"key,omitempty"`
	Value       *core.CacheEntry `json:"value,omitempty"`
	Until       int64            `json:"until,omitempty"`
	RemainingMs int64            `json:"remainingMs,omitempty"`
	Settings    *core.Settings   `json:"settings,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Notifier fans events out to subscribers. Publishing never blocks: an
// event for a subscriber whose buffer is full is dropped for that subscriber.
type Notifier struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
}

// NewNotifier returns a notifier with the given per-subscriber buffer.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Notifier{subs: make(map[uint64]chan Event), buffer: buffer}
}

// Subscribe registers a listener. The returned cancel function unregisters
// it and closes the channel; it is safe to call more than once.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, n.buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber that has room.
func (n *Notifier) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- e:
		default:
			n.dropped.Add(1)
		}
	}
}

// Count returns the number of subscribers.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

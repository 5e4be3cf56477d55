// Package live is the in-process fan-out behind the API's push streams. It is
// deliberately not a broker: events exist only for currently connected
// listeners, and every subscription is torn down through the cancel function
// returned at subscribe time.
package live

import "sync"

// Event is a change notification for one topic. Topics are collection names,
// optionally scoped to a parent ("journey_comments/<journeyId>").
type Event struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// subscriberBuffer bounds how far a listener may lag. A full buffer drops the
// event rather than blocking the writer.
const subscriberBuffer = 16

type subscriber struct {
	topic string
	ch    chan Event
}

type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a listener for one topic and returns the event channel
// plus its cancel function. The channel is closed by cancel (or by Close), so
// consumers can range over it. Cancel is safe to call more than once.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{topic: topic, ch: ch}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of its topic without
// blocking: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.topic != event.Topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount reports live listeners for a topic; used by tests and the
// readiness payload.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, sub := range h.subs {
		if sub.topic == topic {
			count++
		}
	}
	return count
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

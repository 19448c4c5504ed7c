package session

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Event is the envelope pushed to every subscriber.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Hub fans events out to subscriber channels. Sends never block: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	bufferSize  int
}

func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new channel and queues the initial events on it before any later publish.
func (h *Hub) Subscribe(initial ...Event) (string, <-chan Event) {
	size := h.bufferSize
	if len(initial) > size {
		size = len(initial)
	}
	ch := make(chan Event, size)
	for _, event := range initial {
		ch <- event
	}

	id := uuid.New().String()
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	subscribersGauge.Inc()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, exists := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if exists {
		close(ch)
		subscribersGauge.Dec()
	}
}

func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			droppedEvents.Inc()
			slog.Info("Subscriber buffer full, dropping event", "subscriber", id, "event", event.Name)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
		subscribersGauge.Dec()
	}
}

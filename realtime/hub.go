package realtime

import "sync"

const (
	EventBoardUpdate  = "board-update"
	EventNotification = "notification"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  []byte
}

// Hub fans messages out to the stream clients of this instance. Slow clients
// drop messages instead of blocking the sender.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Message]struct{}
	metrics *Metrics
}

func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{clients: map[string]map[chan Message]struct{}{}, metrics: metrics}
}

func (h *Hub) Add(userID string, buffer int) chan Message {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[chan Message]struct{}{}
	}
	h.clients[userID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Remove(userID string, ch chan Message) {
	h.mu.Lock()
	if set, ok := h.clients[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()
}

// Broadcast delivers to every client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for ch := range set {
			h.offer(ch, msg)
		}
	}
}

// SendTo delivers to the clients of one user.
func (h *Hub) SendTo(userID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[userID] {
		h.offer(ch, msg)
	}
}

func (h *Hub) offer(ch chan Message, msg Message) {
	select {
	case ch <- msg:
		h.metrics.delivered.WithLabelValues(msg.Event).Inc()
	default:
		h.metrics.dropped.WithLabelValues(msg.Event).Inc()
	}
}

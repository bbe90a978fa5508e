package app

import (
	"sync"

	"github.com/ayusman/mudra/internal/gesture"
)

const eventBuffer = 32

// Event describes one processed frame.
type Event struct {
	Timestamp int64                 `json:"timestamp"`
	Mode      Mode                  `json:"mode"`
	Hands     int                   `json:"hands"`
	State     string                `json:"state,omitempty"`
	Frames    int                   `json:"frames"`
	Held      *gesture.HeldResult   `json:"held,omitempty"`
	Decision  *gesture.Decision     `json:"decision,omitempty"`
	Static    *gesture.StaticResult `json:"static,omitempty"`
	Sign      *Sign                 `json:"sign,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Sign is an accepted recognition and what was done with it.
type Sign struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Mode       Mode          `json:"mode"`
	SequenceID string        `json:"sequence_id,omitempty"`
	Action     *ActionResult `json:"action,omitempty"`
}

// ActionResult is the outcome of the plugin action bound to a sign.
type ActionResult struct {
	Plugin  string `json:"plugin"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// hub fans events out to subscribers without blocking the publisher.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

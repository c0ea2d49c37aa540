package supervisor

import "sync"

type EventType string

const (
	EventStatus EventType = "status"
	EventLog    EventType = "log"
)

// Event is pushed to subscribers when the status changes or the server
// prints a line.
type Event struct {
	Type   EventType `json:"type"`
	Status *Status   `json:"status,omitempty"`
	Line   string    `json:"line,omitempty"`
}

func statusEvent(status Status) Event {
	return Event{Type: EventStatus, Status: &status}
}

func logEvent(line string) Event {
	return Event{Type: EventLog, Line: line}
}

const defaultEventBuffer = 256

// broadcaster fans events out to subscribers without ever blocking the
// publisher. A subscriber that falls behind loses events.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *broadcaster) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

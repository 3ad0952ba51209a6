package service

import (
	"sync"

	"github.com/prdeck/prdeck/internal/inbox"
)

// EventType labels the two push notifications the UI consumes.
type EventType string

const (
	EventStateUpdated EventType = "state-updated"
	EventSoftError    EventType = "soft-error"
)

// Event is one push notification. State is set for state-updated, Errors for
// soft-error.
type Event struct {
	Type   EventType    `json:"type"`
	State  *inbox.State `json:"state,omitempty"`
	Errors []string     `json:"errors,omitempty"`
}

type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: map[int]chan Event{}}
}

// subscribe returns a buffered event channel and its cancel func. Slow
// consumers lose events rather than blocking the engine.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *broadcaster) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

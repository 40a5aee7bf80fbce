package fanout

import (
	"sync"
	"time"
)

// Action enumerates the engagement kinds that produce notifications.
type Action string

const (
	ActionLike    Action = "Like"
	ActionComment Action = "Comment"
	ActionFollow  Action = "Follow"
)

// Valid reports whether the action is one of the known kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionLike, ActionComment, ActionFollow:
		return true
	}
	return false
}

// Event describes an engagement or follow action addressed to a recipient.
// Events are published after the triggering transaction commits.
type Event struct {
	RecipientID string
	ActorID     string
	Action      Action
	RedirectTo  string
	OccurredAt  time.Time
}

// Publisher is the emission side of the bus held by graph services.
type Publisher interface {
	Publish(event Event) bool
}

const defaultBufferSize = 64

// Bus is a bounded in-process event queue. Publishing never blocks the
// triggering action: events are dropped when the buffer is full or the bus
// is closed, matching the best-effort fan-out contract.
type Bus struct {
	mu     sync.Mutex
	stream chan Event
	closed bool
}

// NewBus constructs a bus with the given buffer size (default 64 when <= 0).
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{stream: make(chan Event, bufferSize)}
}

// Publish enqueues the event without blocking. It reports whether the event
// was accepted; a false return means the event was dropped.
func (b *Bus) Publish(event Event) bool {
	if event.RecipientID == "" || !event.Action.Valid() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.stream <- event:
		return true
	default:
		return false
	}
}

// Events exposes the consumption side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.stream
}

// Close stops the bus; pending events remain readable until drained.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.stream)
}

// Package events provides the notification bus the engine publishes on.
// Each engine instance owns its bus; there is no process-wide emitter.
package events

import (
	"sync"

	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// Kind identifies an event type on the bus.
type Kind string

const (
	// SessionUpdated fires after any successful session mutation.
	SessionUpdated Kind = "session-updated"
	// SessionDeleted fires after a session is purged.
	SessionDeleted Kind = "session-deleted"
	// GitStatusUpdated fires for a single session's on-demand status
	// refresh. Project-wide polls publish one GitStatusBatch instead.
	GitStatusUpdated Kind = "git-status-updated"
	// GitStatusBatch fires once for a project's coalesced status results.
	// Consumers must treat the batch as a set; no per-session order holds.
	GitStatusBatch Kind = "git-status-batch"
	// ExecutionAdded fires after a commit is recorded as an execution.
	ExecutionAdded Kind = "execution-added"
)

// Event is one notification. Payload depends on Kind.
type Event struct {
	Kind      Kind
	SessionID string
	ProjectID string
	Payload   any
}

// Bus fans events out to subscribers. Publishing never blocks: a buffered
// subscriber whose buffer is full misses the event rather than stalling a
// mutating operation. Subscribers that cannot afford to miss events use
// SubscribeUnbounded instead.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	usubs  map[int]*unboundedSub
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[int]chan Event),
		usubs: make(map[int]*unboundedSub),
	}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel plus an unsubscribe function. Unsubscribe closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buffer <= 0 {
		buffer = 16
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
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

// SubscribeUnbounded registers a subscriber that never misses an event.
// Publishing still never blocks; events queue in memory until the returned
// channel is drained. Meant for in-process bookkeeping (persistence, cache
// invalidation) where a dropped event means a lost write. Unsubscribing
// lets queued events flush before the channel closes.
func (b *Bus) SubscribeUnbounded() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(chan Event)
	if b.closed {
		close(out)
		return out, func() {}
	}
	id := b.nextID
	b.nextID++
	sub := &unboundedSub{out: out}
	sub.cond = sync.NewCond(&sub.mu)
	b.usubs[id] = sub
	go sub.pump()

	return out, func() {
		b.mu.Lock()
		s, ok := b.usubs[id]
		delete(b.usubs, id)
		b.mu.Unlock()
		if ok {
			s.stop()
		}
	}
}

// Publish delivers the event to every subscriber that has buffer room, and
// to every unbounded subscriber unconditionally.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			logger.Warn("Events: subscriber buffer full, dropping %s event for session=%s", e.Kind, e.SessionID)
		}
	}
	for _, sub := range b.usubs {
		sub.push(e)
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	for id, sub := range b.usubs {
		delete(b.usubs, id)
		sub.stop()
	}
}

// unboundedSub queues events without bound; a pump goroutine drains the
// queue into the subscriber's channel.
type unboundedSub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
}

func (s *unboundedSub) push(e Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *unboundedSub) stop() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *unboundedSub) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- e
	}
}

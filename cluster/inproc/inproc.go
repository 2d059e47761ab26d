// Package inproc provides in-process coordination for database handles
// living in the same address space. A Hub is the rendezvous point:
// every handle opened against the same storage joins the hub, gets a
// Transport that broadcasts to its siblings, and an Election that
// hands leadership to the oldest surviving participant.
package inproc

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when using a closed transport.
var ErrClosed = errors.New("inproc: transport closed")

// Hub connects the transports and elections of one storage identity.
type Hub struct {
	mu         sync.Mutex
	nextID     int
	transports map[int]*Transport
	elections  []*Election // join order; index 0 leads
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{transports: make(map[int]*Transport)}
}

// Transport joins the hub and returns the participant's transport.
func (h *Hub) Transport() *Transport {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := &Transport{
		hub:      h,
		id:       h.nextID,
		handlers: make(map[int]func([]byte)),
	}
	h.nextID++
	h.transports[t.id] = t
	return t
}

// Election joins the hub's election. The first participant becomes
// leader immediately; later ones inherit in join order as earlier
// participants destroy their elections.
func (h *Hub) Election() *Election {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &Election{hub: h, leaderCh: make(chan struct{})}
	h.elections = append(h.elections, e)
	if len(h.elections) == 1 {
		close(e.leaderCh)
	}
	return e
}

// Transport broadcasts frames to every other hub participant.
type Transport struct {
	hub *Hub
	id  int

	mu       sync.Mutex
	nextSub  int
	handlers map[int]func([]byte)
	closed   bool
}

// Publish delivers the frame to all other participants' handlers,
// synchronously and in no particular order. The publisher never hears
// its own frame.
func (t *Transport) Publish(_ context.Context, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	// Snapshot the peers' handlers first so delivery runs without any
	// lock held. A handler may publish again without deadlocking.
	h := t.hub
	h.mu.Lock()
	var targets []func([]byte)
	for id, peer := range h.transports {
		if id == t.id {
			continue
		}
		targets = append(targets, peer.snapshotHandlers()...)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}
	buf := append([]byte(nil), frame...)
	for _, handler := range targets {
		handler(buf)
	}
	return nil
}

func (t *Transport) snapshotHandlers() []func([]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(t.handlers) == 0 {
		return nil
	}
	out := make([]func([]byte), 0, len(t.handlers))
	for _, fn := range t.handlers {
		out = append(out, fn)
	}
	return out
}

// Subscribe registers a handler for frames published by other
// participants and returns its unsubscribe function.
func (t *Transport) Subscribe(handler func(frame []byte)) (func(), error) {
	if handler == nil {
		return nil, errors.New("inproc: nil handler")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	id := t.nextSub
	t.nextSub++
	t.handlers[id] = handler
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
		})
	}, nil
}

// Close leaves the hub. Idempotent.
func (t *Transport) Close() error {
	t.hub.mu.Lock()
	delete(t.hub.transports, t.id)
	t.hub.mu.Unlock()

	t.mu.Lock()
	t.closed = true
	t.handlers = make(map[int]func([]byte))
	t.mu.Unlock()
	return nil
}

// Election is one participant's stake in the hub's leader election.
type Election struct {
	hub       *Hub
	leaderCh  chan struct{} // closed once this participant leads
	destroyed bool          // guarded by hub.mu
}

// IsLeader reports whether this participant currently leads.
func (e *Election) IsLeader() bool {
	select {
	case <-e.leaderCh:
		return true
	default:
		return false
	}
}

// WaitForLeadership blocks until this participant becomes leader or
// ctx is done. Leadership, once gained, is kept until Destroy.
func (e *Election) WaitForLeadership(ctx context.Context) error {
	select {
	case <-e.leaderCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy withdraws from the election. When the leader withdraws, the
// next participant in join order is promoted. Idempotent.
func (e *Election) Destroy() error {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.destroyed {
		return nil
	}
	e.destroyed = true

	for i, cand := range h.elections {
		if cand != e {
			continue
		}
		h.elections = append(h.elections[:i], h.elections[i+1:]...)
		if i == 0 && len(h.elections) > 0 {
			close(h.elections[0].leaderCh)
		}
		break
	}
	return nil
}

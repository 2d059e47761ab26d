package rxdb

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hoanglam10499/rxdb/pkg/ident"
)

// newEventID mints a globally unique change event ID.
func newEventID() string {
	return ident.MustUID("rxe-")
}

// Operations carried by change events.
const (
	OpInsert           = "insert"
	OpUpdate           = "update"
	OpRemove           = "remove"
	OpCollectionCreate = "collection.create"
)

// ChangeEvent describes one observable change on a database. Events
// emitted by this handle carry its token as Origin; events injected
// from other instances keep their originator's token, which is how
// the bus knows never to forward them again.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Origin     string         `json:"origin"`
	Collection string         `json:"collection,omitempty"`
	Operation  string         `json:"operation"`
	DocumentID string         `json:"document_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Intern     bool           `json:"intern,omitempty"`
}

// bus fans change events out to local subscribers and hands
// forwardable ones to the coordinator. Delivery to a subscriber is
// non-blocking: when a subscriber's buffer is full the event is
// dropped for that subscriber and counted, never queued, so one slow
// consumer cannot stall emitters.
type bus struct {
	logger *slog.Logger
	origin string // this handle's token
	buffer int

	mu        sync.Mutex
	subs      map[int]chan ChangeEvent
	nextID    int
	forwarder func(ChangeEvent)
	closed    bool

	emitted  atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

func newBus(logger *slog.Logger, origin string, buffer int) *bus {
	return &bus{
		logger: logger,
		origin: origin,
		buffer: buffer,
		subs:   make(map[int]chan ChangeEvent),
	}
}

// Subscribe returns a feed of every event the bus sees, local and
// remote, plus a cancel func. The channel closes on cancel or when
// the bus shuts down. On a closed bus the returned channel is already
// closed.
func (b *bus) Subscribe() (<-chan ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan ChangeEvent, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// SetForwarder installs the coordinator's publish hook. A nil
// forwarder disables forwarding.
func (b *bus) SetForwarder(fn func(ChangeEvent)) {
	b.mu.Lock()
	b.forwarder = fn
	b.mu.Unlock()
}

// Emit delivers ev to every local subscriber, then forwards it to
// other instances when it originated here and is not intern. Events
// with a foreign origin are delivered locally but never forwarded:
// each instance broadcasts only its own changes, so an event crosses
// the transport at most once.
func (b *bus) Emit(ev ChangeEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	forward := b.forwarder
	b.deliverLocked(ev)
	b.mu.Unlock()

	b.emitted.Add(1)
	if forward != nil && ev.Origin == b.origin && !ev.Intern {
		forward(ev)
	}
}

// InjectRemote delivers an event received from another instance to
// local subscribers only.
func (b *bus) InjectRemote(ev ChangeEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.deliverLocked(ev)
	b.mu.Unlock()

	b.received.Add(1)
}

func (b *bus) deliverLocked(ev ChangeEvent) {
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, event dropped",
				"event", ev.ID, "collection", ev.Collection, "operation", ev.Operation)
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.forwarder = nil
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

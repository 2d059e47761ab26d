package rxdb

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
	"golang.org/x/time/rate"

	"github.com/hoanglam10499/rxdb/cluster"
)

// dedupeWindow remembers recently seen event IDs, bounded by evicting
// the oldest entry. Transports deliver at least once, so the same
// frame can arrive twice; the window keeps duplicates from reaching
// subscribers twice.
type dedupeWindow struct {
	mu    sync.Mutex
	seen  map[uint64]struct{}
	order []uint64
	next  int
	full  bool
}

func newDedupeWindow(capacity int) *dedupeWindow {
	return &dedupeWindow{
		seen:  make(map[uint64]struct{}, capacity),
		order: make([]uint64, capacity),
	}
}

// Add records key and reports whether it was new.
func (w *dedupeWindow) Add(key uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[key]; ok {
		return false
	}
	if w.full {
		delete(w.seen, w.order[w.next])
	}
	w.seen[key] = struct{}{}
	w.order[w.next] = key
	w.next++
	if w.next == len(w.order) {
		w.next = 0
		w.full = true
	}
	return true
}

// coordinator bridges the local event bus and the cluster transport.
// Outbound: events originated by this handle are published as JSON
// frames, optionally rate limited. Inbound: frames from other
// instances are deduplicated, checked for origin and injected into
// the local bus. Frames carrying this handle's own origin are
// discarded, so transports that echo to the publisher stay safe.
type coordinator struct {
	logger    *slog.Logger
	bus       *bus
	transport cluster.Transport
	origin    string
	limiter   *rate.Limiter
	window    *dedupeWindow

	unsubscribe func()
	closed      atomic.Bool

	published  atomic.Uint64
	duplicates atomic.Uint64
	throttled  atomic.Uint64
}

const dedupeWindowSize = 4096

func newCoordinator(logger *slog.Logger, b *bus, transport cluster.Transport, origin string, limit rate.Limit, burst int) (*coordinator, error) {
	c := &coordinator{
		logger:    logger,
		bus:       b,
		transport: transport,
		origin:    origin,
		window:    newDedupeWindow(dedupeWindowSize),
	}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}

	unsubscribe, err := transport.Subscribe(c.handleFrame)
	if err != nil {
		return nil, err
	}
	c.unsubscribe = unsubscribe
	b.SetForwarder(c.forward)
	return c, nil
}

func (c *coordinator) forward(ev ChangeEvent) {
	if c.closed.Load() {
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.throttled.Add(1)
		c.logger.Warn("outbound event throttled", "event", ev.ID, "collection", ev.Collection)
		return
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("encode change event", "event", ev.ID, "error", err)
		return
	}
	if err := c.transport.Publish(context.Background(), frame); err != nil {
		c.logger.Warn("publish change event", "event", ev.ID, "error", err)
		return
	}
	c.published.Add(1)
}

func (c *coordinator) handleFrame(frame []byte) {
	if c.closed.Load() {
		return
	}
	var ev ChangeEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		c.logger.Warn("decode change event frame", "error", err)
		return
	}
	if ev.Origin == c.origin {
		return
	}
	if ev.Intern {
		return
	}
	if !c.window.Add(murmur3.Sum64([]byte(ev.ID))) {
		c.duplicates.Add(1)
		return
	}
	c.bus.InjectRemote(ev)
}

// destroy detaches from the bus and transport. The transport is
// closed here: the coordinator owns it for the handle's lifetime.
func (c *coordinator) destroy() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.bus.SetForwarder(nil)
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	return c.transport.Close()
}

// Package gossip broadcasts frames between database instances over a
// memberlist mesh. Frames ride the gossip layer's user messages, so
// delivery is best effort and bounded by the UDP packet budget;
// callers keep frames small. Each node advertises its database
// identity in the node metadata, which lets an operator spot instances
// that joined the wrong mesh.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
)

// ErrClosed is returned when using a closed transport.
var ErrClosed = errors.New("gossip: transport closed")

// Config configures the gossip transport.
type Config struct {
	// NodeID is the unique node identifier.
	NodeID string

	// BindAddr is the address to bind for gossip communication.
	BindAddr string

	// BindPort is the port to bind for gossip communication. Zero
	// picks a free port.
	BindPort int

	// Seeds are the initial nodes to join.
	Seeds []string

	// Meta is advertised to peers in the node metadata, typically the
	// database name this instance serves.
	Meta string

	// Logger for logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// Transport is a memberlist-backed frame broadcaster.
type Transport struct {
	logger *slog.Logger
	queue  *memberlist.TransmitLimitedQueue

	mu       sync.Mutex
	ml       *memberlist.Memberlist
	nextSub  int
	handlers map[int]func([]byte)
	closed   bool

	// Membership callbacks
	onJoin  func(nodeID, addr, meta string)
	onLeave func(nodeID string)
}

// New creates a gossip transport and joins the given seed nodes.
func New(cfg Config) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Transport{
		logger:   cfg.Logger,
		handlers: make(map[int]func([]byte)),
	}
	t.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       t.numNodes,
		RetransmitMult: 3,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Delegate = &meshDelegate{transport: t, meta: []byte(cfg.Meta)}
	mlConfig.Events = &eventDelegate{transport: t}
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("gossip: create memberlist: %w", err)
	}
	t.mu.Lock()
	t.ml = ml
	t.mu.Unlock()

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("gossip: join seeds: %w", err)
		}
		cfg.Logger.Info("joined gossip mesh",
			"node_id", cfg.NodeID,
			"seeds", cfg.Seeds,
			"joined_count", n)
	} else {
		cfg.Logger.Info("started gossip mesh (bootstrap mode)",
			"node_id", cfg.NodeID)
	}

	return t, nil
}

func (t *Transport) numNodes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ml == nil {
		return 1
	}
	return t.ml.NumMembers()
}

// Publish queues a frame for broadcast to the mesh.
func (t *Transport) Publish(_ context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	t.queue.QueueBroadcast(&frameBroadcast{
		frame: append([]byte(nil), frame...),
	})
	return nil
}

// Subscribe registers a handler for frames gossiped by other nodes.
func (t *Transport) Subscribe(handler func(frame []byte)) (func(), error) {
	if handler == nil {
		return nil, errors.New("gossip: nil handler")
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

// dispatch fans an incoming frame out to the subscribers.
func (t *Transport) dispatch(frame []byte) {
	t.mu.Lock()
	if t.closed || len(t.handlers) == 0 {
		t.mu.Unlock()
		return
	}
	targets := make([]func([]byte), 0, len(t.handlers))
	for _, fn := range t.handlers {
		targets = append(targets, fn)
	}
	t.mu.Unlock()

	for _, fn := range targets {
		fn(frame)
	}
}

// OnJoin registers a callback for nodes joining the mesh. The meta
// argument carries the peer's advertised database identity.
func (t *Transport) OnJoin(fn func(nodeID, addr, meta string)) {
	t.mu.Lock()
	t.onJoin = fn
	t.mu.Unlock()
}

// OnLeave registers a callback for nodes leaving the mesh.
func (t *Transport) OnLeave(fn func(nodeID string)) {
	t.mu.Lock()
	t.onLeave = fn
	t.mu.Unlock()
}

// Members returns the current mesh members.
func (t *Transport) Members() []*memberlist.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ml == nil {
		return nil
	}
	return t.ml.Members()
}

// LocalNode returns this node's mesh entry.
func (t *Transport) LocalNode() *memberlist.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ml == nil {
		return nil
	}
	return t.ml.LocalNode()
}

// Close leaves the mesh and shuts memberlist down. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ml := t.ml
	t.handlers = make(map[int]func([]byte))
	t.mu.Unlock()

	if ml == nil {
		return nil
	}
	if err := ml.Leave(time.Second); err != nil {
		t.logger.Error("failed to leave gossip mesh", "error", err)
	}
	if err := ml.Shutdown(); err != nil {
		return fmt.Errorf("gossip: shutdown memberlist: %w", err)
	}
	t.logger.Info("gossip transport closed")
	return nil
}

// frameBroadcast carries one frame through the transmit queue.
type frameBroadcast struct {
	frame []byte
}

func (b *frameBroadcast) Invalidates(memberlist.Broadcast) bool { return false }

func (b *frameBroadcast) Message() []byte { return b.frame }

func (b *frameBroadcast) Finished() {}

// meshDelegate implements memberlist.Delegate.
type meshDelegate struct {
	transport *Transport
	meta      []byte
}

// NodeMeta advertises the database identity (up to limit bytes).
func (d *meshDelegate) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		return d.meta[:limit]
	}
	return d.meta
}

// NotifyMsg receives a gossiped frame. The buffer belongs to
// memberlist, so it is copied before leaving this call.
func (d *meshDelegate) NotifyMsg(msg []byte) {
	if len(msg) == 0 {
		return
	}
	d.transport.dispatch(append([]byte(nil), msg...))
}

// GetBroadcasts drains the transmit queue.
func (d *meshDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.transport.queue.GetBroadcasts(overhead, limit)
}

func (d *meshDelegate) LocalState(join bool) []byte { return nil }

func (d *meshDelegate) MergeRemoteState(buf []byte, join bool) {}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	transport *Transport
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	t := e.transport
	addr := net.JoinHostPort(node.Addr.String(), fmt.Sprintf("%d", node.Port))

	t.logger.Info("node joined gossip mesh",
		"node_id", node.Name,
		"addr", addr,
		"db", string(node.Meta))

	t.mu.Lock()
	fn := t.onJoin
	t.mu.Unlock()
	if fn != nil {
		fn(node.Name, addr, string(node.Meta))
	}
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	t := e.transport
	t.logger.Info("node left gossip mesh", "node_id", node.Name)

	t.mu.Lock()
	fn := t.onLeave
	t.mu.Unlock()
	if fn != nil {
		fn(node.Name)
	}
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.transport.logger.Debug("node updated", "node_id", node.Name)
}

// slogWriter adapts slog.Logger to io.Writer for memberlist.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

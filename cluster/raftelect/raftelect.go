// Package raftelect elects a leader among database instances on
// different machines using hashicorp/raft. Nothing is replicated
// through the log; the Raft cluster exists purely so that exactly one
// instance holds leadership at a time and the others can wait for it.
package raftelect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// ErrDestroyed is returned when waiting on a destroyed election.
var ErrDestroyed = errors.New("raftelect: election destroyed")

// Config configures the election node.
type Config struct {
	// NodeID is the unique node identifier.
	NodeID string

	// BindAddr is the host:port to bind for Raft communication.
	BindAddr string

	// DataDir is the directory for Raft log, stable and snapshot
	// stores.
	DataDir string

	// Bootstrap starts a fresh single-node cluster. Exactly one node
	// of a new cluster sets this; the rest join via AddVoter.
	Bootstrap bool

	// Logger for logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// Election is one node's stake in a Raft-backed leader election.
type Election struct {
	raft      *raft.Raft
	transport *raft.NetworkTransport
	logger    *slog.Logger

	logStore    raft.LogStore
	stableStore raft.StableStore

	notifyCh chan bool

	leaderMu     sync.Mutex
	leaderNow    bool
	becameLeader chan struct{} // closed while leader; replaced on loss

	destroyed atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates an election node and starts participating.
func New(cfg Config) (*Election, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("raftelect: data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("raftelect: create data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = &raftHCLogger{logger: cfg.Logger}

	// Tuned for quick convergence; nothing latency-critical rides on
	// the log itself.
	raftConfig.HeartbeatTimeout = 1000 * time.Millisecond
	raftConfig.ElectionTimeout = 1000 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 500 * time.Millisecond

	notifyCh := make(chan bool, 10)
	raftConfig.NotifyCh = notifyCh

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("raftelect: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raftelect: create transport: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("raftelect: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("raftelect: create stable store: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("raftelect: create snapshot store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, &noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("raftelect: create raft: %w", err)
	}

	e := &Election{
		raft:         r,
		transport:    transport,
		logger:       cfg.Logger,
		logStore:     logStore,
		stableStore:  stableStore,
		notifyCh:     notifyCh,
		becameLeader: make(chan struct{}),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	go e.watchLoop()

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: raft.ServerID(cfg.NodeID), Address: transport.LocalAddr()},
			},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			e.Destroy()
			return nil, fmt.Errorf("raftelect: bootstrap cluster: %w", err)
		}
	}

	cfg.Logger.Info("raft election node started",
		"node_id", cfg.NodeID,
		"bind_addr", cfg.BindAddr,
		"bootstrap", cfg.Bootstrap)

	return e, nil
}

// watchLoop tracks leadership notifications from Raft.
func (e *Election) watchLoop() {
	defer close(e.doneCh)

	for {
		select {
		case leader, ok := <-e.notifyCh:
			if !ok {
				return
			}
			e.leaderMu.Lock()
			if leader && !e.leaderNow {
				close(e.becameLeader)
			} else if !leader && e.leaderNow {
				e.becameLeader = make(chan struct{})
			}
			e.leaderNow = leader
			e.leaderMu.Unlock()

			e.logger.Info("leadership changed", "leader", leader)
		case <-e.stopCh:
			return
		}
	}
}

// IsLeader reports whether this node currently leads.
func (e *Election) IsLeader() bool {
	return e.raft.State() == raft.Leader
}

// WaitForLeadership blocks until this node becomes leader, ctx is
// done, or the election is destroyed.
func (e *Election) WaitForLeadership(ctx context.Context) error {
	for {
		e.leaderMu.Lock()
		leader := e.leaderNow
		ch := e.becameLeader
		e.leaderMu.Unlock()

		if leader {
			return nil
		}
		select {
		case <-ch:
			// Gained since the snapshot; loop to confirm it stuck.
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return ErrDestroyed
		}
	}
}

// LeaderAddress returns the current leader's Raft address, if known.
func (e *Election) LeaderAddress() string {
	addr, _ := e.raft.LeaderWithID()
	return string(addr)
}

// AddVoter adds a voting member to the election cluster. Only the
// leader can do this.
func (e *Election) AddVoter(nodeID, addr string, timeout time.Duration) error {
	if err := e.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, timeout).Error(); err != nil {
		return fmt.Errorf("raftelect: add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a member from the election cluster.
func (e *Election) RemoveServer(nodeID string, timeout time.Duration) error {
	if err := e.raft.RemoveServer(raft.ServerID(nodeID), 0, timeout).Error(); err != nil {
		return fmt.Errorf("raftelect: remove server: %w", err)
	}
	return nil
}

// Stats returns Raft statistics for diagnostics.
func (e *Election) Stats() map[string]string {
	return e.raft.Stats()
}

// Destroy leaves the election and releases all resources. Idempotent.
func (e *Election) Destroy() error {
	if !e.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	e.logger.Info("shutting down raft election node")

	var errs []error
	if err := e.raft.Shutdown().Error(); err != nil {
		errs = append(errs, fmt.Errorf("raft shutdown: %w", err))
	}

	close(e.stopCh)
	<-e.doneCh

	if s, ok := e.stableStore.(*raftboltdb.BoltStore); ok {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stable store: %w", err))
		}
	}
	if s, ok := e.logStore.(*raftboltdb.BoltStore); ok {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log store: %w", err))
		}
	}
	if err := e.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	return errors.Join(errs...)
}

// noopFSM satisfies raft.FSM. The log carries no application state.
type noopFSM struct{}

func (f *noopFSM) Apply(*raft.Log) any { return nil }

func (f *noopFSM) Snapshot() (raft.FSMSnapshot, error) { return &noopSnapshot{}, nil }

func (f *noopFSM) Restore(rc io.ReadCloser) error { return rc.Close() }

type noopSnapshot struct{}

func (s *noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }

func (s *noopSnapshot) Release() {}

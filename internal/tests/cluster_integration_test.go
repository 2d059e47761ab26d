// Package tests provides integration tests for multi-process rxdb
// deployments.
//
// The test wires three database handles the way three separate daemon
// processes would be wired: a shared storage adapter, a real raft
// election and a gossip mesh. It verifies:
//   - leader election converges on exactly one leader
//   - change events cross the gossip transport to the other handles
//   - leadership moves when the leading handle is destroyed
package tests

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoanglam10499/rxdb"
	"github.com/hoanglam10499/rxdb/cluster/gossip"
	"github.com/hoanglam10499/rxdb/cluster/raftelect"
	"github.com/hoanglam10499/rxdb/storage/memory"
)

// Fixed loopback ports for the three nodes. Raft needs stable bind
// addresses because voters are added by address.
var (
	raftAddrs   = []string{"127.0.0.1:15360", "127.0.0.1:15362", "127.0.0.1:15364"}
	gossipPorts = []int{15361, 15363, 15365}
)

// TestCluster_ThreeNode_Integration starts a 3-node cluster locally.
func TestCluster_ThreeNode_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	baseDir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// One adapter in place of the shared storage three processes would
	// reach; one registry in place of three per-process ones.
	adapter := memory.New()
	registry := rxdb.NewInstanceRegistry()

	openNode := func(i int, bootstrap bool, seeds []string) (*rxdb.Database, *raftelect.Election) {
		t.Helper()
		nodeID := fmt.Sprintf("node-%d", i+1)
		nodeLog := log.With("node", nodeID)

		election, err := raftelect.New(raftelect.Config{
			NodeID:    nodeID,
			BindAddr:  raftAddrs[i],
			DataDir:   filepath.Join(baseDir, nodeID),
			Bootstrap: bootstrap,
			Logger:    nodeLog,
		})
		if err != nil {
			t.Fatalf("failed to start election for %s: %v", nodeID, err)
		}

		transport, err := gossip.New(gossip.Config{
			NodeID:   nodeID,
			BindAddr: "127.0.0.1",
			BindPort: gossipPorts[i],
			Seeds:    seeds,
			Meta:     "shop " + raftAddrs[i],
			Logger:   nodeLog,
		})
		if err != nil {
			election.Destroy()
			t.Fatalf("failed to start transport for %s: %v", nodeID, err)
		}

		cfg := rxdb.DefaultConfig("shop", adapter)
		cfg.MultiInstance = true
		cfg.AllowDuplicate = true
		cfg.Registry = registry
		cfg.Election = election
		cfg.Transport = transport
		cfg.Logger = nodeLog

		db, err := rxdb.Open(context.Background(), cfg)
		if err != nil {
			transport.Close()
			election.Destroy()
			t.Fatalf("failed to open database for %s: %v", nodeID, err)
		}
		return db, election
	}

	// Start node1 (bootstrap node) first and let it take leadership
	// before the others join.
	t.Log("Starting node1 (bootstrap)...")
	db1, election1 := openNode(0, true, nil)
	waitUntil(t, 15*time.Second, "node1 leadership", func() bool {
		return db1.IsLeader()
	})

	t.Log("Node1 leads, launching node2 and node3...")
	seeds := []string{fmt.Sprintf("127.0.0.1:%d", gossipPorts[0])}
	db2, _ := openNode(1, false, seeds)
	db3, _ := openNode(2, false, seeds)

	dbs := []*rxdb.Database{db1, db2, db3}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i, db := range dbs {
			if err := db.Destroy(ctx); err != nil {
				t.Logf("node%d teardown error: %v", i+1, err)
			}
		}
	}()

	// The daemon adds voters from its gossip join callback; here the
	// bootstrap node adds them directly for determinism.
	for i, nodeID := range []string{"node-2", "node-3"} {
		if err := election1.AddVoter(nodeID, raftAddrs[i+1], 10*time.Second); err != nil {
			t.Fatalf("failed to add voter %s: %v", nodeID, err)
		}
	}

	t.Log("Waiting for cluster to converge...")
	time.Sleep(2 * time.Second)

	t.Run("VerifyLeaderElection", func(t *testing.T) {
		var leaderCount int
		for i, db := range dbs {
			if db.IsLeader() {
				leaderCount++
				t.Logf("Node %d is the leader", i+1)
			}
		}
		if leaderCount != 1 {
			t.Errorf("expected 1 leader, got %d", leaderCount)
		}
	})

	t.Run("VerifyTokenConvergence", func(t *testing.T) {
		// Handles on the same storage share one storage token but keep
		// distinct instance tokens.
		if db2.StorageToken() != db1.StorageToken() || db3.StorageToken() != db1.StorageToken() {
			t.Errorf("storage tokens diverge: %q, %q, %q",
				db1.StorageToken(), db2.StorageToken(), db3.StorageToken())
		}
		if db1.Token() == db2.Token() || db2.Token() == db3.Token() {
			t.Error("instance tokens must differ between handles")
		}
	})

	t.Run("VerifyEventPropagation", func(t *testing.T) {
		feed2, cancel2 := db2.Changes()
		defer cancel2()
		feed3, cancel3 := db3.Changes()
		defer cancel3()

		db1.Emit(rxdb.ChangeEvent{
			Collection: "books",
			Operation:  rxdb.OpInsert,
			DocumentID: "bk-001",
		})

		for name, feed := range map[string]<-chan rxdb.ChangeEvent{"node2": feed2, "node3": feed3} {
			ev := recvEvent(t, feed, 10*time.Second, name)
			if ev.Origin != db1.Token() {
				t.Errorf("%s: Origin = %q, want %q", name, ev.Origin, db1.Token())
			}
			if ev.Collection != "books" || ev.Operation != rxdb.OpInsert || ev.DocumentID != "bk-001" {
				t.Errorf("%s: event = %+v, want books/insert/bk-001", name, ev)
			}
		}

		// The event crossed the transport once; nothing may echo it
		// back around the mesh.
		select {
		case ev := <-feed2:
			t.Errorf("node2 received duplicate event %q", ev.ID)
		case <-time.After(500 * time.Millisecond):
		}
	})

	t.Run("VerifyLeaderHandoff", func(t *testing.T) {
		leaderIdx := -1
		for i, db := range dbs {
			if db.IsLeader() {
				leaderIdx = i
				break
			}
		}
		if leaderIdx < 0 {
			t.Fatal("no leader to hand off from")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dbs[leaderIdx].Destroy(ctx); err != nil {
			t.Logf("leader teardown error: %v", err)
		}

		waitUntil(t, 30*time.Second, "re-election", func() bool {
			for i, db := range dbs {
				if i != leaderIdx && db.IsLeader() {
					return true
				}
			}
			return false
		})
	})

	t.Log("Integration test completed")
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recvEvent receives one change event or fails the test.
func recvEvent(t *testing.T, feed <-chan rxdb.ChangeEvent, timeout time.Duration, who string) rxdb.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-feed:
		if !ok {
			t.Fatalf("%s: change feed closed", who)
		}
		return ev
	case <-time.After(timeout):
		t.Fatalf("%s: no event within %v", who, timeout)
	}
	return rxdb.ChangeEvent{}
}

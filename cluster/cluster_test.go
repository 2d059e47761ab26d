package cluster

import (
	"context"
	"errors"
	"testing"
	"time"
)

var _ LeaderElection = StaticElection{}

func TestStaticElection_Leader(t *testing.T) {
	e := StaticElection{Leader: true}

	if !e.IsLeader() {
		t.Fatal("IsLeader() = false, want true")
	}
	if err := e.WaitForLeadership(context.Background()); err != nil {
		t.Fatalf("WaitForLeadership: %v", err)
	}
	if err := e.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestStaticElection_Follower(t *testing.T) {
	e := StaticElection{}

	if e.IsLeader() {
		t.Fatal("IsLeader() = true, want false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.WaitForLeadership(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForLeadership err = %v, want %v", err, context.DeadlineExceeded)
	}
}

// Package cluster defines the contracts a database uses to coordinate
// with other instances sharing the same storage identity.
//
// A LeaderElection decides which instance drives work that must happen
// exactly once across the group. A Transport moves opaque frames
// between instances; implementations never echo a frame back to its
// publisher. Both contracts are small on purpose so that an in-process
// hub, a gossip mesh, or a Raft cluster can stand in for each other.
package cluster

import "context"

// LeaderElection decides which participant currently leads the group.
type LeaderElection interface {
	// IsLeader reports whether this participant leads right now.
	IsLeader() bool

	// WaitForLeadership blocks until this participant becomes leader
	// or ctx is done.
	WaitForLeadership(ctx context.Context) error

	// Destroy withdraws from the election and releases resources.
	// Idempotent.
	Destroy() error
}

// Transport broadcasts frames to every other participant.
type Transport interface {
	// Publish sends a frame to all other participants. Delivery is
	// best effort.
	Publish(ctx context.Context, frame []byte) error

	// Subscribe registers a handler for incoming frames and returns
	// an unsubscribe function. Handlers never see the participant's
	// own published frames.
	Subscribe(handler func(frame []byte)) (func(), error)

	// Close tears down the transport. Idempotent.
	Close() error
}

// StaticElection is a fixed-answer election for databases that never
// share their storage with another instance.
type StaticElection struct {
	// Leader pins the answer. The zero value never leads.
	Leader bool
}

// IsLeader reports the pinned answer.
func (e StaticElection) IsLeader() bool { return e.Leader }

// WaitForLeadership returns immediately for a pinned leader and blocks
// until ctx is done otherwise.
func (e StaticElection) WaitForLeadership(ctx context.Context) error {
	if e.Leader {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// Destroy is a no-op.
func (e StaticElection) Destroy() error { return nil }

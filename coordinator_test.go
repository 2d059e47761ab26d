package rxdb

import (
	"encoding/json"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoanglam10499/rxdb/cluster/inproc"
)

// coordinatorPair wires two buses over one in-process hub, as two
// handles on the same storage would be.
func coordinatorPair(t *testing.T) (*bus, *bus, *coordinator, *coordinator) {
	t.Helper()
	hub := inproc.NewHub()

	busA := newBus(discardLogger(), "tok-a", 8)
	busB := newBus(discardLogger(), "tok-b", 8)

	coordA, err := newCoordinator(discardLogger(), busA, hub.Transport(), "tok-a", 0, 0)
	if err != nil {
		t.Fatalf("coordinator a: %v", err)
	}
	coordB, err := newCoordinator(discardLogger(), busB, hub.Transport(), "tok-b", 0, 0)
	if err != nil {
		t.Fatalf("coordinator b: %v", err)
	}
	t.Cleanup(func() {
		coordA.destroy()
		coordB.destroy()
		busA.Close()
		busB.Close()
	})
	return busA, busB, coordA, coordB
}

func TestCoordinatorDeliversAcrossInstances(t *testing.T) {
	busA, busB, _, _ := coordinatorPair(t)

	subB, cancel := busB.Subscribe()
	defer cancel()

	busA.Emit(ChangeEvent{
		ID: "e-1", Origin: "tok-a",
		Collection: "books", Operation: OpInsert, DocumentID: "b-1",
	})

	ev := collectEvent(t, subB)
	if ev.ID != "e-1" || ev.Origin != "tok-a" || ev.DocumentID != "b-1" {
		t.Fatalf("delivered event = %+v", ev)
	}
}

func TestCoordinatorSingleHop(t *testing.T) {
	busA, busB, _, _ := coordinatorPair(t)

	subA, cancelA := busA.Subscribe()
	defer cancelA()
	subB, cancelB := busB.Subscribe()
	defer cancelB()

	busA.Emit(ChangeEvent{ID: "e-1", Origin: "tok-a", Collection: "books", Operation: OpInsert})

	// Both sides see the event exactly once.
	collectEvent(t, subA)
	collectEvent(t, subB)

	// The injected copy on B must not bounce back to A: A's feed
	// stays empty from here on.
	select {
	case ev := <-subA:
		t.Fatalf("event bounced back to its origin: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := busB.received.Load(); got != 1 {
		t.Fatalf("bus B received = %d, want 1", got)
	}
}

func TestCoordinatorInternStaysLocal(t *testing.T) {
	busA, busB, _, _ := coordinatorPair(t)

	subB, cancel := busB.Subscribe()
	defer cancel()

	busA.Emit(ChangeEvent{ID: "e-1", Origin: "tok-a", Operation: OpCollectionCreate, Intern: true})

	select {
	case ev := <-subB:
		t.Fatalf("intern event crossed the transport: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorDropsOwnEcho(t *testing.T) {
	busA, _, coordA, _ := coordinatorPair(t)

	subA, cancel := busA.Subscribe()
	defer cancel()

	// Simulate a transport that echoes the publisher's own frame.
	frame, _ := json.Marshal(ChangeEvent{ID: "echo", Origin: "tok-a", Operation: OpInsert})
	coordA.handleFrame(frame)

	select {
	case ev := <-subA:
		t.Fatalf("own echo was injected: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorDeduplicatesRedelivery(t *testing.T) {
	_, busB, _, coordB := coordinatorPair(t)

	subB, cancel := busB.Subscribe()
	defer cancel()

	frame, _ := json.Marshal(ChangeEvent{ID: "dup-1", Origin: "tok-a", Operation: OpInsert})
	coordB.handleFrame(frame)
	coordB.handleFrame(frame)
	coordB.handleFrame(frame)

	collectEvent(t, subB)
	select {
	case ev := <-subB:
		t.Fatalf("duplicate frame was injected: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := coordB.duplicates.Load(); got != 2 {
		t.Fatalf("duplicates = %d, want 2", got)
	}
}

func TestCoordinatorIgnoresMalformedFrames(t *testing.T) {
	_, busB, _, coordB := coordinatorPair(t)

	subB, cancel := busB.Subscribe()
	defer cancel()

	coordB.handleFrame([]byte("not json"))

	select {
	case ev := <-subB:
		t.Fatalf("malformed frame produced an event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorThrottlesOutbound(t *testing.T) {
	hub := inproc.NewHub()
	busA := newBus(discardLogger(), "tok-a", 8)
	busB := newBus(discardLogger(), "tok-b", 8)
	defer busA.Close()
	defer busB.Close()

	coordA, err := newCoordinator(discardLogger(), busA, hub.Transport(), "tok-a", rate.Limit(1), 1)
	if err != nil {
		t.Fatalf("coordinator a: %v", err)
	}
	defer coordA.destroy()
	coordB, err := newCoordinator(discardLogger(), busB, hub.Transport(), "tok-b", 0, 0)
	if err != nil {
		t.Fatalf("coordinator b: %v", err)
	}
	defer coordB.destroy()

	subB, cancel := busB.Subscribe()
	defer cancel()

	// Burst of one: the first frame crosses, the second is shed.
	busA.Emit(ChangeEvent{ID: "e-1", Origin: "tok-a", Operation: OpInsert})
	busA.Emit(ChangeEvent{ID: "e-2", Origin: "tok-a", Operation: OpInsert})

	if ev := collectEvent(t, subB); ev.ID != "e-1" {
		t.Fatalf("delivered = %q, want e-1", ev.ID)
	}
	select {
	case ev := <-subB:
		t.Fatalf("throttled frame crossed anyway: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := coordA.throttled.Load(); got != 1 {
		t.Fatalf("throttled = %d, want 1", got)
	}
}

func TestCoordinatorDestroyDetaches(t *testing.T) {
	busA, busB, coordA, _ := coordinatorPair(t)

	if err := coordA.destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := coordA.destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	subB, cancel := busB.Subscribe()
	defer cancel()

	busA.Emit(ChangeEvent{ID: "after", Origin: "tok-a", Operation: OpInsert})

	select {
	case ev := <-subB:
		t.Fatalf("event crossed after destroy: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDedupeWindowEvicts(t *testing.T) {
	w := newDedupeWindow(2)

	if !w.Add(1) || !w.Add(2) {
		t.Fatal("fresh keys must be new")
	}
	if w.Add(1) {
		t.Fatal("key 1 should still be remembered")
	}
	// Adding a third evicts key 1, the oldest.
	if !w.Add(3) {
		t.Fatal("key 3 must be new")
	}
	if !w.Add(1) {
		t.Fatal("key 1 should have been evicted")
	}
	if w.Add(3) {
		t.Fatal("key 3 should still be remembered")
	}
}

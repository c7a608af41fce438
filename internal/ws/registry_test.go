package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/voice-relay/backend/internal/model"
)

// Property: after any mix of connects and disconnects the registry holds
// exactly the live clients, and every bound identity points at a live one.
func TestRegistryTracksLiveClientsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("registry matches connects minus disconnects", prop.ForAll(
		func(ops []uint8) bool {
			r := NewRegistry()
			live := make(map[string]*Client)
			var order []*Client

			for i, op := range ops {
				switch {
				case op%3 != 0 || len(order) == 0:
					c := NewClient(nil, 1)
					r.Add(c)
					if op%2 == 0 {
						_ = r.AssignIdentity(c.ID(), fmt.Sprintf("id-%d", op%5))
					}
					live[c.ID()] = c
					order = append(order, c)
				default:
					victim := order[i%len(order)]
					r.Remove(victim.ID())
					delete(live, victim.ID())
				}
			}

			if r.Len() != len(live) {
				return false
			}
			for _, c := range r.Snapshot() {
				if live[c.ID()] != c {
					return false
				}
			}
			for i := 0; i < 5; i++ {
				if c, ok := r.Lookup(fmt.Sprintf("id-%d", i)); ok {
					if live[c.ID()] != c {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestRegistryAssignIdentity(t *testing.T) {
	r := NewRegistry()
	a := NewClient(nil, 1)
	r.Add(a)

	if err := r.AssignIdentity(a.ID(), "display"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if got, ok := r.Lookup("display"); !ok || got != a {
		t.Fatal("identity not bound")
	}
	if err := r.AssignIdentity(a.ID(), "other"); err != model.ErrIdentityAlreadySet {
		t.Fatalf("expected ErrIdentityAlreadySet, got %v", err)
	}
	if a.Identity() != "display" || a.State() != model.ConnectionStatusIdentified {
		t.Fatalf("unexpected client state %s/%s", a.Identity(), a.State())
	}

	if err := r.AssignIdentity("missing", "ghost"); err != nil {
		t.Fatalf("unknown handle should be ignored, got %v", err)
	}
	if _, ok := r.Lookup("ghost"); ok {
		t.Fatal("unknown handle must not bind")
	}
}

func TestRegistryReassignKeepsDisplacedClient(t *testing.T) {
	r := NewRegistry()
	first := NewClient(nil, 1)
	second := NewClient(nil, 1)
	r.Add(first)
	r.Add(second)

	_ = r.AssignIdentity(first.ID(), "display")
	_ = r.AssignIdentity(second.ID(), "display")

	if got, _ := r.Lookup("display"); got != second {
		t.Fatal("latest declaration should own the identity")
	}
	if _, ok := r.Get(first.ID()); !ok || first.IsClosed() {
		t.Fatal("displaced client should stay live and open")
	}

	// Removing the displaced client must not unbind its replacement.
	r.Remove(first.ID())
	if got, ok := r.Lookup("display"); !ok || got != second {
		t.Fatal("replacement binding was lost")
	}
	if r.Identified() != 1 {
		t.Fatalf("expected 1 identity, got %d", r.Identified())
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := NewClient(nil, 1)
	r.Add(c)
	_ = r.AssignIdentity(c.ID(), "display")

	if !r.Remove(c.ID()) {
		t.Fatal("first remove should report true")
	}
	if r.Remove(c.ID()) {
		t.Fatal("second remove should be a no-op")
	}
	if _, ok := r.Lookup("display"); ok {
		t.Fatal("identity should be unbound")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryAllExcept(t *testing.T) {
	r := NewRegistry()
	clients := make([]*Client, 4)
	for i := range clients {
		clients[i] = NewClient(nil, 1)
		r.Add(clients[i])
	}

	got := r.AllExcept(clients[1].ID())
	if len(got) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(got))
	}
	for _, c := range got {
		if c == clients[1] {
			t.Fatal("excluded client was returned")
		}
	}
	if len(r.AllExcept("unknown")) != 4 {
		t.Fatal("unknown handle should exclude nobody")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c := NewClient(nil, 1)
				r.Add(c)
				_ = r.AssignIdentity(c.ID(), fmt.Sprintf("w%d", w))
				_ = r.AllExcept(c.ID())
				r.Remove(c.ID())
			}
		}(w)
	}
	wg.Wait()

	if r.Len() != 0 || r.Identified() != 0 {
		t.Fatalf("registry should be empty, got %d clients and %d identities", r.Len(), r.Identified())
	}
}

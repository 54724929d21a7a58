package session

import (
	"errors"
	"testing"

	"github.com/scrivano/boardsync/internal/models"
)

func TestCanWrite(t *testing.T) {
	cases := []struct {
		name                     string
		id, owner, controller    string
		want                     bool
	}{
		{"owner writes", "alice", "alice", "alice", true},
		{"controller writes", "bob", "alice", "bob", true},
		{"viewer refused", "carol", "alice", "bob", false},
		{"empty identity refused", "", "alice", "", false},
	}
	for _, c := range cases {
		if got := CanWrite(c.id, c.owner, c.controller); got != c.want {
			t.Errorf("%s: CanWrite(%q,%q,%q) = %v, want %v", c.name, c.id, c.owner, c.controller, got, c.want)
		}
	}
}

func TestGrantControlOwnerOnly(t *testing.T) {
	owner := NewGate(models.Participant{ID: "alice", IsOwner: true}, "alice")
	viewer := NewGate(models.Participant{ID: "bob"}, "alice")

	if err := viewer.GrantControl("bob"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("viewer grant: got %v, want ErrNotAuthorized", err)
	}

	if err := owner.GrantControl("bob"); err != nil {
		t.Fatalf("owner grant: %v", err)
	}
	if owner.Controller() != "bob" {
		t.Errorf("controller %q, want bob", owner.Controller())
	}
	// Owner retains write rights even after handing off control.
	if !owner.CanWrite() {
		t.Error("owner should always keep write rights")
	}
}

func TestControlReassignmentFlipsLocalRights(t *testing.T) {
	a := NewGate(models.Participant{ID: "a"}, "owner")
	b := NewGate(models.Participant{ID: "b"}, "owner")

	a.ApplyControl("a")
	b.ApplyControl("a")
	if !a.CanWrite() || b.CanWrite() {
		t.Fatal("a should write, b should not")
	}

	a.ApplyControl("b")
	b.ApplyControl("b")
	if a.CanWrite() || !b.CanWrite() {
		t.Error("after reassignment b should write, a should not")
	}
}

func TestRosterLifecycle(t *testing.T) {
	g := NewGate(models.Participant{ID: "alice", IsOwner: true}, "alice")
	g.SetRoster([]models.Participant{
		{ID: "alice", DisplayName: "Alice", IsOwner: true},
		{ID: "bob", DisplayName: "Bob"},
	})

	g.MemberJoined(models.Participant{ID: "carol", DisplayName: "Carol"})
	g.MemberJoined(models.Participant{ID: "bob", DisplayName: "Bob"}) // duplicate ignored
	if n := len(g.Roster()); n != 3 {
		t.Fatalf("roster size %d, want 3", n)
	}

	g.MemberLeft("bob")
	roster := g.Roster()
	if len(roster) != 2 || roster[0].ID != "alice" || roster[1].ID != "carol" {
		t.Errorf("roster after leave: %+v", roster)
	}
}

func TestControlRevertsWhenControllerLeaves(t *testing.T) {
	g := NewGate(models.Participant{ID: "alice", IsOwner: true}, "alice")
	g.SetRoster([]models.Participant{{ID: "alice"}, {ID: "bob"}})
	g.ApplyControl("bob")

	g.MemberLeft("bob")
	if g.Controller() != "alice" {
		t.Errorf("controller %q, want reverted to alice", g.Controller())
	}
}

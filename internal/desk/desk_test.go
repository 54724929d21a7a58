package desk

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
	"github.com/scrivano/boardsync/internal/session"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func pool() []models.TemplateCard {
	return []models.TemplateCard{
		{ID: "m1", FrontImage: "m1f.jpg", BackImage: "m1b.jpg"},
		{ID: "m3", FrontImage: "m3f.jpg", BackImage: "m3b.jpg"},
	}
}

func newDesk(t *testing.T, bus *realtime.MemoryBus, id string, owner bool) *Desk {
	t.Helper()
	d, err := New(Config{
		SessionID: "s1",
		Self:      models.Participant{ID: id, DisplayName: id, IsOwner: owner},
		OwnerID:   "alice",
		Transport: bus.Transport(),
		Pool:      pool(),
		Clock:     clockwork.NewFakeClock(),
		Rng:       rand.New(rand.NewSource(11)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Disconnect)
	return d
}

func TestWriterAddPropagatesWithoutEcho(t *testing.T) {
	bus := realtime.NewMemoryBus()
	writer := newDesk(t, bus, "alice", true)
	reader := newDesk(t, bus, "bob", false)

	// spy endpoint counting everything on the channel
	spy := bus.Transport()
	if err := spy.Connect(context.Background(), "s1", models.Participant{ID: "spy"}); err != nil {
		t.Fatal(err)
	}

	tok, err := writer.AddToken("m3")
	if err != nil {
		t.Fatal(err)
	}
	if !tok.IsFront || tok.BackImage != "" {
		t.Fatalf("new token %+v", tok)
	}

	eventually(t, func() bool { return reader.Store().Len() == 1 }, "reader never received the token")

	got, err := reader.Store().Get(tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TemplateID != "m3" || got.X != tok.X || got.Y != tok.Y || !got.IsFront || got.BackImage != "" {
		t.Errorf("replica token %+v differs from original %+v", got, tok)
	}

	// Exactly one TokenAdded on the wire: the reader applied it with
	// remote origin and must not have re-published.
	time.Sleep(50 * time.Millisecond)
	var count int
	for {
		select {
		case <-spy.Receive():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("saw %d events on the channel, want 1", count)
	}
}

func TestReaderMutationsRefusedLocally(t *testing.T) {
	bus := realtime.NewMemoryBus()
	writer := newDesk(t, bus, "alice", true)
	reader := newDesk(t, bus, "bob", false)

	tok, err := writer.AddToken("m1")
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return reader.Store().Len() == 1 }, "reader never received the token")

	if err := reader.MoveToken(tok.ID, 50, 50); !errors.Is(err, session.ErrNotAuthorized) {
		t.Errorf("move: got %v, want ErrNotAuthorized", err)
	}
	if _, err := reader.AddToken("m3"); !errors.Is(err, session.ErrNotAuthorized) {
		t.Errorf("add: got %v, want ErrNotAuthorized", err)
	}
	if err := reader.FlipToken(tok.ID); !errors.Is(err, session.ErrNotAuthorized) {
		t.Errorf("flip: got %v, want ErrNotAuthorized", err)
	}

	// Nothing leaked to the writer.
	time.Sleep(50 * time.Millisecond)
	got, _ := writer.Store().Get(tok.ID)
	if got.X != tok.X || got.Y != tok.Y {
		t.Errorf("writer replica moved to (%v,%v)", got.X, got.Y)
	}
}

func TestControlReassignmentFlipsWriteRights(t *testing.T) {
	bus := realtime.NewMemoryBus()
	alice := newDesk(t, bus, "alice", true)
	bob := newDesk(t, bus, "bob", false)

	tok, err := alice.AddToken("m1")
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return bob.Store().Len() == 1 }, "bob never received the token")

	// Only the owner may reassign.
	if err := bob.GrantControl("bob"); !errors.Is(err, session.ErrNotAuthorized) {
		t.Fatalf("bob grant: got %v, want ErrNotAuthorized", err)
	}

	if err := alice.GrantControl("bob"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return bob.Gate().CanWrite() }, "bob never gained control")

	// Bob's mutations now apply and propagate back to alice.
	if err := bob.MoveToken(tok.ID, 77, 88); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		got, err := alice.Store().Get(tok.ID)
		return err == nil && got.X == 77 && got.Y == 88
	}, "alice never saw bob's move")

	// The owner keeps write rights after handing off control.
	if err := alice.MoveToken(tok.ID, 1, 2); err != nil {
		t.Fatal(err)
	}
}

func TestFlipPropagatesConvergentFace(t *testing.T) {
	bus := realtime.NewMemoryBus()
	writer := newDesk(t, bus, "alice", true)
	reader := newDesk(t, bus, "bob", false)

	tok, err := writer.AddToken("m1")
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return reader.Store().Len() == 1 }, "reader never received the token")

	if err := writer.FlipToken(tok.ID); err != nil {
		t.Fatal(err)
	}
	local, _ := writer.Store().Get(tok.ID)
	if local.BackImage != "m3b.jpg" {
		t.Fatalf("back image %q, want the other template's back", local.BackImage)
	}

	eventually(t, func() bool {
		got, err := reader.Store().Get(tok.ID)
		return err == nil && !got.IsFront && got.BackImage == local.BackImage
	}, "reader never converged on the flipped face")
}

func TestLoadInitialDoesNotBroadcast(t *testing.T) {
	bus := realtime.NewMemoryBus()
	d := newDesk(t, bus, "alice", true)

	spy := bus.Transport()
	if err := spy.Connect(context.Background(), "s1", models.Participant{ID: "spy"}); err != nil {
		t.Fatal(err)
	}

	d.LoadInitial(models.BoardState{
		SessionID: "s1",
		Viewport:  models.Viewport{Zoom: 2.0},
		Tokens:    []*models.Token{{ID: "a", TemplateID: "m1", Scale: 1, IsFront: true}},
	})
	if d.Store().Len() != 1 || d.Store().Viewport().Zoom != 2.0 {
		t.Fatal("initial state not loaded")
	}

	select {
	case ev := <-spy.Receive():
		t.Fatalf("initial load leaked %s to the channel", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

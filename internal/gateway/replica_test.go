package gateway

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
)

func mustEvent(t *testing.T, typ realtime.EventType, payload any) realtime.Event {
	t.Helper()
	ev, err := realtime.NewEvent("s1", typ, "alice", payload)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestReplicaAppliesDeltas(t *testing.T) {
	r := newReplica("s1", clockwork.NewFakeClock())

	r.apply(mustEvent(t, realtime.EventTokenAdded, realtime.TokenAddedPayload{
		Token: &models.Token{ID: "m1-1", TemplateID: "m1", X: 10, Y: 20, Scale: 1, IsFront: true},
	}))
	r.apply(mustEvent(t, realtime.EventTokenMoved, realtime.TokenMovedPayload{
		TokenID: "m1-1", X: 300, Y: 400,
	}))
	r.apply(mustEvent(t, realtime.EventTokenRotated, realtime.TokenRotatedPayload{
		TokenID: "m1-1", Angle: 370,
	}))

	state, dirty := r.snapshot(true)
	if !dirty {
		t.Error("replica not dirty after applied deltas")
	}
	if len(state.Tokens) != 1 {
		t.Fatalf("replica has %d tokens, want 1", len(state.Tokens))
	}
	tok := state.Tokens[0]
	if tok.X != 300 || tok.Y != 400 {
		t.Errorf("token at (%v, %v), want (300, 400)", tok.X, tok.Y)
	}
	if tok.Angle != 10 {
		t.Errorf("token angle %v, want normalized 10", tok.Angle)
	}

	if _, dirty := r.snapshot(true); dirty {
		t.Error("replica still dirty after snapshot drained it")
	}
}

func TestReplicaSkipsBadEvents(t *testing.T) {
	r := newReplica("s1", clockwork.NewFakeClock())

	// unknown token, unparseable payload, unknown type
	r.apply(mustEvent(t, realtime.EventTokenMoved, realtime.TokenMovedPayload{TokenID: "ghost", X: 1, Y: 2}))
	r.apply(realtime.Event{SessionID: "s1", Type: realtime.EventTokenAdded, Data: []byte("{broken")})
	r.apply(realtime.Event{SessionID: "s1", Type: "Bogus", Data: []byte("{}")})

	state, dirty := r.snapshot(true)
	if dirty {
		t.Error("replica marked dirty by skipped events")
	}
	if len(state.Tokens) != 0 {
		t.Errorf("replica has %d tokens, want 0", len(state.Tokens))
	}
}

func TestReplicaSeedIsNotDirty(t *testing.T) {
	r := newReplica("s1", clockwork.NewFakeClock())
	r.seed(models.BoardState{
		SessionID: "s1",
		Viewport:  models.DefaultViewport(),
		Tokens:    []*models.Token{{ID: "m1-1", TemplateID: "m1", Scale: 1, IsFront: true}},
	})

	state, dirty := r.snapshot(true)
	if dirty {
		t.Error("seeding marked the replica dirty")
	}
	if len(state.Tokens) != 1 {
		t.Errorf("seeded replica has %d tokens, want 1", len(state.Tokens))
	}
}

func TestReplicaControlReassignment(t *testing.T) {
	r := newReplica("s1", clockwork.NewFakeClock())
	vp := &models.Viewport{Zoom: 2, Offset: models.Point{X: 5, Y: 5}}

	r.apply(mustEvent(t, realtime.EventControlReassigned, realtime.ControlReassignedPayload{
		ControllerID: "bob",
		Tokens:       []*models.Token{{ID: "m2-1", TemplateID: "m2", Scale: 1, IsFront: true}},
		Viewport:     vp,
	}))

	if got := r.controller(); got != "bob" {
		t.Errorf("controller %q, want bob", got)
	}
	state, _ := r.snapshot(false)
	if len(state.Tokens) != 1 || state.Tokens[0].ID != "m2-1" {
		t.Errorf("snapshot tokens %+v, want the reassignment snapshot", state.Tokens)
	}
	if state.Viewport.Zoom != 2 {
		t.Errorf("viewport zoom %v, want 2", state.Viewport.Zoom)
	}
}

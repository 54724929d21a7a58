package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/session"
)

// Reconciler applies inbound remote events to the local board and session
// state. Every mutation it makes is remote-origin, which is what keeps the
// publisher from echoing it back out. Malformed deltas are dropped and
// logged; nothing here may take down the dispatch loop.
type Reconciler struct {
	store *board.Store
	gate  *session.Gate
}

// NewReconciler creates a reconciler over the given board and gate.
func NewReconciler(store *board.Store, gate *session.Gate) *Reconciler {
	return &Reconciler{store: store, gate: gate}
}

// Attach registers one handler per event kind on the client.
func (r *Reconciler) Attach(c *Client) {
	c.OnRemote(EventTokenAdded, r.onTokenAdded)
	c.OnRemote(EventTokenMoved, r.onTokenMoved)
	c.OnRemote(EventTokenRotated, r.onTokenRotated)
	c.OnRemote(EventTokenScaled, r.onTokenScaled)
	c.OnRemote(EventTokenFlipped, r.onTokenFlipped)
	c.OnRemote(EventTokenRemoved, r.onTokenRemoved)
	c.OnRemote(EventViewportChanged, r.onViewportChanged)
	c.OnRemote(EventControlReassigned, r.onControlReassigned)
	c.OnRemote(EventPresenceSnapshot, r.onPresenceSnapshot)
	c.OnRemote(EventMemberJoined, r.onMemberJoined)
	c.OnRemote(EventMemberLeft, r.onMemberLeft)
}

func decode[T any](ev Event) (T, error) {
	var payload T
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrValidation, ev.Type, err)
	}
	return payload, nil
}

func dropInvalid(ev Event, err error) {
	// Unknown token ids can happen transiently around snapshot loads;
	// last-applied-wins means the next full delta heals it.
	log.Warn().
		Err(err).
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("sender_id", ev.SenderID).
		Msg("dropping remote event")
}

func (r *Reconciler) onTokenAdded(ev Event) {
	p, err := decode[TokenAddedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if _, err := r.store.Insert(p.Token, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onTokenMoved(ev Event) {
	p, err := decode[TokenMovedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if p.TokenID == "" {
		dropInvalid(ev, board.ErrMissingID)
		return
	}
	if _, err := r.store.Move(p.TokenID, p.X, p.Y, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onTokenRotated(ev Event) {
	p, err := decode[TokenRotatedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if p.TokenID == "" {
		dropInvalid(ev, board.ErrMissingID)
		return
	}
	if _, err := r.store.Rotate(p.TokenID, p.Angle, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onTokenScaled(ev Event) {
	p, err := decode[TokenScaledPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if p.TokenID == "" {
		dropInvalid(ev, board.ErrMissingID)
		return
	}
	if _, err := r.store.Scale(p.TokenID, p.Scale, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onTokenFlipped(ev Event) {
	p, err := decode[TokenFlippedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if p.TokenID == "" {
		dropInvalid(ev, board.ErrMissingID)
		return
	}
	if _, err := r.store.SetFace(p.TokenID, p.IsFront, p.BackImage, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onTokenRemoved(ev Event) {
	p, err := decode[TokenRemovedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	if p.TokenID == "" {
		dropInvalid(ev, board.ErrMissingID)
		return
	}
	if _, err := r.store.Remove(p.TokenID, board.OriginRemote); err != nil {
		dropInvalid(ev, err)
	}
}

func (r *Reconciler) onViewportChanged(ev Event) {
	p, err := decode[ViewportChangedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	r.store.SetViewport(models.Viewport{Zoom: p.Zoom, Offset: p.Offset}, board.OriginRemote)
}

func (r *Reconciler) onControlReassigned(ev Event) {
	p, err := decode[ControlReassignedPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	r.gate.ApplyControl(p.ControllerID)
	if p.Tokens != nil {
		r.store.ReplaceAll(p.Tokens, board.OriginRemote)
	}
	if p.Viewport != nil {
		r.store.SetViewport(*p.Viewport, board.OriginRemote)
	}
}

func (r *Reconciler) onPresenceSnapshot(ev Event) {
	p, err := decode[PresenceSnapshotPayload](ev)
	if err != nil {
		dropInvalid(ev, err)
		return
	}
	r.gate.SetRoster(p.Members)
}

func (r *Reconciler) onMemberJoined(ev Event) {
	p, err := decode[MemberJoinedPayload](ev)
	if err != nil || p.Member.ID == "" {
		dropInvalid(ev, err)
		return
	}
	r.gate.MemberJoined(p.Member)
}

func (r *Reconciler) onMemberLeft(ev Event) {
	p, err := decode[MemberLeftPayload](ev)
	if err != nil || p.ParticipantID == "" {
		dropInvalid(ev, err)
		return
	}
	r.gate.MemberLeft(p.ParticipantID)
}

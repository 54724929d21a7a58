package gateway

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
)

// replica is the gateway's authoritative copy of one session's board. Every
// event relayed through the hub is also applied here, so late joiners get a
// current snapshot and the persistence saver has something to flush.
type replica struct {
	sessionID string
	store     *board.Store

	mu           sync.Mutex
	controllerID string
	dirty        bool
}

func newReplica(sessionID string, clock clockwork.Clock) *replica {
	return &replica{
		sessionID: sessionID,
		store:     board.NewStore(clock, rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
}

// apply folds one relayed event into the replica. Failures are logged and
// dropped; a relay must never stall because the replica lagged.
func (r *replica) apply(ev realtime.Event) {
	var err error
	switch ev.Type {
	case realtime.EventTokenAdded:
		var p realtime.TokenAddedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.Insert(p.Token, board.OriginRemote)
		}
	case realtime.EventTokenMoved:
		var p realtime.TokenMovedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.Move(p.TokenID, p.X, p.Y, board.OriginRemote)
		}
	case realtime.EventTokenRotated:
		var p realtime.TokenRotatedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.Rotate(p.TokenID, p.Angle, board.OriginRemote)
		}
	case realtime.EventTokenScaled:
		var p realtime.TokenScaledPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.Scale(p.TokenID, p.Scale, board.OriginRemote)
		}
	case realtime.EventTokenFlipped:
		var p realtime.TokenFlippedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.SetFace(p.TokenID, p.IsFront, p.BackImage, board.OriginRemote)
		}
	case realtime.EventTokenRemoved:
		var p realtime.TokenRemovedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			_, err = r.store.Remove(p.TokenID, board.OriginRemote)
		}
	case realtime.EventViewportChanged:
		var p realtime.ViewportChangedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			r.store.SetViewport(models.Viewport{Zoom: p.Zoom, Offset: p.Offset}, board.OriginRemote)
		}
	case realtime.EventControlReassigned:
		var p realtime.ControlReassignedPayload
		if err = json.Unmarshal(ev.Data, &p); err == nil {
			r.mu.Lock()
			r.controllerID = p.ControllerID
			r.mu.Unlock()
			if p.Tokens != nil {
				r.store.ReplaceAll(p.Tokens, board.OriginRemote)
			}
			if p.Viewport != nil {
				r.store.SetViewport(*p.Viewport, board.OriginRemote)
			}
		}
	default:
		return
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", r.sessionID).
			Str("type", string(ev.Type)).
			Msg("replica skipped event")
		return
	}
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// seed loads a persisted snapshot into the replica without marking it
// dirty.
func (r *replica) seed(state models.BoardState) {
	r.store.ReplaceAll(state.Tokens, board.OriginRemote)
	r.store.SetViewport(state.Viewport, board.OriginRemote)
}

// snapshot returns the current state and clears the dirty flag when take
// is set.
func (r *replica) snapshot(take bool) (models.BoardState, bool) {
	r.mu.Lock()
	wasDirty := r.dirty
	if take {
		r.dirty = false
	}
	r.mu.Unlock()
	return r.store.Snapshot(r.sessionID), wasDirty
}

// controller returns the participant currently holding control.
func (r *replica) controller() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllerID
}

package gesture

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/geom"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/session"
)

// Scale drives one token's scale from vertical pointer travel. Dragging up
// grows the card.
type Scale struct {
	store *board.Store
	gate  *session.Gate
	lock  *Lock
	clock clockwork.Clock

	active      bool
	tokenID     string
	startScale  float64
	startMouseY float64
	lastScale   float64
	lastApplied time.Time
	sensitivity float64
}

// NewScale creates an idle scale controller.
func NewScale(store *board.Store, gate *session.Gate, lock *Lock, clock clockwork.Clock) *Scale {
	return &Scale{store: store, gate: gate, lock: lock, clock: clock, sensitivity: geom.ScaleSensitivity}
}

// Begin activates the controller for one token, freezing the starting
// scale and pointer height.
func (s *Scale) Begin(pointer models.Point, tokenID string) error {
	if !s.gate.CanWrite() {
		log.Debug().Str("token_id", tokenID).Msg("scale refused: no write rights")
		return session.ErrNotAuthorized
	}
	if !s.lock.TryAcquire("scale:" + tokenID) {
		return nil
	}
	tok, err := s.store.Get(tokenID)
	if err != nil {
		s.lock.Release("scale:" + tokenID)
		return err
	}

	s.active = true
	s.tokenID = tokenID
	s.startScale = tok.Scale
	s.startMouseY = pointer.Y
	s.lastScale = tok.Scale
	s.lastApplied = s.clock.Now()
	return nil
}

// PointerMove applies one pointer sample under the shared throttle. The
// rounded result is compared against the last applied scale so float noise
// never reaches the store or the wire.
func (s *Scale) PointerMove(pointer models.Point) {
	if !s.active {
		return
	}
	now := s.clock.Now()
	if now.Sub(s.lastApplied) < minMoveInterval {
		return
	}

	newScale := geom.ComputeScale(s.startScale, s.startMouseY, pointer.Y, s.sensitivity)
	if newScale == s.lastScale {
		return
	}
	s.lastScale = newScale
	s.lastApplied = now

	if _, err := s.store.Scale(s.tokenID, newScale, board.OriginLocal); err != nil {
		log.Warn().Err(err).Str("token_id", s.tokenID).Msg("scale gesture dropped")
	}
}

// End deactivates the controller unconditionally and frees the lock.
func (s *Scale) End() {
	if !s.active {
		return
	}
	s.active = false
	s.lock.Release("scale:" + s.tokenID)
}

// Active reports whether a scale gesture is in progress.
func (s *Scale) Active() bool { return s.active }

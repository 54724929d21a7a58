// Package gesture turns raw pointer movement into committed board
// mutations. Each controller is a small Idle -> Active -> Idle state
// machine: Begin freezes a snapshot of the gesture's starting conditions,
// PointerMove runs the geometry math under a 16 ms throttle, End releases
// unconditionally (pointer-up anywhere in the document).
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

// minMoveInterval caps applied pointer-move updates at ~60 Hz. The check is
// a monotonic-clock comparison at the top of the move handler so it stays
// synchronous with the input stream.
const minMoveInterval = 16 * time.Millisecond

// inGestureAngleEpsilon suppresses angle updates smaller than this while a
// rotation is in flight; the store applies its own commit dead-band on top.
const inGestureAngleEpsilon = 0.2

// Rotate drives one token's rotation from pointer movement around its
// center. The per-gesture unwrap state (lastDeltaAngle) lives here.
type Rotate struct {
	store *board.Store
	gate  *session.Gate
	lock  *Lock
	clock clockwork.Clock

	active          bool
	tokenID         string
	centerX         float64
	centerY         float64
	startMouseAngle float64
	startCardAngle  float64
	lastDeltaAngle  float64
	lastAngle       float64
	lastApplied     time.Time
}

// NewRotate creates an idle rotation controller.
func NewRotate(store *board.Store, gate *session.Gate, lock *Lock, clock clockwork.Clock) *Rotate {
	return &Rotate{store: store, gate: gate, lock: lock, clock: clock}
}

// Begin activates the controller for one token. The pointer position and
// the token's center are frozen as the gesture's reference frame. Refused
// silently when the participant has no write rights or another gesture is
// in progress.
func (r *Rotate) Begin(pointer, center models.Point, tokenID string) error {
	if !r.gate.CanWrite() {
		log.Debug().Str("token_id", tokenID).Msg("rotate refused: no write rights")
		return session.ErrNotAuthorized
	}
	if !r.lock.TryAcquire("rotate:" + tokenID) {
		return nil
	}
	tok, err := r.store.Get(tokenID)
	if err != nil {
		r.lock.Release("rotate:" + tokenID)
		return err
	}

	r.active = true
	r.tokenID = tokenID
	r.centerX, r.centerY = center.X, center.Y
	r.startMouseAngle = geom.MouseAngle(center.X, center.Y, pointer.X, pointer.Y)
	r.startCardAngle = tok.Angle
	r.lastDeltaAngle = 0
	r.lastAngle = tok.Angle
	r.lastApplied = r.clock.Now()
	return nil
}

// PointerMove applies one pointer sample. No-op while idle, throttled to
// one applied update per 16 ms, and skipped entirely when the pointer is
// too close to the center for a stable angle.
func (r *Rotate) PointerMove(pointer models.Point) {
	if !r.active {
		return
	}
	now := r.clock.Now()
	if now.Sub(r.lastApplied) < minMoveInterval {
		return
	}
	if !geom.RotationStable(r.centerX, r.centerY, pointer.X, pointer.Y) {
		return
	}

	newAngle, newDelta := geom.ComputeRotation(
		r.centerX, r.centerY,
		r.startMouseAngle, r.startCardAngle, r.lastDeltaAngle,
		pointer.X, pointer.Y,
	)
	r.lastDeltaAngle = newDelta

	if d := newAngle - r.lastAngle; d < inGestureAngleEpsilon && d > -inGestureAngleEpsilon {
		return
	}
	r.lastAngle = newAngle
	r.lastApplied = now

	if _, err := r.store.Rotate(r.tokenID, newAngle, board.OriginLocal); err != nil {
		log.Warn().Err(err).Str("token_id", r.tokenID).Msg("rotate gesture dropped")
	}
}

// End deactivates the controller unconditionally and frees the lock.
func (r *Rotate) End() {
	if !r.active {
		return
	}
	r.active = false
	r.lock.Release("rotate:" + r.tokenID)
}

// Active reports whether a rotation is in progress.
func (r *Rotate) Active() bool { return r.active }

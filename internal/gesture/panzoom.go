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

const panHolder = "pan"

// PanZoom drives the shared viewport: drag to pan, wheel to zoom around
// the pointer. Panning is a gesture like any other and takes the
// interaction lock; wheel zoom is instantaneous but refused while a
// per-token gesture holds the lock.
type PanZoom struct {
	store *board.Store
	gate  *session.Gate
	lock  *Lock
	clock clockwork.Clock

	active       bool
	moved        bool
	startOffset  models.Point
	startPointer models.Point
	lastApplied  time.Time
}

// NewPanZoom creates an idle pan/zoom controller.
func NewPanZoom(store *board.Store, gate *session.Gate, lock *Lock, clock clockwork.Clock) *PanZoom {
	return &PanZoom{store: store, gate: gate, lock: lock, clock: clock}
}

// Begin starts a pan, freezing the current offset and pointer position.
func (p *PanZoom) Begin(pointer models.Point) error {
	if !p.gate.CanWrite() {
		log.Debug().Msg("pan refused: no write rights")
		return session.ErrNotAuthorized
	}
	if !p.lock.TryAcquire(panHolder) {
		return nil
	}
	p.active = true
	p.moved = false
	p.startOffset = p.store.Viewport().Offset
	p.startPointer = pointer
	p.lastApplied = p.clock.Now()
	return nil
}

// PointerMove applies one pointer sample. Travel below the jitter
// threshold is ignored so a plain click never pans the board.
func (p *PanZoom) PointerMove(pointer models.Point) {
	if !p.active {
		return
	}
	now := p.clock.Now()
	if now.Sub(p.lastApplied) < minMoveInterval {
		return
	}
	if !p.moved && !geom.PanMeaningful(p.startPointer, pointer) {
		return
	}
	p.moved = true
	p.lastApplied = now

	v := p.store.Viewport()
	v.Offset = geom.ComputePan(p.startOffset, p.startPointer, pointer)
	p.store.SetViewport(v, board.OriginLocal)
}

// End deactivates the pan unconditionally and frees the lock.
func (p *PanZoom) End() {
	if !p.active {
		return
	}
	p.active = false
	p.lock.Release(panHolder)
}

// Active reports whether a pan is in progress.
func (p *PanZoom) Active() bool { return p.active }

// Wheel applies one zoom step around the pointer. wheelDelta > 0 zooms
// out. The board point under the pointer stays fixed.
func (p *PanZoom) Wheel(wheelDelta float64, pointer models.Point) error {
	if !p.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	if !p.active && p.lock.Held() {
		// a per-token gesture is in flight
		return nil
	}

	v := p.store.Viewport()
	newZoom, newOffset := geom.ComputeZoom(v.Zoom, wheelDelta, pointer, v.Offset)
	if newZoom == v.Zoom && newOffset == v.Offset {
		return nil
	}
	p.store.SetViewport(models.Viewport{Zoom: newZoom, Offset: newOffset}, board.OriginLocal)
	return nil
}

// Reset restores the default viewport, broadcast like any other viewport
// change.
func (p *PanZoom) Reset() error {
	if !p.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	p.store.ResetViewport(board.OriginLocal)
	return nil
}

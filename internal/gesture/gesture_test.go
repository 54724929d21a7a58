package gesture

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/session"
)

type rig struct {
	clock *clockwork.FakeClock
	store *board.Store
	gate  *session.Gate
	lock  *Lock
}

func newRig(canWrite bool) *rig {
	clock := clockwork.NewFakeClock()
	store := board.NewStore(clock, rand.New(rand.NewSource(7)))
	owner := "owner"
	self := models.Participant{ID: "viewer"}
	if canWrite {
		self = models.Participant{ID: owner, IsOwner: true}
	}
	return &rig{
		clock: clock,
		store: store,
		gate:  session.NewGate(self, owner),
		lock:  &Lock{},
	}
}

func pointerAt(center models.Point, radius, deg float64) models.Point {
	rad := deg * math.Pi / 180
	return models.Point{X: center.X + radius*math.Cos(rad), Y: center.Y + radius*math.Sin(rad)}
}

func TestRotateGestureWrapCommitsNormalized(t *testing.T) {
	r := newRig(true)
	id := r.store.Add("tpl-1", board.OriginLocal).Token.ID
	if _, err := r.store.Rotate(id, 10, board.OriginLocal); err != nil {
		t.Fatal(err)
	}

	center := models.Point{X: 400, Y: 300}
	ctrl := NewRotate(r.store, r.gate, r.lock, r.clock)
	if err := ctrl.Begin(pointerAt(center, 100, 0), center, id); err != nil {
		t.Fatal(err)
	}

	// One full pointer revolution, crossing the atan2 seam twice. The raw
	// card angle passes through -5 (stored as 355) and ends at 370, which
	// must commit as 10, not 370 and not -350.
	var seen []float64
	r.store.OnChange(func(m board.Mutation) {
		if m.Kind == board.KindRotate {
			seen = append(seen, m.Token.Angle)
		}
	})

	for _, deg := range []float64{-15, 80, 160, -160, -80, 0} {
		r.clock.Advance(20 * time.Millisecond)
		ctrl.PointerMove(pointerAt(center, 100, deg))
	}
	ctrl.End()

	if len(seen) != 6 {
		t.Fatalf("applied %d frames, want 6: %v", len(seen), seen)
	}
	if seen[0] != 355 {
		t.Errorf("first frame stored %v, want 355", seen[0])
	}
	final, _ := r.store.Get(id)
	if final.Angle != 10 {
		t.Errorf("committed angle %v, want 10", final.Angle)
	}
}

func TestRotateThrottleAndRadiusGuard(t *testing.T) {
	r := newRig(true)
	id := r.store.Add("tpl-1", board.OriginLocal).Token.ID
	center := models.Point{X: 0, Y: 0}

	ctrl := NewRotate(r.store, r.gate, r.lock, r.clock)
	if err := ctrl.Begin(pointerAt(center, 100, 0), center, id); err != nil {
		t.Fatal(err)
	}

	var applied int
	r.store.OnChange(func(m board.Mutation) {
		if m.Kind == board.KindRotate {
			applied++
		}
	})

	// within 16 ms of Begin: dropped
	ctrl.PointerMove(pointerAt(center, 100, 45))
	if applied != 0 {
		t.Fatal("move inside throttle window should be dropped")
	}

	// pointer too close to the center: dropped even after the window
	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 2, Y: 2})
	if applied != 0 {
		t.Fatal("move inside minimum radius should be dropped")
	}

	ctrl.PointerMove(pointerAt(center, 100, 45))
	if applied != 1 {
		t.Fatalf("applied %d updates, want 1", applied)
	}
}

func TestGestureRefusedWithoutWriteRights(t *testing.T) {
	r := newRig(false)
	id := r.store.Add("tpl-1", board.OriginRemote).Token.ID
	center := models.Point{}

	if err := NewRotate(r.store, r.gate, r.lock, r.clock).Begin(pointerAt(center, 50, 0), center, id); err != session.ErrNotAuthorized {
		t.Errorf("rotate begin: got %v, want ErrNotAuthorized", err)
	}
	if err := NewScale(r.store, r.gate, r.lock, r.clock).Begin(models.Point{}, id); err != session.ErrNotAuthorized {
		t.Errorf("scale begin: got %v, want ErrNotAuthorized", err)
	}
	if err := NewPanZoom(r.store, r.gate, r.lock, r.clock).Wheel(-1, models.Point{}); err != session.ErrNotAuthorized {
		t.Errorf("wheel: got %v, want ErrNotAuthorized", err)
	}
}

func TestInteractionLockMutualExclusion(t *testing.T) {
	r := newRig(true)
	id := r.store.Add("tpl-1", board.OriginLocal).Token.ID
	center := models.Point{X: 0, Y: 0}

	rot := NewRotate(r.store, r.gate, r.lock, r.clock)
	pan := NewPanZoom(r.store, r.gate, r.lock, r.clock)

	if err := rot.Begin(pointerAt(center, 50, 0), center, id); err != nil {
		t.Fatal(err)
	}
	if err := pan.Begin(models.Point{X: 10, Y: 10}); err != nil {
		t.Fatal(err)
	}
	if pan.Active() {
		t.Error("pan must not activate while a rotation holds the lock")
	}

	rot.End()
	if err := pan.Begin(models.Point{X: 10, Y: 10}); err != nil {
		t.Fatal(err)
	}
	if !pan.Active() {
		t.Error("pan should activate once the rotation released the lock")
	}

	// and the other way around
	if err := rot.Begin(pointerAt(center, 50, 0), center, id); err != nil {
		t.Fatal(err)
	}
	if rot.Active() {
		t.Error("rotate must not activate while a pan holds the lock")
	}
	pan.End()
}

func TestScaleGestureSuppressesNoise(t *testing.T) {
	r := newRig(true)
	id := r.store.Add("tpl-1", board.OriginLocal).Token.ID

	ctrl := NewScale(r.store, r.gate, r.lock, r.clock)
	if err := ctrl.Begin(models.Point{X: 0, Y: 100}, id); err != nil {
		t.Fatal(err)
	}

	var applied []float64
	r.store.OnChange(func(m board.Mutation) {
		if m.Kind == board.KindScale {
			applied = append(applied, m.Token.Scale)
		}
	})

	// 50 px up at 0.01 sensitivity: 1.0 -> 1.5
	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 0, Y: 50})
	// 0.3 px further: rounds to the same 1.5, no publish
	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 0, Y: 49.7})
	// way past the ceiling: clamps at 3.0
	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 0, Y: -1000})
	ctrl.End()

	want := []float64{1.5, 3.0}
	if len(applied) != len(want) {
		t.Fatalf("applied %v, want %v", applied, want)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Errorf("frame %d: %v, want %v", i, applied[i], want[i])
		}
	}
}

func TestPanIgnoresJitterThenTracks(t *testing.T) {
	r := newRig(true)
	ctrl := NewPanZoom(r.store, r.gate, r.lock, r.clock)
	if err := ctrl.Begin(models.Point{X: 100, Y: 100}); err != nil {
		t.Fatal(err)
	}

	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 101, Y: 101})
	if off := r.store.Viewport().Offset; off != (models.Point{}) {
		t.Errorf("jitter moved the viewport: %+v", off)
	}

	r.clock.Advance(20 * time.Millisecond)
	ctrl.PointerMove(models.Point{X: 130, Y: 90})
	ctrl.End()

	want := models.Point{X: 30, Y: -10}
	if off := r.store.Viewport().Offset; off != want {
		t.Errorf("offset %+v, want %+v", off, want)
	}
}

func TestWheelZoomRefusedDuringTokenGesture(t *testing.T) {
	r := newRig(true)
	id := r.store.Add("tpl-1", board.OriginLocal).Token.ID

	rot := NewRotate(r.store, r.gate, r.lock, r.clock)
	center := models.Point{}
	if err := rot.Begin(pointerAt(center, 50, 0), center, id); err != nil {
		t.Fatal(err)
	}

	pan := NewPanZoom(r.store, r.gate, r.lock, r.clock)
	if err := pan.Wheel(-1, models.Point{X: 50, Y: 50}); err != nil {
		t.Fatal(err)
	}
	if z := r.store.Viewport().Zoom; z != 1.0 {
		t.Errorf("zoom changed to %v during a token gesture", z)
	}

	rot.End()
	if err := pan.Wheel(-1, models.Point{X: 50, Y: 50}); err != nil {
		t.Fatal(err)
	}
	if z := r.store.Viewport().Zoom; math.Abs(z-1.1) > 1e-9 {
		t.Errorf("zoom %v, want 1.1", z)
	}
}

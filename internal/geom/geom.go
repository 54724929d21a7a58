// Package geom holds the pure gesture math: pointer deltas in, new
// rotation angles, scale factors and pan/zoom transforms out. No I/O,
// no state; everything here is unit-testable in isolation.
package geom

import (
	"math"

	"github.com/scrivano/boardsync/internal/models"
)

const (
	MinScale = 0.5
	MaxScale = 3.0
	MinZoom  = 0.5
	MaxZoom  = 3.0

	DefaultZoom  = 1.0
	DefaultScale = 1.0

	ZoomStep         = 0.1
	ScaleSensitivity = 0.01

	// MinRotationRadius is the pointer-to-center distance below which the
	// rotation angle is numerically unstable and updates must be skipped.
	MinRotationRadius = 5.0

	// PanJitter is the minimum pointer travel before a drag counts as a
	// pan rather than a click.
	PanJitter = 2.0
)

// Clamp bounds v into [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// NormalizeAngle maps any angle in degrees into [0, 360).
func NormalizeAngle(deg float64) float64 {
	return math.Mod(math.Mod(deg, 360)+360, 360)
}

// MouseAngle returns the angle in degrees of the pointer relative to a
// center point.
func MouseAngle(centerX, centerY, pointerX, pointerY float64) float64 {
	return math.Atan2(pointerY-centerY, pointerX-centerX) * 180 / math.Pi
}

// ComputeRotation turns the current pointer position into a new card angle.
// The raw delta against the gesture's start angle is unwrapped against the
// previous frame's delta so crossing the atan2 ±180° seam does not snap the
// card by a full turn. The returned angle is intentionally not normalized;
// normalization happens on commit so direction stays stable mid-gesture.
func ComputeRotation(centerX, centerY, startMouseAngle, startCardAngle, lastDeltaAngle, pointerX, pointerY float64) (newAngle, newDelta float64) {
	current := MouseAngle(centerX, centerY, pointerX, pointerY)

	diff := current - startMouseAngle
	if diff-lastDeltaAngle > 180 {
		diff -= 360
	} else if diff-lastDeltaAngle < -180 {
		diff += 360
	}

	return startCardAngle + diff, diff
}

// ComputeScale maps vertical pointer travel since the gesture start into a
// new scale factor. Moving the pointer up grows the card. The result is
// clamped and rounded to two decimals so float noise does not re-publish.
func ComputeScale(startScale, startMouseY, currentMouseY, sensitivity float64) float64 {
	s := startScale + (startMouseY-currentMouseY)*sensitivity
	s = Clamp(s, MinScale, MaxScale)
	return math.Round(s*100) / 100
}

// ComputeZoom applies one wheel step to the viewport. wheelDelta > 0 (wheel
// down) zooms out. The offset is adjusted so the board point under the
// pointer stays visually fixed.
func ComputeZoom(currentZoom, wheelDelta float64, pointer, currentOffset models.Point) (float64, models.Point) {
	step := ZoomStep
	if wheelDelta > 0 {
		step = -ZoomStep
	}
	newZoom := Clamp(currentZoom+step, MinZoom, MaxZoom)

	ratio := newZoom / currentZoom
	return newZoom, models.Point{
		X: pointer.X - (pointer.X-currentOffset.X)*ratio,
		Y: pointer.Y - (pointer.Y-currentOffset.Y)*ratio,
	}
}

// ComputePan translates the start offset by the pointer travel since the
// gesture began. Callers gate on PanMeaningful first.
func ComputePan(startOffset, startPointer, currentPointer models.Point) models.Point {
	return models.Point{
		X: startOffset.X + (currentPointer.X - startPointer.X),
		Y: startOffset.Y + (currentPointer.Y - startPointer.Y),
	}
}

// PanMeaningful reports whether pointer travel exceeds the jitter threshold
// on either axis.
func PanMeaningful(startPointer, currentPointer models.Point) bool {
	return math.Abs(currentPointer.X-startPointer.X) > PanJitter ||
		math.Abs(currentPointer.Y-startPointer.Y) > PanJitter
}

// RotationStable reports whether the pointer is far enough from the center
// for the angle to be trustworthy.
func RotationStable(centerX, centerY, pointerX, pointerY float64) bool {
	return math.Hypot(pointerX-centerX, pointerY-centerY) >= MinRotationRadius
}

// BoardPoint maps a screen position through a viewport back into board
// coordinates.
func BoardPoint(screen models.Point, v models.Viewport) models.Point {
	return models.Point{
		X: (screen.X - v.Offset.X) / v.Zoom,
		Y: (screen.Y - v.Offset.Y) / v.Zoom,
	}
}

package models

// Point is a 2D coordinate in screen or board space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the shared pan/zoom transform applied to the whole board.
type Viewport struct {
	Zoom   float64 `json:"zoom"`
	Offset Point   `json:"offset"`
}

// DefaultViewport is the transform every participant starts from.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1.0}
}

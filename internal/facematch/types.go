// Package facematch provides name and geometry helpers shared by the
// registry, recognition and HTTP layers.
package facematch

import (
	"fmt"
	"math"
)

// BoundingBox is a face rectangle relative to the frame. Every component
// lies in [0, 1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate reports whether every component is a finite value in [0, 1].
func (b BoundingBox) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{{"x", b.X}, {"y", b.Y}, {"width", b.Width}, {"height", b.Height}} {
		if math.IsNaN(v.val) || v.val < 0 || v.val > 1 {
			return fmt.Errorf("bounding box %s=%v outside [0, 1]", v.name, v.val)
		}
	}
	return nil
}

// Clamp returns the box with every component clamped into [0, 1].
// NaN becomes 0.
func (b BoundingBox) Clamp() BoundingBox {
	return BoundingBox{
		X:      clamp01(b.X),
		Y:      clamp01(b.Y),
		Width:  clamp01(b.Width),
		Height: clamp01(b.Height),
	}
}

// Corners returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Corners() []float64 {
	return MarkerToCornerBBox(b.X, b.Y, b.Width, b.Height)
}

// Array returns the box as [x, y, width, height].
func (b BoundingBox) Array() [4]float64 {
	return [4]float64{b.X, b.Y, b.Width, b.Height}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

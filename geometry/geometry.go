// Package geometry provides pure coordinate transforms for normalized
// detection boxes: padding, display flips and conversion to pixel
// rectangles. No I/O happens here.
package geometry

import (
	"fmt"
	"image"
)

// Box is a normalized bounding box in [0,1] coordinates, detector order:
// yMin, xMin, yMax, xMax.
type Box struct {
	YMin float64
	XMin float64
	YMax float64
	XMax float64
}

// NewBox builds a Box from the detector's 4-element output slice.
func NewBox(coords [4]float64) Box {
	return Box{YMin: coords[0], XMin: coords[1], YMax: coords[2], XMax: coords[3]}
}

// Valid reports whether the box has positive extent on both axes.
func (b Box) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

// Pad expands the box by ratio of its own extent, split evenly per side,
// and clamps every coordinate to [0,1]. Boxes already touching the frame
// edge clamp rather than error.
func (b Box) Pad(ratio float64) Box {
	padY := ratio / 2 * (b.YMax - b.YMin)
	padX := ratio / 2 * (b.XMax - b.XMin)
	return Box{
		YMin: clamp01(b.YMin - padY),
		XMin: clamp01(b.XMin - padX),
		YMax: clamp01(b.YMax + padY),
		XMax: clamp01(b.XMax + padX),
	}
}

// Flip reflects both axes (coordinate -> 1-coordinate). Used as a fixed
// display-orientation correction for the on-screen indicator on camera
// mountings that require it; the capture crop always uses the unflipped box.
func (b Box) Flip() Box {
	return Box{
		YMin: clamp01(1 - b.YMax),
		XMin: clamp01(1 - b.XMax),
		YMax: clamp01(1 - b.YMin),
		XMax: clamp01(1 - b.XMin),
	}
}

// ToRect converts the normalized box to a pixel rectangle against the given
// frame dimensions. Degenerate boxes after clamping fall back to a 1x1
// rectangle instead of producing a zero-area crop that would crash a
// downstream image codec.
func (b Box) ToRect(width, height int) (image.Rectangle, error) {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}

	x0 := int(b.XMin * float64(width))
	y0 := int(b.YMin * float64(height))
	x1 := int(b.XMax * float64(width))
	y1 := int(b.YMax * float64(height))

	// Clamp to the frame, then enforce a 1x1 floor.
	x0 = clampInt(x0, 0, width-1)
	y0 = clampInt(y0, 0, height-1)
	x1 = clampInt(x1, 0, width)
	y1 = clampInt(y1, 0, height)

	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}

	return image.Rect(x0, y0, x1, y1), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

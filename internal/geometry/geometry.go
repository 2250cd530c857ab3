// Package geometry provides the box and point value types used by the detectors.
// Boxes come in two forms: corner form (Box) and origin/size form (Rect).
package geometry

import "math"

// Point is a 2D point or a pair of per-axis factors.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is the size of an image in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both sides are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Box is an axis aligned box in corner form [x1, y1, x2, y2].
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Rect is an axis aligned box in origin/size form.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBox builds a box from a [x1, y1, x2, y2] slice.
// ok is false if the slice does not have exactly four elements.
func NewBox(corners []float64) (b Box, ok bool) {
	if len(corners) != 4 {
		return Box{}, false
	}
	return Box{X1: corners[0], Y1: corners[1], X2: corners[2], Y2: corners[3]}, true
}

// Width returns the horizontal extent, floored at zero.
func (b Box) Width() float64 {
	return max(0, b.X2-b.X1)
}

// Height returns the vertical extent, floored at zero.
func (b Box) Height() float64 {
	return max(0, b.Y2-b.Y1)
}

// Area returns max(0, x2-x1) * max(0, y2-y1).
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the center of the box.
func (b Box) Center() Point {
	return Point{X: b.X1 + (b.X2-b.X1)/2, Y: b.Y1 + (b.Y2-b.Y1)/2}
}

// Rect converts the box to origin/size form.
func (b Box) Rect() Rect {
	return Rect{X: b.X1, Y: b.Y1, Width: b.X2 - b.X1, Height: b.Y2 - b.Y1}
}

// Slice returns the box as [x1, y1, x2, y2].
func (b Box) Slice() []float64 {
	return []float64{b.X1, b.Y1, b.X2, b.Y2}
}

// Rescale multiplies x coordinates by sx and y coordinates by sy.
// Used to go from relative (0-1) coordinates to pixels.
func (b Box) Rescale(sx, sy float64) Box {
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Relative converts a pixel box to relative (0-1) coordinates.
// The box is returned unchanged if the dimensions are not positive.
func (b Box) Relative(width, height int) Box {
	if width <= 0 || height <= 0 {
		return b
	}
	return b.Rescale(1/float64(width), 1/float64(height))
}

// Shift moves the box by (dx, dy).
func (b Box) Shift(dx, dy float64) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Clip clamps the box to [0, width] x [0, height].
func (b Box) Clip(width, height float64) Box {
	return Box{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
}

// Round rounds every coordinate to the nearest integer.
func (b Box) Round() Box {
	return Box{X1: math.Round(b.X1), Y1: math.Round(b.Y1), X2: math.Round(b.X2), Y2: math.Round(b.Y2)}
}

// Square grows the shorter side so the box becomes a square around the same center.
func (b Box) Square() Box {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	side := max(w, h)
	x1 := b.X1 + w/2 - side/2
	y1 := b.Y1 + h/2 - side/2
	return Box{X1: x1, Y1: y1, X2: x1 + side, Y2: y1 + side}
}

// Pad grows the box by a fraction of its size on each side.
func (b Box) Pad(fx, fy float64) Box {
	dx := (b.X2 - b.X1) * fx
	dy := (b.Y2 - b.Y1) * fy
	return Box{X1: b.X1 - dx, Y1: b.Y1 - dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Box converts the rect to corner form.
func (r Rect) Box() Box {
	return Box{X1: r.X, Y1: r.Y, X2: r.X + r.Width, Y2: r.Y + r.Height}
}

// Rescale multiplies the rect by per-axis factors.
func (r Rect) Rescale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// Area returns the area of the rect, floored at zero.
func (r Rect) Area() float64 {
	return r.Box().Area()
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

// IntersectionArea returns the overlapping area of two boxes, zero if they do not overlap.
func IntersectionArea(a, b Box) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	return max(0, x2-x1) * max(0, y2-y1)
}

// IoU calculates Intersection over Union between two boxes.
// Returns 0 when the union is empty.
func IoU(a, b Box) float64 {
	intersection := IntersectionArea(a, b)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// MinOverlap calculates the intersection divided by the smaller of the two areas.
// Returns 0 when either box is empty.
func MinOverlap(a, b Box) float64 {
	smaller := min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}
	return IntersectionArea(a, b) / smaller
}

// DisplayDimensions returns the image dimensions as displayed after applying the EXIF orientation.
// Orientations 5-8 are 90° rotations, which swap width and height.
func DisplayDimensions(fileWidth, fileHeight, orientation int) Dimensions {
	if orientation >= 5 && orientation <= 8 {
		return Dimensions{Width: fileHeight, Height: fileWidth}
	}
	return Dimensions{Width: fileWidth, Height: fileHeight}
}

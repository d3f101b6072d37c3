// Package window defines image windows and reconciles an image's data
// window against its display window before pixels reach an encoder.
//
// Windows live in system space: integer boxes with half-open extents
// [Min, Max) and the y axis pointing up, so the origin is the bottom-left
// corner of the display. Encoders work in file space, where y points down
// and rows are stored top first; ToFile and FromFile convert between the
// two relative to a display window.
package window

import (
	"fmt"
	"image"
)

// V2i is a 2D integer point.
type V2i struct {
	X, Y int
}

// Box is an axis-aligned integer rectangle covering [Min, Max).
type Box struct {
	Min, Max V2i
}

// NewBox returns the box spanning [minX, maxX) x [minY, maxY).
func NewBox(minX, minY, maxX, maxY int) Box {
	return Box{Min: V2i{minX, minY}, Max: V2i{maxX, maxY}}
}

// Width returns the width of the box, or 0 when empty.
func (b Box) Width() int {
	if b.IsEmpty() {
		return 0
	}
	return b.Max.X - b.Min.X
}

// Height returns the height of the box, or 0 when empty.
func (b Box) Height() int {
	if b.IsEmpty() {
		return 0
	}
	return b.Max.Y - b.Min.Y
}

// Area returns the number of pixels in the box.
func (b Box) Area() int {
	return b.Width() * b.Height()
}

// IsEmpty reports whether the box contains no pixels.
func (b Box) IsEmpty() bool {
	return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y
}

// Contains reports whether the pixel (x, y) lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y
}

// ContainsBox reports whether every pixel of o lies inside b. The empty
// box is contained in every box.
func (b Box) ContainsBox(o Box) bool {
	if o.IsEmpty() {
		return true
	}
	return o.Min.X >= b.Min.X && o.Min.Y >= b.Min.Y && o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y
}

// Intersect returns the largest box contained in both b and o. Disjoint
// boxes yield the zero Box.
func (b Box) Intersect(o Box) Box {
	r := Box{
		Min: V2i{max(b.Min.X, o.Min.X), max(b.Min.Y, o.Min.Y)},
		Max: V2i{min(b.Max.X, o.Max.X), min(b.Max.Y, o.Max.Y)},
	}
	if r.IsEmpty() {
		return Box{}
	}
	return r
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	switch {
	case b.IsEmpty():
		return o
	case o.IsEmpty():
		return b
	}
	return Box{
		Min: V2i{min(b.Min.X, o.Min.X), min(b.Min.Y, o.Min.Y)},
		Max: V2i{max(b.Max.X, o.Max.X), max(b.Max.Y, o.Max.Y)},
	}
}

// String formats the box as "[minX minY, maxX maxY)".
func (b Box) String() string {
	return fmt.Sprintf("[%d %d, %d %d)", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}

// flipY maps a row between system and file space for the given display
// window. The mapping is its own inverse.
func flipY(display Box, y int) int {
	return display.Min.Y + display.Max.Y - 1 - y
}

// ToFile converts a system-space box to the file-space rectangle covering
// the same pixels. The display window maps onto itself.
func ToFile(display, b Box) image.Rectangle {
	if b.IsEmpty() {
		return image.Rectangle{}
	}
	return image.Rect(b.Min.X, flipY(display, b.Max.Y-1), b.Max.X, flipY(display, b.Min.Y)+1)
}

// FromFile converts a file-space rectangle back to system space.
func FromFile(display Box, r image.Rectangle) Box {
	if r.Empty() {
		return Box{}
	}
	return NewBox(r.Min.X, flipY(display, r.Max.Y-1), r.Max.X, flipY(display, r.Min.Y)+1)
}

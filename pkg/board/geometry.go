// Package board describes the routable board the autorouter consumes:
// pad geometry, electrical nets, the copper layer stack, keepout regions,
// and manufacturing design rules.
//
// The package is purely an in-memory model. Loading a board from a file
// format (KiCad, Eagle, ...) and writing routed copper back out are the
// job of external tools; the router only ever sees these types.
package board

// Position is a point on the board, in millimeters.
type Position struct {
	X float64
	Y float64
}

// Size is a width/height extent in millimeters.
type Size struct {
	Width  float64
	Height float64
}

// BoundingBox is an axis-aligned rectangle spanning Min to Max, in board
// coordinates (mm).
type BoundingBox struct {
	Min Position
	Max Position
}

// NewBoundingBox returns a box containing nothing; the first Expand call
// snaps it to that point. The inverted sentinel corners make IsEmpty true.
func NewBoundingBox() BoundingBox {
	return BoundingBox{
		Min: Position{X: 1e9, Y: 1e9},
		Max: Position{X: -1e9, Y: -1e9},
	}
}

// IsEmpty reports whether the box covers no area at all.
func (bb BoundingBox) IsEmpty() bool {
	return bb.Min.X > bb.Max.X || bb.Min.Y > bb.Max.Y
}

// Intersects reports whether the two boxes share at least one point.
// Touching edges count as intersecting.
func (bb BoundingBox) Intersects(other BoundingBox) bool {
	return bb.Min.X <= other.Max.X && bb.Max.X >= other.Min.X &&
		bb.Min.Y <= other.Max.Y && bb.Max.Y >= other.Min.Y
}

// Contains reports whether pos lies inside the box, borders included.
func (bb BoundingBox) Contains(pos Position) bool {
	return pos.X >= bb.Min.X && pos.X <= bb.Max.X &&
		pos.Y >= bb.Min.Y && pos.Y <= bb.Max.Y
}

// Expand grows the box just enough to take in pos.
func (bb *BoundingBox) Expand(pos Position) {
	if pos.X < bb.Min.X {
		bb.Min.X = pos.X
	}
	if pos.Y < bb.Min.Y {
		bb.Min.Y = pos.Y
	}
	if pos.X > bb.Max.X {
		bb.Max.X = pos.X
	}
	if pos.Y > bb.Max.Y {
		bb.Max.Y = pos.Y
	}
}

// ExpandBox grows the box to cover other. An empty other is a no-op, so
// the sentinel corners of a fresh box never leak into a real one.
func (bb *BoundingBox) ExpandBox(other BoundingBox) {
	if !other.IsEmpty() {
		bb.Expand(other.Min)
		bb.Expand(other.Max)
	}
}

// Inflate returns a copy of the bounding box grown by margin on every side.
// A negative margin shrinks the box; the result may become empty.
func (bb BoundingBox) Inflate(margin float64) BoundingBox {
	return BoundingBox{
		Min: Position{X: bb.Min.X - margin, Y: bb.Min.Y - margin},
		Max: Position{X: bb.Max.X + margin, Y: bb.Max.Y + margin},
	}
}

// Width is the horizontal extent of the box in mm.
func (bb BoundingBox) Width() float64 {
	return bb.Max.X - bb.Min.X
}

// Height is the vertical extent of the box in mm.
func (bb BoundingBox) Height() float64 {
	return bb.Max.Y - bb.Min.Y
}

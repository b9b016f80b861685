package board

import (
	"fmt"
	"sort"
)

// UnconnectedNet is the reserved net id for unconnected pads; such pads are
// obstacles to routing but never route targets themselves.
const UnconnectedNet = 0

// Component is the owning part of one or more pads. The router never moves
// components; positions are resolved by the external placement step before
// a Board is assembled.
type Component struct {
	Reference string  // Schematic reference, e.g. "U1", "R3"
	Pitch     float64 // Minimum pin-to-pin spacing in mm (0 = unknown)
}

// FinePitch reports whether the component's pin pitch falls below the
// given threshold. Components with unknown pitch are never fine-pitch.
func (c *Component) FinePitch(threshold float64) bool {
	return c.Pitch > 0 && c.Pitch < threshold
}

// Pad is a component terminal at an absolute board position. SMD pads
// occupy a single copper layer; through-hole pads use the AllCopper
// wildcard and span every layer of whatever stack is active.
type Pad struct {
	Position  Position
	Size      Size
	NetID     int
	Layers    LayerSet
	Component *Component
}

// BoundingBox returns the pad's copper extent.
func (p *Pad) BoundingBox() BoundingBox {
	hw, hh := p.Size.Width/2, p.Size.Height/2
	return BoundingBox{
		Min: Position{X: p.Position.X - hw, Y: p.Position.Y - hh},
		Max: Position{X: p.Position.X + hw, Y: p.Position.Y + hh},
	}
}

// Net is a set of pads that must be electrically joined. Pad order is the
// order the router attaches them in.
type Net struct {
	ID   int
	Name string
	Pads []*Pad
}

// BoundingBox returns the extent of all pad positions on the net.
func (n *Net) BoundingBox() BoundingBox {
	bb := NewBoundingBox()
	for _, p := range n.Pads {
		bb.ExpandBox(p.BoundingBox())
	}
	return bb
}

// NeedsRouting reports whether the net has anything to route: a real net
// id and at least two pads.
func (n *Net) NeedsRouting() bool {
	return n.ID != UnconnectedNet && len(n.Pads) >= 2
}

// Obstacle is a fixed blocked region: board cutouts, keepout zones, or
// pre-existing copper the router must route around.
type Obstacle struct {
	Box    BoundingBox
	Layers LayerSet
	Zone   bool // true for keepout zones, false for hard obstacles
}

// Board is the routable area handed to the router: an outline, a copper
// stack, pads grouped into nets, and fixed obstacles.
type Board struct {
	Outline   BoundingBox
	Stack     *LayerStack
	Pads      []*Pad
	Obstacles []*Obstacle

	nets map[int]*Net
}

// NewBoard assembles a board and derives its nets from the pad list.
// Pads on net 0 are kept as obstacles but excluded from every net.
func NewBoard(outline BoundingBox, stack *LayerStack, pads []*Pad, obstacles []*Obstacle) (*Board, error) {
	if outline.IsEmpty() {
		return nil, fmt.Errorf("board outline is empty")
	}
	if stack == nil {
		return nil, fmt.Errorf("board has no layer stack")
	}

	b := &Board{
		Outline:   outline,
		Stack:     stack,
		Pads:      pads,
		Obstacles: obstacles,
		nets:      make(map[int]*Net),
	}
	for _, p := range pads {
		if p.NetID == UnconnectedNet {
			continue
		}
		net, ok := b.nets[p.NetID]
		if !ok {
			net = &Net{ID: p.NetID}
			b.nets[p.NetID] = net
		}
		net.Pads = append(net.Pads, p)
	}
	return b, nil
}

// WithStack returns a copy of the board using a different copper stack.
// Pad layer sets are untouched: through-hole pads use the AllCopper
// wildcard and follow the stack automatically.
func (b *Board) WithStack(stack *LayerStack) (*Board, error) {
	return NewBoard(b.Outline, stack, b.Pads, b.Obstacles)
}

// Net looks up a net by id.
func (b *Board) Net(id int) (*Net, bool) {
	n, ok := b.nets[id]
	return n, ok
}

// Nets returns all nets in ascending id order.
func (b *Board) Nets() []*Net {
	out := make([]*Net, 0, len(b.nets))
	for _, n := range b.nets {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RoutableNets returns the nets that need routing, in ascending id order.
// Single-pad nets and net 0 are excluded.
func (b *Board) RoutableNets() []*Net {
	var out []*Net
	for _, n := range b.Nets() {
		if n.NeedsRouting() {
			out = append(out, n)
		}
	}
	return out
}

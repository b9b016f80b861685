package route

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// Segment is one straight copper trace on a single layer.
type Segment struct {
	Start board.Position
	End   board.Position
	Width float64
	Layer string
}

// Length returns the segment length in mm.
func (s Segment) Length() float64 {
	dx := s.End.X - s.Start.X
	dy := s.End.Y - s.Start.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Via is a layer-changing connection at a point.
type Via struct {
	Position  board.Position
	Drill     float64
	Diameter  float64
	FromLayer string
	ToLayer   string
}

// Route is the realized copper for one net: straight segments plus vias,
// together with the grid cells the route claims. Routes are handed to an
// external serializer; the engine produces no file format itself.
type Route struct {
	NetID    int
	Segments []Segment
	Vias     []Via

	// Cells are the claimed grid cell indices, deduplicated. They exist so
	// negotiation can rip the route up again without re-walking geometry.
	Cells []int32

	// RelaxedClearance is the clearance this route was accepted at when it
	// differs from the design rule, zero otherwise.
	RelaxedClearance float64
}

// WireLength returns the total routed copper length in mm.
func (r *Route) WireLength() float64 {
	var total float64
	for _, s := range r.Segments {
		total += s.Length()
	}
	return total
}

// realizeRoute converts the cell walks of a routed net into segments and
// vias. Each walk is a sequence of adjacent cells; consecutive collinear
// same-layer steps merge into one segment, and layer changes become vias
// using the drill/diameter design rules.
func realizeRoute(g *Grid, rules board.DesignRules, netID int, walks [][]int32) *Route {
	r := &Route{NetID: netID}

	seen := make(map[int32]bool)
	for _, walk := range walks {
		for _, idx := range walk {
			if !seen[idx] {
				seen[idx] = true
				r.Cells = append(r.Cells, idx)
			}
		}
		r.appendWalk(g, rules, walk)
	}
	return r
}

func (r *Route) appendWalk(g *Grid, rules board.DesignRules, walk []int32) {
	if len(walk) < 2 {
		return
	}

	segStart := -1 // walk index where the current segment began
	var dirRow, dirCol int

	flush := func(from, to int) {
		if from < 0 || from == to {
			return
		}
		l0, r0, c0 := g.Coords(walk[from])
		_, r1, c1 := g.Coords(walk[to])
		r.Segments = append(r.Segments, Segment{
			Start: g.GridToWorld(c0, r0),
			End:   g.GridToWorld(c1, r1),
			Width: rules.TraceWidth,
			Layer: g.LayerName(l0),
		})
	}

	for i := 1; i < len(walk); i++ {
		pl, pr, pc := g.Coords(walk[i-1])
		cl, cr, cc := g.Coords(walk[i])

		if cl != pl {
			// Layer change: close any open segment and drop a via.
			flush(segStart, i-1)
			segStart = -1
			r.Vias = append(r.Vias, Via{
				Position:  g.GridToWorld(pc, pr),
				Drill:     rules.ViaDrill,
				Diameter:  rules.ViaDiameter,
				FromLayer: g.LayerName(pl),
				ToLayer:   g.LayerName(cl),
			})
			continue
		}

		dr, dc := cr-pr, cc-pc
		if segStart < 0 {
			segStart = i - 1
			dirRow, dirCol = dr, dc
			continue
		}
		if dr != dirRow || dc != dirCol {
			flush(segStart, i-1)
			segStart = i - 1
			dirRow, dirCol = dr, dc
		}
	}
	flush(segStart, len(walk)-1)
}

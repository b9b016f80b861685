package route

import (
	"errors"
	"fmt"
	"math"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
	"github.com/OpenTraceLab/OpenTraceRoute/pkg/route/compute"
)

// ErrGridTooLarge is returned when the requested grid would exceed the
// configured memory budget. This is a precondition failure: the caller
// must pick a coarser resolution before routing can start.
var ErrGridTooLarge = errors.New("routing grid exceeds memory budget")

// Per-cell flags.
const (
	flagObstacle uint8 = 1 << iota
	flagZone
	flagPad
)

// unknownDist marks cells beyond every clearance halo.
const unknownDist = math.MaxUint16

// mixedNets marks cells within clearance range of pads on more than one
// net; such cells are off limits for everyone until clearance is relaxed
// below the smaller of the two distances.
const mixedNets int32 = -1

// viaImpactRadius bounds the via soft-penalty distance queries, in mm.
// Pads farther away contribute less than 1/radius^2 and are ignored.
const viaImpactRadius = 2.5

// Grid is the 3-D discretized occupancy and cost store shared by every
// routing pass. All state lives in flat arrays indexed by
// (layer, row, col); there are no aliased views.
//
// Sequential passes mutate the grid directly with no locking. The parallel
// scheduler hands workers disjoint regions by construction (see
// Scheduler); the grid itself performs no synchronization.
type Grid struct {
	rules board.DesignRules
	stack *board.LayerStack

	cols, rows, layers int
	resolution         float64
	origin             board.Position

	// Per-cell state, all length cols*rows*layers.
	flags    []uint8
	owner    []int32 // claiming net, 0 = free
	original []int32 // pre-routing owner, restored by release
	usage    []uint16
	usageF   []float64 // float mirror of usage for backend bulk ops
	history  []float64 // monotonic non-decreasing within a run

	// Clearance halos, per cell: chebyshev distance in cells to the
	// nearest obstacle or pad copper, capped at the full design clearance.
	obstDist []uint16
	padDist  []uint16
	padNet   []int32 // net of the nearby pad copper, mixedNets if several

	// Per-site (rows*cols) via state, shared by all layers.
	viaExcluded []bool

	backend compute.Backend
	scratch []float64

	padBuckets map[[2]int][]*board.Pad
}

// GridStats describes a grid for diagnostics and memory precondition
// checks.
type GridStats struct {
	Cols, Rows, Layers int
	Cells              int
	MemoryBytes        int64
	Backend            string
}

// cellBytes is the approximate per-cell footprint of the flat arrays.
const cellBytes = 1 + 4 + 4 + 2 + 8 + 8 + 2 + 2 + 4 + 8 // flags..padNet + scratch

// estimateGridMemory returns the approximate allocation for a grid of the
// given dimensions, without allocating it.
func estimateGridMemory(cols, rows, layers int) int64 {
	cells := int64(cols) * int64(rows) * int64(layers)
	return cells*cellBytes + int64(cols)*int64(rows)
}

// NewGrid discretizes a board under the given rules. memoryBudget bounds
// the grid allocation in bytes; zero means unlimited. The rules must have
// been validated by the caller.
func NewGrid(b *board.Board, rules board.DesignRules, memoryBudget int64) (*Grid, error) {
	res := rules.GridResolution
	cols := int(math.Ceil(b.Outline.Width() / res))
	rows := int(math.Ceil(b.Outline.Height() / res))
	layers := b.Stack.Count()
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("board outline %.2fx%.2fmm too small for %.3fmm grid",
			b.Outline.Width(), b.Outline.Height(), res)
	}

	cells := int64(cols) * int64(rows) * int64(layers)
	if cells > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d cells", ErrGridTooLarge, cells)
	}
	if est := estimateGridMemory(cols, rows, layers); memoryBudget > 0 && est > memoryBudget {
		return nil, fmt.Errorf("%w: needs ~%d bytes, budget %d", ErrGridTooLarge, est, memoryBudget)
	}

	n := int(cells)
	g := &Grid{
		rules:       rules,
		stack:       b.Stack,
		cols:        cols,
		rows:        rows,
		layers:      layers,
		resolution:  res,
		origin:      b.Outline.Min,
		flags:       make([]uint8, n),
		owner:       make([]int32, n),
		original:    make([]int32, n),
		usage:       make([]uint16, n),
		usageF:      make([]float64, n),
		history:     make([]float64, n),
		obstDist:    make([]uint16, n),
		padDist:     make([]uint16, n),
		padNet:      make([]int32, n),
		viaExcluded: make([]bool, cols*rows),
		backend:     compute.Probe(),
		scratch:     make([]float64, n),
		padBuckets:  make(map[[2]int][]*board.Pad),
	}
	for i := range g.obstDist {
		g.obstDist[i] = unknownDist
		g.padDist[i] = unknownDist
	}

	for _, o := range b.Obstacles {
		g.addObstacle(o, b.Stack)
	}
	for _, p := range b.Pads {
		g.addPad(p, b.Stack)
	}
	return g, nil
}

// Dimensions reports (cols, rows, layers).
func (g *Grid) Dimensions() (int, int, int) { return g.cols, g.rows, g.layers }

// Resolution reports the grid cell size in mm.
func (g *Grid) Resolution() float64 { return g.resolution }

// Stats reports grid dimensions, memory use, and the active compute
// backend.
func (g *Grid) Stats() GridStats {
	return GridStats{
		Cols:        g.cols,
		Rows:        g.rows,
		Layers:      g.layers,
		Cells:       g.cols * g.rows * g.layers,
		MemoryBytes: estimateGridMemory(g.cols, g.rows, g.layers),
		Backend:     g.backend.Name(),
	}
}

// Index maps (layer, row, col) to the flat cell index.
func (g *Grid) Index(layer, row, col int) int32 {
	return int32((layer*g.rows+row)*g.cols + col)
}

// Coords is the inverse of Index.
func (g *Grid) Coords(idx int32) (layer, row, col int) {
	i := int(idx)
	col = i % g.cols
	i /= g.cols
	row = i % g.rows
	return i / g.rows, row, col
}

// site maps a flat cell index to its layer-independent (rows*cols) site.
func (g *Grid) site(idx int32) int {
	i := int(idx)
	col := i % g.cols
	row := (i / g.cols) % g.rows
	return row*g.cols + col
}

// WorldToGrid maps a board position to (col, row), clamped to the grid.
func (g *Grid) WorldToGrid(pos board.Position) (col, row int) {
	col = int((pos.X - g.origin.X) / g.resolution)
	row = int((pos.Y - g.origin.Y) / g.resolution)
	return clamp(col, 0, g.cols-1), clamp(row, 0, g.rows-1)
}

// GridToWorld maps (col, row) to the board position of the cell center.
func (g *Grid) GridToWorld(col, row int) board.Position {
	return board.Position{
		X: g.origin.X + (float64(col)+0.5)*g.resolution,
		Y: g.origin.Y + (float64(row)+0.5)*g.resolution,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cellRange converts a bounding box to inclusive grid coordinate bounds,
// clamped to the grid.
func (g *Grid) cellRange(bb board.BoundingBox) (c0, r0, c1, r1 int) {
	c0, r0 = g.WorldToGrid(bb.Min)
	c1, r1 = g.WorldToGrid(bb.Max)
	return
}

// addObstacle blocks the obstacle's cells on its layers and stamps its
// clearance halo into the obstacle distance field.
func (g *Grid) addObstacle(o *board.Obstacle, stack *board.LayerStack) {
	flag := flagObstacle
	if o.Zone {
		flag = flagZone
	}
	cc := g.rules.ClearanceCells(g.rules.Clearance)
	c0, r0, c1, r1 := g.cellRange(o.Box)

	for _, layer := range o.Layers.Resolve(stack) {
		for row := clamp(r0-cc, 0, g.rows-1); row <= clamp(r1+cc, 0, g.rows-1); row++ {
			for col := clamp(c0-cc, 0, g.cols-1); col <= clamp(c1+cc, 0, g.cols-1); col++ {
				idx := g.Index(layer, row, col)
				d := rectDistance(col, row, c0, r0, c1, r1)
				if d == 0 {
					g.flags[idx] |= flag
				}
				if uint16(d) < g.obstDist[idx] {
					g.obstDist[idx] = uint16(d)
				}
			}
		}
	}
}

// addPad blocks the pad's footprint cells on its layers for every net
// except its own (the pad's terminals stay enterable by the owning net),
// stamps the pad clearance halo, and registers fine-pitch via exclusion.
func (g *Grid) addPad(p *board.Pad, stack *board.LayerStack) {
	net := int32(p.NetID)
	cc := g.rules.ClearanceCells(g.rules.Clearance)
	c0, r0, c1, r1 := g.cellRange(p.BoundingBox())

	for _, layer := range p.Layers.Resolve(stack) {
		for row := clamp(r0-cc, 0, g.rows-1); row <= clamp(r1+cc, 0, g.rows-1); row++ {
			for col := clamp(c0-cc, 0, g.cols-1); col <= clamp(c1+cc, 0, g.cols-1); col++ {
				idx := g.Index(layer, row, col)
				d := rectDistance(col, row, c0, r0, c1, r1)
				if d == 0 {
					g.flags[idx] |= flagPad
					switch g.original[idx] {
					case 0:
						g.original[idx] = net
						g.owner[idx] = net
					case net:
					default:
						// Overlapping copper from two nets: nobody enters.
						g.original[idx] = mixedNets
						g.owner[idx] = mixedNets
					}
				}
				if uint16(d) < g.padDist[idx] {
					g.padDist[idx] = uint16(d)
				}
				switch g.padNet[idx] {
				case 0:
					g.padNet[idx] = net
				case net:
				default:
					g.padNet[idx] = mixedNets
				}
			}
		}
	}

	// Bucket index for via impact queries.
	key := bucketKey(p.Position)
	g.padBuckets[key] = append(g.padBuckets[key], p)

	// Fine-pitch components forbid vias near any of their pads.
	if p.Component != nil && p.Component.FinePitch(g.rules.FinePitchThreshold) {
		ec := g.rules.ClearanceCells(g.rules.ViaExclusionDistance)
		for row := clamp(r0-ec, 0, g.rows-1); row <= clamp(r1+ec, 0, g.rows-1); row++ {
			for col := clamp(c0-ec, 0, g.cols-1); col <= clamp(c1+ec, 0, g.cols-1); col++ {
				if rectDistance(col, row, c0, r0, c1, r1) <= ec {
					g.viaExcluded[row*g.cols+col] = true
				}
			}
		}
	}
}

// rectDistance is the chebyshev distance in cells from (col,row) to the
// inclusive rectangle [c0,c1]x[r0,r1]; zero inside the rectangle.
func rectDistance(col, row, c0, r0, c1, r1 int) int {
	var dc, dr int
	if col < c0 {
		dc = c0 - col
	} else if col > c1 {
		dc = col - c1
	}
	if row < r0 {
		dr = r0 - row
	} else if row > r1 {
		dr = row - r1
	}
	if dc > dr {
		return dc
	}
	return dr
}

func bucketKey(pos board.Position) [2]int {
	return [2]int{int(math.Floor(pos.X / viaImpactRadius)), int(math.Floor(pos.Y / viaImpactRadius))}
}

// padsNear returns registered pads within viaImpactRadius of pos.
func (g *Grid) padsNear(pos board.Position) []*board.Pad {
	var out []*board.Pad
	center := bucketKey(pos)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for _, p := range g.padBuckets[[2]int{center[0] + dx, center[1] + dy}] {
				ddx := p.Position.X - pos.X
				ddy := p.Position.Y - pos.Y
				if ddx*ddx+ddy*ddy <= viaImpactRadius*viaImpactRadius {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// ClaimPath marks every cell of a route as used by net. Cells may already
// be used by other nets; usage counts above one are the transient illegal
// overlap negotiated routing resolves.
func (g *Grid) ClaimPath(net int32, cells []int32) {
	for _, idx := range cells {
		u := g.usage[idx] + 1
		g.usage[idx] = u
		g.usageF[idx] = float64(u)
		if g.owner[idx] == 0 {
			g.owner[idx] = net
		}
	}
}

// ReleasePath undoes ClaimPath for a rip-up. Ownership reverts to the
// pre-routing owner once the last user leaves; history costs are never
// cleared.
func (g *Grid) ReleasePath(net int32, cells []int32) {
	for _, idx := range cells {
		if g.usage[idx] == 0 {
			continue
		}
		u := g.usage[idx] - 1
		g.usage[idx] = u
		g.usageF[idx] = float64(u)
		if u == 0 {
			g.owner[idx] = g.original[idx]
		} else if g.owner[idx] == net {
			g.owner[idx] = 0
		}
	}
}

// UpdateHistoryCosts adds increment*(usage-1) to the history cost of every
// overused cell. Call once per negotiation iteration; history costs only
// ever grow within a run.
func (g *Grid) UpdateHistoryCosts(increment float64) {
	if increment <= 0 {
		return
	}
	g.backend.ExcessOver(g.scratch, g.usageF, 1)
	g.backend.AddScaled(g.history, g.scratch, increment)
}

// TotalOverflow is the sum of max(0, usage-1) over all cells. Zero means
// the current solution is legal.
func (g *Grid) TotalOverflow() int {
	g.backend.ExcessOver(g.scratch, g.usageF, 1)
	return int(g.backend.Sum(g.scratch) + 0.5)
}

// OverusedCells returns the indices of cells with usage above one.
func (g *Grid) OverusedCells() []int32 {
	var out []int32
	for i, u := range g.usage {
		if u > 1 {
			out = append(out, int32(i))
		}
	}
	return out
}

// OverusedCount returns the number of cells with usage above one.
func (g *Grid) OverusedCount() int {
	return g.backend.CountAbove(g.usageF, 1)
}

// ResetForNewTrial clears all routing state (claims, usage, history) while
// keeping the board geometry, so a fresh attempt can start after external
// placement changes.
func (g *Grid) ResetForNewTrial() {
	copy(g.owner, g.original)
	for i := range g.usage {
		g.usage[i] = 0
	}
	g.backend.Fill(g.usageF, 0)
	g.backend.Fill(g.history, 0)
}

// PadCells returns the flat indices of the pad's footprint cells on every
// layer the pad occupies. These are the enterable seed and target cells
// for the pad's own net.
func (g *Grid) PadCells(p *board.Pad) []int32 {
	c0, r0, c1, r1 := g.cellRange(p.BoundingBox())
	var out []int32
	for _, layer := range p.Layers.Resolve(g.stack) {
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				out = append(out, g.Index(layer, row, col))
			}
		}
	}
	return out
}

// LayerName resolves a physical layer index to its canonical name.
func (g *Grid) LayerName(layer int) string {
	name, _ := g.stack.Name(layer)
	return name
}

// CellState is a read-only snapshot of one cell, for inspection and tests.
type CellState struct {
	Blocked    bool
	Obstacle   bool
	Zone       bool
	PadBlocked bool
	Owner      int
	Original   int
	Usage      int
	History    float64
}

// CellAt snapshots the cell at (layer, row, col).
func (g *Grid) CellAt(layer, row, col int) CellState {
	idx := g.Index(layer, row, col)
	f := g.flags[idx]
	return CellState{
		Blocked:    f != 0,
		Obstacle:   f&flagObstacle != 0,
		Zone:       f&flagZone != 0,
		PadBlocked: f&flagPad != 0,
		Owner:      int(g.owner[idx]),
		Original:   int(g.original[idx]),
		Usage:      int(g.usage[idx]),
		History:    g.history[idx],
	}
}

package route

import (
	"container/heap"
	"context"
	"time"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// Pathfinder finds the lowest-cost route connecting all pads of one net
// over the shared grid. It is a cost-driven wavefront search: per-step
// cost combines the base cell cost, congestion (present usage scaled by
// the negotiation multiplier plus accumulated history), and via costs.
//
// A Pathfinder is not safe for concurrent use; the parallel scheduler
// gives each worker its own instance over the shared grid.
type Pathfinder struct {
	grid  *Grid
	rules board.DesignRules
	cfg   EngineConfig

	// presentFactor scales the cost of stepping onto cells other nets
	// already use. The negotiation loop raises it every iteration.
	presentFactor float64

	// allowOverlap permits routing through cells other nets occupy
	// (negotiated mode). When false, occupied cells are hard obstacles.
	allowOverlap bool

	// clearance is the active clearance in mm; the relaxation controller
	// lowers it per net. ccCells is its grid-cell equivalent.
	clearance float64
	ccCells   int

	// isRouted reports whether a net already has an accepted route; the
	// via impact term only charges proximity to *unrouted* foreign pads.
	isRouted func(netID int) bool

	// Scratch search state, epoch-stamped so searches need no O(cells)
	// reset between nets.
	dist  []float64
	prev  []int32
	vias  []uint16
	bends []uint16
	dirs  []uint8
	stamp []uint32
	epoch uint32
}

// deadlineCheckInterval is how many frontier pops pass between wall-clock
// checks.
const deadlineCheckInterval = 2048

// NewPathfinder creates a pathfinder over the grid. The default mode is
// strict (no overlap) at the full design clearance.
func NewPathfinder(g *Grid, rules board.DesignRules, cfg EngineConfig) *Pathfinder {
	n := g.cols * g.rows * g.layers
	pf := &Pathfinder{
		grid:          g,
		rules:         rules,
		cfg:           cfg,
		presentFactor: cfg.presentFactor(0),
		dist:          make([]float64, n),
		prev:          make([]int32, n),
		vias:          make([]uint16, n),
		bends:         make([]uint16, n),
		dirs:          make([]uint8, n),
		stamp:         make([]uint32, n),
	}
	pf.SetClearance(rules.Clearance)
	return pf
}

// SetClearance switches the active clearance, in mm.
func (pf *Pathfinder) SetClearance(clearance float64) {
	pf.clearance = clearance
	pf.ccCells = pf.rules.ClearanceCells(clearance)
}

// Clearance reports the active clearance in mm.
func (pf *Pathfinder) Clearance() float64 { return pf.clearance }

// SetNegotiated switches overlap mode and the present-congestion factor
// for one negotiation iteration.
func (pf *Pathfinder) SetNegotiated(allowOverlap bool, presentFactor float64) {
	pf.allowOverlap = allowOverlap
	pf.presentFactor = presentFactor
}

// SetRoutedLookup installs the predicate the via impact term uses to skip
// pads whose nets are already routed.
func (pf *Pathfinder) SetRoutedLookup(isRouted func(netID int) bool) {
	pf.isRouted = isRouted
}

// RouteNet connects all pads of the net and claims the resulting cells on
// success. Pads attach sequentially: the first two connect directly, and
// every further pad connects by searching from any cell already on the
// net's route, growing a connected subgraph.
//
// On failure nothing is claimed (the grid is exactly as before the call)
// and a typed diagnosis is returned instead of an error; an unroutable
// net must never abort the rest of the run.
func (pf *Pathfinder) RouteNet(ctx context.Context, net *board.Net) (*Route, *Diagnosis) {
	if len(net.Pads) < 2 {
		return &Route{NetID: net.ID}, nil
	}

	sources := pf.grid.PadCells(net.Pads[0])
	var walks [][]int32

	for _, pad := range net.Pads[1:] {
		targets := make(map[int32]bool)
		for _, idx := range pf.grid.PadCells(pad) {
			targets[idx] = true
		}

		walk, stats, ok := pf.search(ctx, int32(net.ID), sources, targets)
		if !ok {
			return nil, classify(net.ID, stats)
		}
		walks = append(walks, walk)

		// Later pads may attach anywhere on the route built so far.
		sources = append(sources, walk...)
		sources = append(sources, pf.grid.PadCells(pad)...)
	}

	route := realizeRoute(pf.grid, pf.rules, net.ID, walks)
	if pf.clearance != pf.rules.Clearance {
		route.RelaxedClearance = pf.clearance
	}
	pf.grid.ClaimPath(int32(net.ID), route.Cells)
	return route, nil
}

// Step rejection classes, tallied into SearchStats for the classifier.
const (
	rejObstacle = iota
	rejPad
	rejClearance
	rejOccupied
)

// passable decides whether net may step into the cell at the active
// clearance. Own pad copper is always enterable; everything else must
// keep clearance from obstacles and foreign pad copper.
func (pf *Pathfinder) passable(idx int32, net int32) (bool, int) {
	g := pf.grid
	f := g.flags[idx]
	if f&(flagObstacle|flagZone) != 0 {
		return false, rejObstacle
	}
	if f&flagPad != 0 {
		if g.original[idx] == net {
			return true, 0
		}
		return false, rejPad
	}
	if int(g.obstDist[idx]) < pf.ccCells {
		return false, rejClearance
	}
	if int(g.padDist[idx]) < pf.ccCells && g.padNet[idx] != net {
		return false, rejClearance
	}
	if !pf.allowOverlap && g.usage[idx] > 0 && g.owner[idx] != net {
		return false, rejOccupied
	}
	return true, 0
}

// stepCost is the cost of entering a cell: base cost plus congestion.
// History cost never decreases, so cells that keep getting contested grow
// permanently expensive.
func (pf *Pathfinder) stepCost(idx int32, net int32) float64 {
	g := pf.grid
	cost := pf.cfg.BaseCost + g.history[idx]
	if u := g.usage[idx]; u > 0 && g.owner[idx] != net {
		cost += pf.presentFactor * float64(u)
	}
	return cost
}

// viaImpact is the soft penalty for dropping a via at a board position:
// inverse-square proximity to unrouted pads of other nets, scaled by the
// via impact weight. A zero weight disables the term and the caller must
// skip the distance query entirely.
func (pf *Pathfinder) viaImpact(pos board.Position, net int32) float64 {
	var total float64
	for _, p := range pf.grid.padsNear(pos) {
		if int32(p.NetID) == net || p.NetID == board.UnconnectedNet {
			continue
		}
		if pf.isRouted != nil && pf.isRouted(p.NetID) {
			continue
		}
		dx := p.Position.X - pos.X
		dy := p.Position.Y - pos.Y
		d2 := dx*dx + dy*dy
		if floor := pf.grid.resolution * pf.grid.resolution; d2 < floor {
			d2 = floor
		}
		total += 1 / d2
	}
	return pf.rules.ViaImpactWeight * total
}

// searchNode is one frontier entry. The ordering implements the
// deterministic tie-break policy: lower cost first, then fewer vias, then
// fewer bends, then the lowest cell index.
type searchNode struct {
	cost  float64
	vias  uint16
	bends uint16
	idx   int32
	dir   uint8
}

type searchHeap []searchNode

func (h searchHeap) Len() int { return len(h) }
func (h searchHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.vias != b.vias {
		return a.vias < b.vias
	}
	if a.bends != b.bends {
		return a.bends < b.bends
	}
	return a.idx < b.idx
}
func (h searchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *searchHeap) Push(x interface{}) { *h = append(*h, x.(searchNode)) }
func (h *searchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search directions: 4 orthogonal in-layer moves, then layer changes.
const (
	dirNone uint8 = iota
	dirNorth
	dirSouth
	dirWest
	dirEast
	dirVia
)

// search runs the wavefront from the source cells to any target cell and
// returns the winning walk (source..target cell sequence).
func (pf *Pathfinder) search(ctx context.Context, net int32, sources []int32, targets map[int32]bool) ([]int32, SearchStats, bool) {
	var stats SearchStats
	g := pf.grid

	pf.epoch++
	frontier := make(searchHeap, 0, len(sources))
	for _, idx := range sources {
		if pf.stamp[idx] == pf.epoch {
			continue
		}
		pf.stamp[idx] = pf.epoch
		pf.dist[idx] = 0
		pf.prev[idx] = -1
		pf.vias[idx] = 0
		pf.bends[idx] = 0
		pf.dirs[idx] = dirNone
		frontier = append(frontier, searchNode{idx: idx})
	}
	heap.Init(&frontier)

	deadline, hasDeadline := ctx.Deadline()
	pops := 0

	for frontier.Len() > 0 {
		node := heap.Pop(&frontier).(searchNode)
		idx := node.idx
		if node.cost > pf.dist[idx] {
			continue // stale entry
		}

		pops++
		if pops%deadlineCheckInterval == 0 {
			if ctx.Err() != nil || (hasDeadline && time.Now().After(deadline)) {
				stats.TimedOut = true
				return nil, stats, false
			}
		}

		if targets[idx] {
			return pf.reconstruct(idx), stats, true
		}
		stats.Expanded++

		layer, row, col := g.Coords(idx)

		// In-layer orthogonal moves.
		type move struct {
			dr, dc int
			dir    uint8
		}
		moves := [4]move{
			{-1, 0, dirNorth},
			{1, 0, dirSouth},
			{0, -1, dirWest},
			{0, 1, dirEast},
		}
		for _, m := range moves {
			nr, nc := row+m.dr, col+m.dc
			if nr < 0 || nr >= g.rows || nc < 0 || nc >= g.cols {
				continue
			}
			next := g.Index(layer, nr, nc)
			ok, rej := pf.passable(next, net)
			if !ok {
				pf.tally(&stats, rej)
				continue
			}
			bends := node.bends
			if node.dir != dirNone && node.dir != m.dir {
				bends++
			}
			pf.relax(&frontier, idx, next, node.cost+pf.stepCost(next, net), node.vias, bends, m.dir)
		}

		// Layer changes. The via site must not be excluded (fine-pitch
		// protection) and the destination cell must be enterable.
		for _, dl := range [2]int{-1, 1} {
			nl := layer + dl
			if nl < 0 || nl >= g.layers {
				continue
			}
			if g.viaExcluded[g.site(idx)] {
				stats.ViaExclusionRejects++
				continue
			}
			next := g.Index(nl, row, col)
			ok, rej := pf.passable(next, net)
			if !ok {
				pf.tally(&stats, rej)
				continue
			}
			cost := node.cost + pf.stepCost(next, net) + pf.cfg.ViaPenalty
			if pf.rules.ViaImpactWeight > 0 {
				cost += pf.viaImpact(g.GridToWorld(col, row), net)
			}
			pf.relax(&frontier, idx, next, cost, node.vias+1, node.bends, dirVia)
		}
	}

	return nil, stats, false
}

// relax records a candidate arrival at next, keeping the best by the
// deterministic ordering (cost, vias, bends).
func (pf *Pathfinder) relax(frontier *searchHeap, from, next int32, cost float64, vias, bends uint16, dir uint8) {
	if pf.stamp[next] == pf.epoch {
		if cost > pf.dist[next] {
			return
		}
		if cost == pf.dist[next] {
			if vias > pf.vias[next] {
				return
			}
			if vias == pf.vias[next] && bends >= pf.bends[next] {
				return
			}
		}
	}
	pf.stamp[next] = pf.epoch
	pf.dist[next] = cost
	pf.prev[next] = from
	pf.vias[next] = vias
	pf.bends[next] = bends
	pf.dirs[next] = dir
	heap.Push(frontier, searchNode{cost: cost, vias: vias, bends: bends, idx: next, dir: dir})
}

// reconstruct walks predecessor links from the reached target back to the
// seeding source and returns the forward cell sequence.
func (pf *Pathfinder) reconstruct(target int32) []int32 {
	var rev []int32
	for idx := target; idx != -1; idx = pf.prev[idx] {
		rev = append(rev, idx)
	}
	walk := make([]int32, len(rev))
	for i, idx := range rev {
		walk[len(rev)-1-i] = idx
	}
	return walk
}

func (pf *Pathfinder) tally(stats *SearchStats, rej int) {
	switch rej {
	case rejClearance:
		stats.ClearanceRejects++
	default:
		stats.OccupancyRejects++
	}
}

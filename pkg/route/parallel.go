package route

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// Scheduler partitions nets into spatially independent groups and routes
// the groups concurrently. Two nets conflict iff their clearance-expanded
// bounding boxes overlap; connected components of that conflict graph are
// the independent groups. Nets inside a group route sequentially in net-id
// order; groups run on a bounded worker pool.
//
// Bounding-box disjointness is a conservative approximation, not a
// runtime lock: a route that bends outside its net's expanded box could in
// principle collide with a concurrently routed neighbor. The scheduler
// detects such collisions after the merge and reports them, but does not
// prevent or repair them.
type Scheduler struct {
	grid  *Grid
	rules board.DesignRules
	cfg   EngineConfig
	log   *slog.Logger
}

// ParallelOutcome is the merged result of a parallel routing pass.
type ParallelOutcome struct {
	Routes   map[int]*Route
	Failures map[int]*Diagnosis

	// Groups lists the partition, each group's net ids ascending, groups
	// ordered by their smallest net id. Every routable net appears in
	// exactly one group.
	Groups [][]int

	// CrossGroupConflicts lists nets whose routes ended up sharing cells
	// despite the bounding-box independence argument. Reported, not fixed.
	CrossGroupConflicts []int
}

// NewScheduler builds an independent-group scheduler over the grid.
func NewScheduler(g *Grid, rules board.DesignRules, cfg EngineConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{grid: g, rules: rules, cfg: cfg, log: log}
}

// Partition groups the nets by expanded bounding-box overlap. The union
// of all groups is exactly the input net set; no net lands in two groups.
func (s *Scheduler) Partition(nets []*board.Net) [][]*board.Net {
	ordered := sortedNets(nets)
	margin := s.rules.Clearance + s.rules.TraceWidth

	boxes := make([]board.BoundingBox, len(ordered))
	for i, n := range ordered {
		boxes[i] = n.BoundingBox().Inflate(margin)
	}

	uf := newUnionFind(len(ordered))
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if boxes[i].Intersects(boxes[j]) {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]*board.Net)
	for i, n := range ordered {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], n)
	}

	groups := make([][]*board.Net, 0, len(byRoot))
	for _, g := range byRoot {
		groups = append(groups, g)
	}
	// Groups ordered by their smallest net id; members are already
	// ascending because ordered was.
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

// Route partitions the nets and routes each group on the worker pool.
// Results merge back in net-id order regardless of worker completion
// order. Workers share the grid but, by construction, never touch the
// same cells; the grid performs no locking on their behalf.
func (s *Scheduler) Route(ctx context.Context, nets []*board.Net) *ParallelOutcome {
	groups := s.Partition(nets)

	out := &ParallelOutcome{
		Routes:   make(map[int]*Route),
		Failures: make(map[int]*Diagnosis),
	}
	for _, g := range groups {
		ids := make([]int, len(g))
		for i, n := range g {
			ids[i] = n.ID
		}
		out.Groups = append(out.Groups, ids)
	}

	type netResult struct {
		route *Route
		diag  *Diagnosis
	}
	results := make([]map[int]netResult, len(groups))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.workerCount())
	for gi, group := range groups {
		gi, group := gi, group
		eg.Go(func() error {
			// Each worker owns a pathfinder; the grid region it touches is
			// disjoint from every other group's by the bbox argument.
			pf := NewPathfinder(s.grid, s.rules, s.cfg)
			local := make(map[int]netResult, len(group))
			for _, n := range group {
				if gctx.Err() != nil {
					local[n.ID] = netResult{diag: &Diagnosis{NetID: n.ID, Kind: Timeout}}
					continue
				}
				r, diag := pf.RouteNet(gctx, n)
				local[n.ID] = netResult{route: r, diag: diag}
			}
			results[gi] = local
			return nil
		})
	}
	// Workers collect per-net failures instead of returning errors.
	_ = eg.Wait()

	for gi := range groups {
		for _, n := range groups[gi] {
			res := results[gi][n.ID]
			if res.route != nil {
				out.Routes[n.ID] = res.route
			} else if res.diag != nil {
				out.Failures[n.ID] = res.diag
			}
		}
	}

	s.reportCrossGroupConflicts(out)
	return out
}

// reportCrossGroupConflicts runs the post-merge collision scan. Any
// overused cell here means the independence approximation was violated;
// the outcome records it and a warning is logged, preserving the original
// behavior of not repairing such routes.
func (s *Scheduler) reportCrossGroupConflicts(out *ParallelOutcome) {
	over := make(map[int32]bool)
	for _, idx := range s.grid.OverusedCells() {
		over[idx] = true
	}
	if len(over) == 0 {
		return
	}

	var ids []int
	for id, r := range out.Routes {
		for _, idx := range r.Cells {
			if over[idx] {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Ints(ids)
	out.CrossGroupConflicts = ids
	s.log.Warn("bounding-box independence violated across groups",
		slog.Int("overused_cells", len(over)),
		slog.Any("nets", ids))
}

// unionFind is a plain union-by-rank structure with path compression.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path compression
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

package route

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// NegotiatedRouter resolves simultaneous overuse of grid cells across nets
// with PathFinder-style negotiated congestion: every net routes greedily
// with overlap allowed, then contested cells get progressively more
// expensive (history cost plus a growing present-congestion multiplier)
// while only the offending nets are ripped up and rerouted, until the
// overflow reaches zero or the budget runs out.
type NegotiatedRouter struct {
	grid *Grid
	pf   *Pathfinder
	cfg  EngineConfig
	log  *slog.Logger

	routes   map[int]*Route
	failures map[int]*Diagnosis
}

// Outcome is the result of a negotiation run. When convergence fails, the
// routes are the best-seen (lowest-overflow) solution and Conflicting
// lists the still-contested net ids.
type Outcome struct {
	Routes      map[int]*Route
	Failures    map[int]*Diagnosis
	Overflow    int
	Iterations  int
	Converged   bool
	TimedOut    bool
	Conflicting []int
}

// NewNegotiatedRouter wires a negotiator over a grid and pathfinder.
func NewNegotiatedRouter(g *Grid, pf *Pathfinder, cfg EngineConfig, log *slog.Logger) *NegotiatedRouter {
	if log == nil {
		log = slog.Default()
	}
	nr := &NegotiatedRouter{
		grid:     g,
		pf:       pf,
		cfg:      cfg,
		log:      log,
		routes:   make(map[int]*Route),
		failures: make(map[int]*Diagnosis),
	}
	pf.SetRoutedLookup(func(id int) bool {
		_, ok := nr.routes[id]
		return ok
	})
	return nr
}

// Route performs the initial all-nets pass (temporary illegal overlap
// allowed) and then negotiates until convergence or budget exhaustion.
// Net visitation order is ascending net id throughout, so identical input
// yields identical output.
func (nr *NegotiatedRouter) Route(ctx context.Context, nets []*board.Net) *Outcome {
	nr.pf.SetNegotiated(true, nr.cfg.presentFactor(0))
	for _, n := range sortedNets(nets) {
		nr.routeOne(ctx, n)
	}
	return nr.Negotiate(ctx, nets)
}

// Negotiate runs the rip-up-and-reroute loop over whatever routes the
// negotiator currently holds. On an already-converged grid it reports
// zero overflow immediately without touching any route.
func (nr *NegotiatedRouter) Negotiate(ctx context.Context, nets []*board.Net) *Outcome {
	ordered := sortedNets(nets)

	bestOverflow := math.MaxInt
	var bestRoutes map[int]*Route
	var bestFailures map[int]*Diagnosis
	iterations := 0
	converged := false
	timedOut := false

	for iter := 0; ; iter++ {
		overflow := nr.grid.TotalOverflow()
		if overflow < bestOverflow {
			bestOverflow = overflow
			bestRoutes = copyRoutes(nr.routes)
			bestFailures = copyFailures(nr.failures)
		}
		if overflow == 0 {
			converged = true
			break
		}
		if iter >= nr.cfg.NegotiatedIterations {
			break
		}
		if ctx.Err() != nil {
			timedOut = true
			break
		}

		// Contested cells grow permanently more expensive; rerouting them
		// later stays discouraged even if the contest resolves.
		nr.grid.UpdateHistoryCosts(nr.cfg.HistoryIncrement)
		nr.pf.SetNegotiated(true, nr.cfg.presentFactor(iter+1))

		offenders := nr.offenders(ordered)
		for _, n := range offenders {
			if r, ok := nr.routes[n.ID]; ok {
				nr.grid.ReleasePath(int32(n.ID), r.Cells)
				delete(nr.routes, n.ID)
			}
			nr.routeOne(ctx, n)
		}
		iterations++

		nr.log.Debug("negotiation iteration",
			slog.Int("iteration", iterations),
			slog.Int("overflow", overflow),
			slog.Int("rerouted", len(offenders)))
	}

	// Never hand back a worse grid than the best the loop saw: rebuild
	// claims from the best-seen snapshot when the final state regressed.
	if finalOverflow := nr.grid.TotalOverflow(); bestRoutes != nil && finalOverflow > bestOverflow {
		nr.restore(bestRoutes, bestFailures)
	}

	out := &Outcome{
		Routes:     copyRoutes(nr.routes),
		Failures:   copyFailures(nr.failures),
		Overflow:   nr.grid.TotalOverflow(),
		Iterations: iterations,
		Converged:  converged,
		TimedOut:   timedOut,
	}
	if out.Overflow > 0 {
		over := make(map[int32]bool)
		for _, idx := range nr.grid.OverusedCells() {
			over[idx] = true
		}
		for _, n := range ordered {
			r, ok := nr.routes[n.ID]
			if !ok {
				continue
			}
			for _, idx := range r.Cells {
				if over[idx] {
					out.Conflicting = append(out.Conflicting, n.ID)
					if _, failed := out.Failures[n.ID]; !failed {
						out.Failures[n.ID] = &Diagnosis{NetID: n.ID, Kind: CongestionUnresolved}
					}
					break
				}
			}
		}
	}
	if !converged && !timedOut && out.Overflow > 0 {
		nr.log.Warn("negotiation budget exhausted",
			slog.Int("overflow", out.Overflow),
			slog.Int("conflicting_nets", len(out.Conflicting)))
	}
	return out
}

// Routes exposes the current accepted routes (used by the facade after
// relaxation passes mutate negotiator state).
func (nr *NegotiatedRouter) Routes() map[int]*Route { return nr.routes }

// routeOne routes a single net, recording either the route or its
// diagnosis. Failed searches leave the grid untouched.
func (nr *NegotiatedRouter) routeOne(ctx context.Context, n *board.Net) {
	r, diag := nr.pf.RouteNet(ctx, n)
	if r != nil {
		nr.routes[n.ID] = r
		delete(nr.failures, n.ID)
		return
	}
	nr.failures[n.ID] = diag
}

// offenders returns, in ascending id order, the nets that currently
// occupy an overused cell plus any net still unrouted. Nets untouched by
// overflow stay in place.
func (nr *NegotiatedRouter) offenders(ordered []*board.Net) []*board.Net {
	over := make(map[int32]bool)
	for _, idx := range nr.grid.OverusedCells() {
		over[idx] = true
	}

	var out []*board.Net
	for _, n := range ordered {
		r, ok := nr.routes[n.ID]
		if !ok {
			out = append(out, n)
			continue
		}
		for _, idx := range r.Cells {
			if over[idx] {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// restore rebuilds the grid claims from a snapshot: every current claim
// is released, then the snapshot routes are claimed.
func (nr *NegotiatedRouter) restore(routes map[int]*Route, failures map[int]*Diagnosis) {
	for id, r := range nr.routes {
		nr.grid.ReleasePath(int32(id), r.Cells)
	}
	for id, r := range routes {
		nr.grid.ClaimPath(int32(id), r.Cells)
	}
	nr.routes = copyRoutes(routes)
	nr.failures = copyFailures(failures)
}

func sortedNets(nets []*board.Net) []*board.Net {
	out := make([]*board.Net, len(nets))
	copy(out, nets)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyRoutes(m map[int]*Route) map[int]*Route {
	out := make(map[int]*Route, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFailures(m map[int]*Diagnosis) map[int]*Diagnosis {
	out := make(map[int]*Diagnosis, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

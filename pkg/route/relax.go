package route

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// RelaxationController recovers nets that failed purely from tight
// clearance, not congestion: each clearance-limited net is retried at a
// sequence of relaxation levels interpolating from the design clearance
// down to a caller-supplied minimum, stopping at the first success.
type RelaxationController struct {
	grid  *Grid
	pf    *Pathfinder
	rules board.DesignRules
	log   *slog.Logger
}

// RelaxationOutcome reports recovered routes and the clearance each was
// accepted at. Nets routed at the unchanged design clearance never appear
// in Adjustments.
type RelaxationOutcome struct {
	Routes      map[int]*Route
	Adjustments map[int]float64
	Unresolved  []int
	TimedOut    bool
}

// NewRelaxationController builds a relaxation pass over the grid.
func NewRelaxationController(g *Grid, pf *Pathfinder, rules board.DesignRules, log *slog.Logger) *RelaxationController {
	if log == nil {
		log = slog.Default()
	}
	return &RelaxationController{grid: g, pf: pf, rules: rules, log: log}
}

// Recover retries every net diagnosed ClearanceLimited. minClearance is
// clamped so it can never exceed the original clearance (or drop below
// the grid resolution, which the rules require anyway). The timeout
// bounds the whole pass; on expiry whatever subset succeeded is returned
// together with the unresolved remainder. A failed attempt claims
// nothing, so the grid is never left partially claimed.
func (rc *RelaxationController) Recover(ctx context.Context, nets []*board.Net, failures map[int]*Diagnosis,
	minClearance float64, levels int, timeout time.Duration) *RelaxationOutcome {

	original := rc.rules.Clearance
	if minClearance > original {
		minClearance = original
	}
	if minClearance < rc.rules.GridResolution {
		minClearance = rc.rules.GridResolution
	}
	if levels < 1 {
		levels = 1
	}

	out := &RelaxationOutcome{
		Routes:      make(map[int]*Route),
		Adjustments: make(map[int]float64),
	}

	var candidates []*board.Net
	for _, n := range sortedNets(nets) {
		if d, ok := failures[n.ID]; ok && d.Kind == ClearanceLimited {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return out
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	expired := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	// Relaxed nets route strictly: overlap negotiated earlier must not be
	// reintroduced by the recovery pass. Both the search mode and the
	// clearance go back to their pre-pass values on exit.
	prevOverlap, prevPresent := rc.pf.allowOverlap, rc.pf.presentFactor
	rc.pf.SetNegotiated(false, 0)
	defer rc.pf.SetNegotiated(prevOverlap, prevPresent)
	defer rc.pf.SetClearance(original)

	for _, n := range candidates {
		if expired() {
			out.TimedOut = true
			out.Unresolved = append(out.Unresolved, n.ID)
			continue
		}

		recovered := false
		for level := 1; level <= levels && !recovered; level++ {
			clearance := original - (original-minClearance)*float64(level)/float64(levels)
			rc.pf.SetClearance(clearance)

			r, _ := rc.pf.RouteNet(ctx, n)
			if r == nil {
				if expired() {
					break
				}
				continue
			}
			out.Routes[n.ID] = r
			if clearance != original {
				out.Adjustments[n.ID] = clearance
			}
			rc.log.Debug("net recovered at relaxed clearance",
				slog.Int("net", n.ID),
				slog.Float64("clearance", clearance))
			recovered = true
		}
		if !recovered {
			out.Unresolved = append(out.Unresolved, n.ID)
		}
	}

	sort.Ints(out.Unresolved)
	return out
}

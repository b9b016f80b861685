package route

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// Router is the full-board routing facade. It owns the grid for the
// current trial and exposes the engine's entry points; the external
// placement-feedback loop talks to it through FailedNets, AnalyzeFailure,
// and ResetForNewTrial.
type Router struct {
	board *board.Board
	rules board.DesignRules
	cfg   EngineConfig
	log   *slog.Logger

	grid *Grid
	pf   *Pathfinder

	trialID  string
	routes   map[int]*Route
	failures map[int]*Diagnosis
}

// Result is the outcome of one full-board routing entry point. Routes are
// ordered by net id; Failed carries a diagnosis per unrouted net. Elapsed
// and RemainingBudget report against the configured wall-clock budget.
type Result struct {
	TrialID    string
	Routes     []*Route
	Failed     []*Diagnosis
	Completion float64
	Overflow   int
	Iterations int

	WireLength float64
	ViaCount   int

	Elapsed         time.Duration
	RemainingBudget time.Duration

	// Conflicting lists nets still sharing cells when negotiation gave up.
	Conflicting []int
	// CrossGroupConflicts lists parallel-pass collisions (reported only).
	CrossGroupConflicts []int
	// Adjustments maps net id to the relaxed clearance it routed at;
	// nets routed at the design clearance are omitted.
	Adjustments map[int]float64
}

// NewRouter validates the rules and configuration, builds the routing
// grid, and returns a router ready for a first trial. Invalid
// configuration is the engine's only upfront hard failure.
func NewRouter(b *board.Board, rules board.DesignRules, cfg EngineConfig, log *slog.Logger) (*Router, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	grid, err := NewGrid(b, rules, cfg.MemoryBudgetBytes)
	if err != nil {
		return nil, err
	}

	r := &Router{
		board:    b,
		rules:    rules,
		cfg:      cfg,
		log:      log,
		grid:     grid,
		pf:       NewPathfinder(grid, rules, cfg),
		trialID:  uuid.NewString(),
		routes:   make(map[int]*Route),
		failures: make(map[int]*Diagnosis),
	}
	r.log.Info("router ready",
		slog.String("trial", r.trialID),
		slog.Int("nets", len(b.RoutableNets())),
		slog.String("backend", grid.Stats().Backend),
		slog.Int64("grid_bytes", grid.Stats().MemoryBytes))
	return r, nil
}

// Grid exposes the active grid for inspection.
func (r *Router) Grid() *Grid { return r.grid }

// TrialID identifies the current routing trial.
func (r *Router) TrialID() string { return r.trialID }

// ResetForNewTrial clears all routing state while keeping board geometry,
// starting a fresh trial (new trial id). The external placement loop
// calls this after repositioning components.
func (r *Router) ResetForNewTrial() {
	r.grid.ResetForNewTrial()
	r.routes = make(map[int]*Route)
	r.failures = make(map[int]*Diagnosis)
	r.trialID = uuid.NewString()
}

// FailedNets returns the ids of nets without an accepted route, ascending.
func (r *Router) FailedNets() []int {
	ids := make([]int, 0, len(r.failures))
	for id := range r.failures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AnalyzeFailure returns the diagnosis for a failed net. This is the
// interface the external placement optimizer consumes to decide which
// components to move before requesting a fresh trial.
func (r *Router) AnalyzeFailure(netID int) (*Diagnosis, error) {
	d, ok := r.failures[netID]
	if !ok {
		return nil, fmt.Errorf("net %d has no recorded failure", netID)
	}
	return d, nil
}

// budgetCtx applies the configured wall-clock budget to the context.
func (r *Router) budgetCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.Timeout)
	}
	return ctx, func() {}
}

// beginPass resets leftover state from a previous pass on the same trial.
func (r *Router) beginPass() {
	if len(r.routes) > 0 || len(r.failures) > 0 {
		r.grid.ResetForNewTrial()
		r.routes = make(map[int]*Route)
		r.failures = make(map[int]*Diagnosis)
	}
}

// RouteAll routes every net sequentially in ascending net-id order with
// no overlap allowed: first come, first claimed. Unroutable nets are
// recorded and skipped, never fatal.
func (r *Router) RouteAll(ctx context.Context) *Result {
	start := time.Now()
	ctx, cancel := r.budgetCtx(ctx)
	defer cancel()
	r.beginPass()

	r.pf.SetNegotiated(false, 0)
	r.pf.SetClearance(r.rules.Clearance)
	r.pf.SetRoutedLookup(func(id int) bool {
		_, ok := r.routes[id]
		return ok
	})

	for _, n := range r.board.RoutableNets() {
		if ctx.Err() != nil {
			r.failures[n.ID] = &Diagnosis{NetID: n.ID, Kind: Timeout}
			continue
		}
		route, diag := r.pf.RouteNet(ctx, n)
		if route != nil {
			r.routes[n.ID] = route
		} else {
			r.failures[n.ID] = diag
		}
	}

	return r.buildResult(start, 0, nil)
}

// RouteAllNegotiated routes the whole board with negotiated congestion.
func (r *Router) RouteAllNegotiated(ctx context.Context) *Result {
	start := time.Now()
	ctx, cancel := r.budgetCtx(ctx)
	defer cancel()
	r.beginPass()

	nr := NewNegotiatedRouter(r.grid, r.pf, r.cfg, r.log)
	outcome := nr.Route(ctx, r.board.RoutableNets())
	r.adopt(outcome.Routes, outcome.Failures)

	res := r.buildResult(start, outcome.Iterations, nil)
	res.Overflow = outcome.Overflow
	res.Conflicting = outcome.Conflicting
	return res
}

// RouteAllParallel routes spatially independent net groups concurrently
// and merges the results in net-id order.
func (r *Router) RouteAllParallel(ctx context.Context) *Result {
	start := time.Now()
	ctx, cancel := r.budgetCtx(ctx)
	defer cancel()
	r.beginPass()

	s := NewScheduler(r.grid, r.rules, r.cfg, r.log)
	outcome := s.Route(ctx, r.board.RoutableNets())
	r.adopt(outcome.Routes, outcome.Failures)

	res := r.buildResult(start, 0, nil)
	res.CrossGroupConflicts = outcome.CrossGroupConflicts
	return res
}

// RouteWithProgressiveClearance runs negotiated routing bounded by
// maxIterations, then retries clearance-limited failures at progressively
// relaxed clearance down to minClearance across numLevels steps. The
// timeout bounds the relaxation pass. The result's Adjustments map
// records the relaxed clearance actually used per net.
func (r *Router) RouteWithProgressiveClearance(ctx context.Context, minClearance float64, numLevels, maxIterations int, timeout time.Duration) *Result {
	start := time.Now()
	ctx, cancel := r.budgetCtx(ctx)
	defer cancel()
	r.beginPass()

	cfg := r.cfg
	if maxIterations > 0 {
		cfg.NegotiatedIterations = maxIterations
	}

	nets := r.board.RoutableNets()
	nr := NewNegotiatedRouter(r.grid, r.pf, cfg, r.log)
	outcome := nr.Route(ctx, nets)
	r.adopt(outcome.Routes, outcome.Failures)

	rc := NewRelaxationController(r.grid, r.pf, r.rules, r.log)
	recovery := rc.Recover(ctx, nets, r.failures, minClearance, numLevels, timeout)
	for id, route := range recovery.Routes {
		r.routes[id] = route
		delete(r.failures, id)
	}

	res := r.buildResult(start, outcome.Iterations, recovery.Adjustments)
	res.Overflow = outcome.Overflow
	res.Conflicting = outcome.Conflicting
	return res
}

// RouteWithLayerEscalation routes the board, growing the copper stack
// (2 -> 4 -> 6 ...) on a fresh grid whenever completion stays below the
// configured threshold, and adopts the best attempt.
func (r *Router) RouteWithLayerEscalation(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, cancel := r.budgetCtx(ctx)
	defer cancel()
	r.beginPass()

	ec := NewEscalationController(r.board, r.rules, r.cfg, r.log)
	attempt, err := ec.Route(ctx)
	if attempt == nil {
		return nil, err
	}

	// Adopt the winning attempt's board variant and grid as the trial's
	// new state; subsequent analysis and resets apply to it.
	r.board = attempt.Board
	r.grid = attempt.Grid
	r.pf = attempt.Pathfinder
	r.adopt(attempt.Outcome.Routes, attempt.Outcome.Failures)

	res := r.buildResult(start, attempt.Outcome.Iterations, nil)
	res.Overflow = attempt.Outcome.Overflow
	res.Conflicting = attempt.Outcome.Conflicting
	return res, err
}

// adopt replaces the router's per-net state with a pass outcome and
// rebases the pathfinder's routed lookup onto it, so later passes
// (relaxation, escalation follow-ups) consult the router's view rather
// than a collaborator's snapshot.
func (r *Router) adopt(routes map[int]*Route, failures map[int]*Diagnosis) {
	r.routes = copyRoutes(routes)
	r.failures = copyFailures(failures)
	r.pf.SetRoutedLookup(func(id int) bool {
		_, ok := r.routes[id]
		return ok
	})
}

// buildResult assembles the shared result fields from router state.
func (r *Router) buildResult(start time.Time, iterations int, adjustments map[int]float64) *Result {
	res := &Result{
		TrialID:     r.trialID,
		Iterations:  iterations,
		Elapsed:     time.Since(start),
		Adjustments: adjustments,
	}
	if r.cfg.Timeout > 0 && res.Elapsed < r.cfg.Timeout {
		res.RemainingBudget = r.cfg.Timeout - res.Elapsed
	}

	ids := make([]int, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		route := r.routes[id]
		res.Routes = append(res.Routes, route)
		res.WireLength += route.WireLength()
		res.ViaCount += len(route.Vias)
	}

	for _, id := range r.FailedNets() {
		res.Failed = append(res.Failed, r.failures[id])
	}

	total := len(r.board.RoutableNets())
	if total > 0 {
		res.Completion = float64(len(res.Routes)) / float64(total)
	} else {
		res.Completion = 1
	}
	return res
}

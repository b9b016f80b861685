package route

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// EscalationController adds copper layers when routing completion falls
// below the configured threshold: the board is retried on a fresh grid
// with a grown stack (2 -> 4 -> 6 ...) until the threshold is met or the
// layer cap is reached. Growing the stack inserts inner layers only, so
// F.Cu stays at index 0 and B.Cu at the last index of every attempt.
type EscalationController struct {
	board *board.Board
	rules board.DesignRules
	cfg   EngineConfig
	log   *slog.Logger
}

// EscalationAttempt is one full-board routing attempt at a fixed layer
// count, carrying the grid and board variant it ran on so the winner can
// be adopted by the caller.
type EscalationAttempt struct {
	Layers     int
	Completion float64
	Outcome    *Outcome
	Board      *board.Board
	Grid       *Grid
	Negotiator *NegotiatedRouter
	Pathfinder *Pathfinder
}

// NewEscalationController builds a layer escalation loop for a board.
func NewEscalationController(b *board.Board, rules board.DesignRules, cfg EngineConfig, log *slog.Logger) *EscalationController {
	if log == nil {
		log = slog.Default()
	}
	return &EscalationController{board: b, rules: rules, cfg: cfg, log: log}
}

// Route runs negotiated routing at increasing layer counts and returns
// the best attempt: highest completion, ties broken by fewest layers.
// Only grid construction (memory budget, dimensions) can error; routing
// shortfalls are reported through the attempt itself.
func (ec *EscalationController) Route(ctx context.Context) (*EscalationAttempt, error) {
	var best *EscalationAttempt

	layers := ec.board.Stack.Count()
	for {
		attempt, err := ec.attempt(ctx, layers)
		if err != nil {
			return best, err
		}

		ec.log.Info("layer escalation attempt",
			slog.Int("layers", layers),
			slog.Float64("completion", attempt.Completion),
			slog.Int("overflow", attempt.Outcome.Overflow))

		// Strict comparison keeps the earlier (fewer-layer) attempt on a
		// completion tie.
		if best == nil || attempt.Completion > best.Completion {
			best = attempt
		}
		if attempt.Completion >= ec.cfg.MinCompletion {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return best, nil
		}

		layers += 2
		if layers > ec.cfg.MaxLayers {
			return best, nil
		}
	}
}

// attempt routes the whole board once at the given layer count on a fresh
// grid.
func (ec *EscalationController) attempt(ctx context.Context, layers int) (*EscalationAttempt, error) {
	b := ec.board
	if layers != b.Stack.Count() {
		stack, err := b.Stack.Grow(layers)
		if err != nil {
			return nil, fmt.Errorf("grow layer stack: %w", err)
		}
		b, err = b.WithStack(stack)
		if err != nil {
			return nil, fmt.Errorf("rebuild board with %d layers: %w", layers, err)
		}
	}

	grid, err := NewGrid(b, ec.rules, ec.cfg.MemoryBudgetBytes)
	if err != nil {
		return nil, fmt.Errorf("build %d-layer grid: %w", layers, err)
	}

	pf := NewPathfinder(grid, ec.rules, ec.cfg)
	nr := NewNegotiatedRouter(grid, pf, ec.cfg, ec.log)

	nets := b.RoutableNets()
	outcome := nr.Route(ctx, nets)

	completion := 1.0
	if len(nets) > 0 {
		completion = float64(len(outcome.Routes)) / float64(len(nets))
	}

	return &EscalationAttempt{
		Layers:     layers,
		Completion: completion,
		Outcome:    outcome,
		Board:      b,
		Grid:       grid,
		Negotiator: nr,
		Pathfinder: pf,
	}, nil
}

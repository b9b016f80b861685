package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

func TestEscalationAddsLayersUntilComplete(t *testing.T) {
	b, rules, err := board.DemoObstacleDetour(false)
	require.NoError(t, err)

	cfg := DefaultEngineConfig()
	cfg.MinCompletion = 1.0
	ec := NewEscalationController(b, rules, cfg, nil)

	attempt, err := ec.Route(context.Background())
	require.NoError(t, err)
	require.NotNil(t, attempt)

	// Two layers cannot work (front wall, back keepout); the first grown
	// stack opens an inner layer for the detour.
	require.Equal(t, 4, attempt.Layers)
	require.Equal(t, 1.0, attempt.Completion)
	require.Len(t, attempt.Outcome.Routes, 1)
	require.Equal(t, 4, attempt.Board.Stack.Count())

	// Outer layer identity survives the growth.
	name, _ := attempt.Board.Stack.Name(0)
	require.Equal(t, board.FrontCopper, name)
	name, _ = attempt.Board.Stack.Name(3)
	require.Equal(t, board.BackCopper, name)

	// The route crosses under the wall on an inner layer.
	var inner bool
	for _, s := range attempt.Outcome.Routes[1].Segments {
		if s.Layer == "In1.Cu" || s.Layer == "In2.Cu" {
			inner = true
		}
	}
	require.True(t, inner, "detour did not use an inner layer")
}

func TestEscalationStopsAtThreshold(t *testing.T) {
	b, rules, err := board.DemoObstacleDetour(true)
	require.NoError(t, err)

	ec := NewEscalationController(b, rules, DefaultEngineConfig(), nil)
	attempt, err := ec.Route(context.Background())
	require.NoError(t, err)
	require.NotNil(t, attempt)

	// The two-layer board already meets the threshold; no growth happens.
	require.Equal(t, 2, attempt.Layers)
	require.Equal(t, 1.0, attempt.Completion)
}

func TestEscalationReturnsBestAttemptAtCap(t *testing.T) {
	b, rules, err := board.DemoObstacleDetour(false)
	require.NoError(t, err)

	// Capped at two layers, the unroutable board never improves; the best
	// attempt is still reported instead of an error.
	cfg := DefaultEngineConfig()
	cfg.MinCompletion = 1.0
	cfg.MaxLayers = 2
	ec := NewEscalationController(b, rules, cfg, nil)

	attempt, err := ec.Route(context.Background())
	require.NoError(t, err)
	require.NotNil(t, attempt)
	require.Equal(t, 2, attempt.Layers)
	require.Equal(t, 0.0, attempt.Completion)
	require.Len(t, attempt.Outcome.Failures, 1)
}

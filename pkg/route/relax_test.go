package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// clearanceGapBoard has two full-height walls on every copper layer with a
// single-cell gap between them. At the 0.2mm design clearance the gap cells
// sit inside the walls' halos and the board is unroutable; at 0.1mm the gap
// opens up.
func clearanceGapBoard(t *testing.T) (*board.Board, board.DesignRules) {
	t.Helper()
	rules := board.DefaultDesignRules()
	rules.GridResolution = 0.1
	rules.Clearance = 0.2

	stack, err := board.NewLayerStack(2)
	require.NoError(t, err)

	pads := []*board.Pad{
		{Position: board.Position{X: 1, Y: 2.45}, Size: board.Size{Width: 0.6, Height: 0.6}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}},
		{Position: board.Position{X: 9, Y: 2.45}, Size: board.Size{Width: 0.6, Height: 0.6}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}},
	}
	obstacles := []*board.Obstacle{
		{Box: board.BoundingBox{Min: board.Position{X: 5.05, Y: -1}, Max: board.Position{X: 5.35, Y: 2.35}}, Layers: board.LayerSet{board.AllCopper}},
		{Box: board.BoundingBox{Min: board.Position{X: 5.05, Y: 2.55}, Max: board.Position{X: 5.35, Y: 6}}, Layers: board.LayerSet{board.AllCopper}},
	}

	outline := board.BoundingBox{Min: board.Position{X: 0, Y: 0}, Max: board.Position{X: 10, Y: 5}}
	b, err := board.NewBoard(outline, stack, pads, obstacles)
	require.NoError(t, err)
	return b, rules
}

func TestTightGapClassifiedClearanceLimited(t *testing.T) {
	b, rules := clearanceGapBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	pf := NewPathfinder(g, rules, DefaultEngineConfig())

	net, _ := b.Net(1)
	route, diag := pf.RouteNet(context.Background(), net)
	require.Nil(t, route)
	require.NotNil(t, diag)
	require.Equal(t, ClearanceLimited, diag.Kind)
	require.Positive(t, diag.Stats.ClearanceRejects)
}

func TestRelaxationRecoversTightGap(t *testing.T) {
	b, rules := clearanceGapBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	pf := NewPathfinder(g, rules, DefaultEngineConfig())

	net, _ := b.Net(1)
	_, diag := pf.RouteNet(context.Background(), net)
	require.NotNil(t, diag)
	failures := map[int]*Diagnosis{1: diag}

	rc := NewRelaxationController(g, pf, rules, nil)
	out := rc.Recover(context.Background(), b.RoutableNets(), failures, 0.1, 2, 0)

	require.False(t, out.TimedOut)
	require.Empty(t, out.Unresolved)
	r, ok := out.Routes[1]
	require.True(t, ok, "gap net not recovered")

	// Level 1 (0.15mm) still rounds to two clearance cells; only the final
	// level at the minimum clearance fits through the gap.
	require.InDelta(t, 0.1, out.Adjustments[1], 1e-9)
	require.InDelta(t, 0.1, r.RelaxedClearance, 1e-9)

	// The recovered route is claimed and legal.
	require.Zero(t, g.TotalOverflow())
	require.NotEmpty(t, r.Cells)

	// The pathfinder is handed back at the design clearance.
	require.Equal(t, rules.Clearance, pf.Clearance())
}

func TestRelaxationSkipsOtherFailureKinds(t *testing.T) {
	b, rules := clearanceGapBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	pf := NewPathfinder(g, rules, DefaultEngineConfig())

	failures := map[int]*Diagnosis{1: {NetID: 1, Kind: NoPathFound}}
	rc := NewRelaxationController(g, pf, rules, nil)
	out := rc.Recover(context.Background(), b.RoutableNets(), failures, 0.1, 3, 0)

	require.Empty(t, out.Routes)
	require.Empty(t, out.Adjustments)
	require.Empty(t, out.Unresolved)
}

func TestRelaxationRestoresSearchMode(t *testing.T) {
	b, rules := clearanceGapBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	pf := NewPathfinder(g, rules, DefaultEngineConfig())

	// Hand the controller a pathfinder mid-negotiation. The recovery pass
	// itself routes strictly, but the mode must come back untouched along
	// with the clearance.
	pf.SetNegotiated(true, 0.75)

	failures := map[int]*Diagnosis{1: {NetID: 1, Kind: ClearanceLimited}}
	rc := NewRelaxationController(g, pf, rules, nil)
	out := rc.Recover(context.Background(), b.RoutableNets(), failures, 0.1, 2, 0)

	require.Contains(t, out.Routes, 1)
	require.True(t, pf.allowOverlap, "overlap mode lost across the recovery pass")
	require.InDelta(t, 0.75, pf.presentFactor, 1e-9)
	require.Equal(t, rules.Clearance, pf.Clearance())

	// The recovered route itself was searched strictly: it claims cleanly.
	require.Zero(t, g.TotalOverflow())
}

func TestRelaxationClampsMinimumClearance(t *testing.T) {
	b, rules := clearanceGapBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	pf := NewPathfinder(g, rules, DefaultEngineConfig())

	net, _ := b.Net(1)
	_, diag := pf.RouteNet(context.Background(), net)
	failures := map[int]*Diagnosis{1: diag}

	// Asking for a minimum below the grid resolution clamps to the
	// resolution; the gap still opens there.
	rc := NewRelaxationController(g, pf, rules, nil)
	out := rc.Recover(context.Background(), b.RoutableNets(), failures, 0.01, 1, 0)

	require.Contains(t, out.Routes, 1)
	require.InDelta(t, rules.GridResolution, out.Adjustments[1], 1e-9)
}

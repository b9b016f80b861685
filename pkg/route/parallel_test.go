package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

// twoIslandBoard has two nets in opposite corners, far enough apart that
// their clearance-expanded bounding boxes cannot overlap.
func twoIslandBoard(t *testing.T) (*board.Board, board.DesignRules) {
	t.Helper()
	rules := board.DefaultDesignRules()
	rules.GridResolution = 0.2
	rules.Clearance = 0.2

	stack, err := board.NewLayerStack(2)
	require.NoError(t, err)

	pads := []*board.Pad{
		{Position: board.Position{X: 2, Y: 2}, Size: board.Size{Width: 1, Height: 1}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}},
		{Position: board.Position{X: 8, Y: 2}, Size: board.Size{Width: 1, Height: 1}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}},
		{Position: board.Position{X: 2, Y: 18}, Size: board.Size{Width: 1, Height: 1}, NetID: 2, Layers: board.LayerSet{board.FrontCopper}},
		{Position: board.Position{X: 8, Y: 18}, Size: board.Size{Width: 1, Height: 1}, NetID: 2, Layers: board.LayerSet{board.FrontCopper}},
	}
	outline := board.BoundingBox{Min: board.Position{X: 0, Y: 0}, Max: board.Position{X: 20, Y: 20}}
	b, err := board.NewBoard(outline, stack, pads, nil)
	require.NoError(t, err)
	return b, rules
}

func TestPartitionIsExact(t *testing.T) {
	b, rules, err := board.DemoCharlieplex()
	require.NoError(t, err)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	s := NewScheduler(g, rules, DefaultEngineConfig(), nil)

	nets := b.RoutableNets()
	groups := s.Partition(nets)

	// Every net lands in exactly one group.
	seen := make(map[int]int)
	for _, group := range groups {
		for _, n := range group {
			seen[n.ID]++
		}
	}
	require.Len(t, seen, len(nets))
	for id, count := range seen {
		require.Equal(t, 1, count, "net %d appears in %d groups", id, count)
	}

	// Groups ordered by smallest member, members ascending.
	for gi, group := range groups {
		for i := 1; i < len(group); i++ {
			require.Less(t, group[i-1].ID, group[i].ID)
		}
		if gi > 0 {
			require.Less(t, groups[gi-1][0].ID, group[0].ID)
		}
	}
}

func TestPartitionSeparatesDistantNets(t *testing.T) {
	b, rules := twoIslandBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	s := NewScheduler(g, rules, DefaultEngineConfig(), nil)

	groups := s.Partition(b.RoutableNets())
	require.Len(t, groups, 2)
	require.Equal(t, 1, groups[0][0].ID)
	require.Equal(t, 2, groups[1][0].ID)
}

func TestSchedulerRoutesGroupsConcurrently(t *testing.T) {
	b, rules := twoIslandBoard(t)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)

	cfg := DefaultEngineConfig()
	cfg.Workers = 2
	s := NewScheduler(g, rules, cfg, nil)

	out := s.Route(context.Background(), b.RoutableNets())
	require.Len(t, out.Routes, 2)
	require.Empty(t, out.Failures)
	require.Empty(t, out.CrossGroupConflicts)
	require.Equal(t, [][]int{{1}, {2}}, out.Groups)

	// Independent groups routed on a shared grid must leave it legal.
	require.Zero(t, g.TotalOverflow())
}

func TestSchedulerCollectsFailuresPerNet(t *testing.T) {
	b, rules, err := board.DemoObstacleDetour(false)
	require.NoError(t, err)
	g, err := NewGrid(b, rules, 0)
	require.NoError(t, err)
	s := NewScheduler(g, rules, DefaultEngineConfig(), nil)

	out := s.Route(context.Background(), b.RoutableNets())
	require.Empty(t, out.Routes)
	require.Len(t, out.Failures, 1)
	require.Equal(t, NoPathFound, out.Failures[1].Kind)
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(2, 3)
	uf.union(1, 3)

	if uf.find(0) != uf.find(2) {
		t.Fatal("transitively joined elements have different roots")
	}
	if uf.find(4) == uf.find(0) || uf.find(4) == uf.find(5) {
		t.Fatal("disjoint elements share a root")
	}
}

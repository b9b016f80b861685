package route

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
)

func testGrid(t *testing.T) (*Grid, *board.Board, board.DesignRules) {
	t.Helper()
	b, rules, err := board.DemoTwoPad()
	if err != nil {
		t.Fatalf("DemoTwoPad failed: %v", err)
	}
	g, err := NewGrid(b, rules, 0)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	return g, b, rules
}

func TestGridWorldMappingRoundTrip(t *testing.T) {
	g, _, rules := testGrid(t)

	cases := []board.Position{
		{X: 0.1, Y: 0.1},
		{X: 6.0, Y: 2.0},
		{X: 11.9, Y: 3.9},
	}
	for _, pos := range cases {
		col, row := g.WorldToGrid(pos)
		back := g.GridToWorld(col, row)
		if dx := back.X - pos.X; dx > rules.GridResolution || dx < -rules.GridResolution {
			t.Fatalf("round trip X drift %v for %+v", dx, pos)
		}
		if dy := back.Y - pos.Y; dy > rules.GridResolution || dy < -rules.GridResolution {
			t.Fatalf("round trip Y drift %v for %+v", dy, pos)
		}
	}
}

func TestGridIndexCoordsInverse(t *testing.T) {
	g, _, _ := testGrid(t)
	cols, rows, layers := g.Dimensions()

	for _, c := range [][3]int{{0, 0, 0}, {1, rows - 1, cols - 1}, {layers - 1, rows / 2, cols / 2}} {
		idx := g.Index(c[0], c[1], c[2])
		l, r, cc := g.Coords(idx)
		if l != c[0] || r != c[1] || cc != c[2] {
			t.Fatalf("Coords(Index(%v)) = (%d,%d,%d)", c, l, r, cc)
		}
	}
}

func TestGridPadOwnNetEnterable(t *testing.T) {
	g, b, _ := testGrid(t)

	pad := b.Pads[0]
	cells := g.PadCells(pad)
	if len(cells) == 0 {
		t.Fatal("pad has no footprint cells")
	}
	for _, idx := range cells {
		l, r, c := g.Coords(idx)
		state := g.CellAt(l, r, c)
		if !state.PadBlocked {
			t.Fatalf("pad cell (%d,%d,%d) not marked pad-blocked", l, r, c)
		}
		if state.Original != pad.NetID {
			t.Fatalf("pad cell (%d,%d,%d) original net %d, want %d", l, r, c, state.Original, pad.NetID)
		}
	}
}

func TestGridClaimReleaseRestoresOwnership(t *testing.T) {
	g, _, _ := testGrid(t)

	cells := []int32{g.Index(0, 10, 20), g.Index(0, 10, 21), g.Index(1, 10, 21)}
	g.ClaimPath(7, cells)
	for _, idx := range cells {
		l, r, c := g.Coords(idx)
		state := g.CellAt(l, r, c)
		if state.Usage != 1 || state.Owner != 7 {
			t.Fatalf("after claim: cell (%d,%d,%d) usage=%d owner=%d", l, r, c, state.Usage, state.Owner)
		}
	}

	// A second net claiming the same cells creates transient overuse.
	g.ClaimPath(9, cells)
	if got := g.TotalOverflow(); got != 3 {
		t.Fatalf("TotalOverflow = %d, want 3", got)
	}
	if got := g.OverusedCount(); got != 3 {
		t.Fatalf("OverusedCount = %d, want 3", got)
	}
	if got := len(g.OverusedCells()); got != 3 {
		t.Fatalf("OverusedCells returned %d cells, want 3", got)
	}

	g.ReleasePath(9, cells)
	g.ReleasePath(7, cells)
	for _, idx := range cells {
		l, r, c := g.Coords(idx)
		state := g.CellAt(l, r, c)
		if state.Usage != 0 || state.Owner != 0 {
			t.Fatalf("after release: cell (%d,%d,%d) usage=%d owner=%d", l, r, c, state.Usage, state.Owner)
		}
	}
	if got := g.TotalOverflow(); got != 0 {
		t.Fatalf("TotalOverflow after release = %d, want 0", got)
	}
}

func TestGridHistoryCostMonotonicAndTargeted(t *testing.T) {
	g, _, _ := testGrid(t)

	contested := g.Index(0, 5, 5)
	quiet := g.Index(0, 5, 6)
	g.ClaimPath(1, []int32{contested, quiet})
	g.ClaimPath(2, []int32{contested})
	g.ClaimPath(3, []int32{contested})

	// increment * (usage - 1) lands only on overused cells.
	g.UpdateHistoryCosts(0.5)
	if got := g.CellAt(0, 5, 5).History; got != 1.0 {
		t.Fatalf("contested history = %v, want 1.0", got)
	}
	if got := g.CellAt(0, 5, 6).History; got != 0 {
		t.Fatalf("quiet history = %v, want 0", got)
	}

	// History never decreases, even after the contest resolves.
	g.ReleasePath(2, []int32{contested})
	g.ReleasePath(3, []int32{contested})
	g.UpdateHistoryCosts(0.5)
	if got := g.CellAt(0, 5, 5).History; got != 1.0 {
		t.Fatalf("history after resolution = %v, want unchanged 1.0", got)
	}
}

func TestGridResetForNewTrialKeepsGeometry(t *testing.T) {
	g, b, _ := testGrid(t)

	cells := []int32{g.Index(0, 8, 8)}
	g.ClaimPath(1, cells)
	g.ClaimPath(2, cells)
	g.UpdateHistoryCosts(1)

	g.ResetForNewTrial()

	state := g.CellAt(0, 8, 8)
	if state.Usage != 0 || state.Owner != 0 || state.History != 0 {
		t.Fatalf("routing state survived reset: %+v", state)
	}

	// Pad geometry stays.
	padCells := g.PadCells(b.Pads[0])
	l, r, c := g.Coords(padCells[0])
	if !g.CellAt(l, r, c).PadBlocked {
		t.Fatal("pad blocking lost on reset")
	}
}

func TestGridMemoryBudgetPrecondition(t *testing.T) {
	b, rules, err := board.DemoTwoPad()
	if err != nil {
		t.Fatalf("DemoTwoPad failed: %v", err)
	}

	if _, err := NewGrid(b, rules, 64); !errors.Is(err, ErrGridTooLarge) {
		t.Fatalf("tiny budget: err = %v, want ErrGridTooLarge", err)
	}
	// Unlimited budget always builds.
	if _, err := NewGrid(b, rules, 0); err != nil {
		t.Fatalf("unlimited budget: %v", err)
	}
}

func TestGridFinePitchViaExclusion(t *testing.T) {
	rules := board.DefaultDesignRules()
	rules.GridResolution = 0.2
	rules.Clearance = 0.2

	stack, err := board.NewLayerStack(2)
	if err != nil {
		t.Fatal(err)
	}
	fine := &board.Component{Reference: "U1", Pitch: 0.4} // below the 0.5 threshold
	coarse := &board.Component{Reference: "J1", Pitch: 2.54}
	pads := []*board.Pad{
		{Position: board.Position{X: 2, Y: 2}, Size: board.Size{Width: 0.4, Height: 0.4}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}, Component: fine},
		{Position: board.Position{X: 10, Y: 2}, Size: board.Size{Width: 1, Height: 1}, NetID: 1, Layers: board.LayerSet{board.FrontCopper}, Component: coarse},
	}
	outline := board.BoundingBox{Min: board.Position{X: 0, Y: 0}, Max: board.Position{X: 12, Y: 4}}
	b, err := board.NewBoard(outline, stack, pads, nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGrid(b, rules, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Sites on the fine-pitch pad and just beside it exclude vias.
	col, row := g.WorldToGrid(board.Position{X: 2, Y: 2})
	if !g.viaExcluded[row*g.cols+col] {
		t.Fatal("via allowed on a fine-pitch pad")
	}
	col, row = g.WorldToGrid(board.Position{X: 2.3, Y: 2})
	if !g.viaExcluded[row*g.cols+col] {
		t.Fatal("via allowed inside the fine-pitch exclusion distance")
	}

	// The coarse-pitch pad excludes nothing, near or on it.
	col, row = g.WorldToGrid(board.Position{X: 10, Y: 2})
	if g.viaExcluded[row*g.cols+col] {
		t.Fatal("via excluded near a coarse-pitch component")
	}
}

func TestGridStatsReportBackend(t *testing.T) {
	g, _, _ := testGrid(t)
	stats := g.Stats()
	if stats.Backend == "" {
		t.Fatal("stats missing backend name")
	}
	if stats.Cells != stats.Cols*stats.Rows*stats.Layers {
		t.Fatalf("cell count %d inconsistent with dimensions", stats.Cells)
	}
	if stats.MemoryBytes <= 0 {
		t.Fatal("memory estimate not positive")
	}
}

package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceRoute/pkg/board"
	"github.com/OpenTraceLab/OpenTraceRoute/pkg/route"
)

var (
	strategy      string
	configPath    string
	timeoutFlag   time.Duration
	workers       int
	minClearance  float64
	relaxLevels   int
	maxIterations int
)

// demoBoards maps the demo names to their constructors.
var demoBoards = map[string]struct {
	build func() (*board.Board, board.DesignRules, error)
	desc  string
}{
	"two-pad": {
		build: board.DemoTwoPad,
		desc:  "Two pads, one net, nothing in between",
	},
	"detour": {
		build: func() (*board.Board, board.DesignRules, error) { return board.DemoObstacleDetour(true) },
		desc:  "Obstacle wall on the front layer; the route must detour through a via",
	},
	"detour-blocked": {
		build: func() (*board.Board, board.DesignRules, error) { return board.DemoObstacleDetour(false) },
		desc:  "Obstacle wall plus a back-layer keepout; unroutable on two layers",
	},
	"charlieplex": {
		build: board.DemoCharlieplex,
		desc:  "Nine crossing nets of a 3x3 LED matrix",
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <demo>",
	Short: "Route one of the built-in demo boards",
	Long: `Routes a built-in demo board and prints the result.

Strategies:
  sequential   Route nets one by one, first come first claimed
  negotiated   Negotiated congestion: overlap, penalize, rip up, reroute (default)
  parallel     Partition into independent net groups, route them concurrently
  clearance    Negotiated routing plus progressive clearance relaxation
  layers       Negotiated routing with layer escalation (2 -> 4 -> 6)

Examples:
  otr route charlieplex
  otr route detour --strategy sequential
  otr route detour-blocked --strategy layers
  otr route charlieplex --strategy parallel --workers 4 --timeout 30s`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

var demosCmd = &cobra.Command{
	Use:   "demos",
	Short: "List the built-in demo boards",
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, 0, len(demoBoards))
		for name := range demoBoards {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-16s %s\n", name, demoBoards[name].desc)
		}
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(demosCmd)

	routeCmd.Flags().StringVarP(&strategy, "strategy", "s", "negotiated", "routing strategy")
	routeCmd.Flags().StringVarP(&configPath, "config", "c", "", "engine config YAML file")
	routeCmd.Flags().DurationVarP(&timeoutFlag, "timeout", "t", 0, "wall-clock budget (0 = unbounded)")
	routeCmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel workers (0 = auto)")
	routeCmd.Flags().Float64Var(&minClearance, "min-clearance", 0.1, "minimum clearance for the clearance strategy, in mm")
	routeCmd.Flags().IntVar(&relaxLevels, "levels", 3, "relaxation levels for the clearance strategy")
	routeCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "negotiation iteration override (0 = config value)")
}

func runRoute(cmd *cobra.Command, args []string) error {
	demo, ok := demoBoards[args[0]]
	if !ok {
		return fmt.Errorf("unknown demo board %q (see 'otr demos')", args[0])
	}

	b, rules, err := demo.build()
	if err != nil {
		return fmt.Errorf("build demo board: %w", err)
	}

	cfg := route.DefaultEngineConfig()
	if configPath != "" {
		cfg, err = route.LoadEngineConfig(configPath)
		if err != nil {
			return err
		}
	}
	if timeoutFlag > 0 {
		cfg.Timeout = timeoutFlag
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	r, err := route.NewRouter(b, rules, cfg, nil)
	if err != nil {
		return err
	}

	printBoard(b, r)

	ctx := context.Background()
	var res *route.Result
	switch strategy {
	case "sequential":
		res = r.RouteAll(ctx)
	case "negotiated":
		res = r.RouteAllNegotiated(ctx)
	case "parallel":
		res = r.RouteAllParallel(ctx)
	case "clearance":
		res = r.RouteWithProgressiveClearance(ctx, minClearance, relaxLevels, maxIterations, timeoutFlag)
	case "layers":
		res, err = r.RouteWithLayerEscalation(ctx)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown strategy %q", strategy)
	}

	printResult(res, r)
	return nil
}

func printBoard(b *board.Board, r *route.Router) {
	stats := r.Grid().Stats()
	fmt.Printf("Board: %.1f x %.1f mm, %d copper layers\n",
		b.Outline.Width(), b.Outline.Height(), b.Stack.Count())
	fmt.Printf("  Nets: %d routable, %d pads\n", len(b.RoutableNets()), len(b.Pads))
	fmt.Printf("  Grid: %d x %d x %d cells (%.1f MB, %s backend)\n\n",
		stats.Cols, stats.Rows, stats.Layers,
		float64(stats.MemoryBytes)/(1024*1024), stats.Backend)
}

func printResult(res *route.Result, r *route.Router) {
	fmt.Printf("Trial %s: %.0f%% complete in %s\n",
		res.TrialID, res.Completion*100, res.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Routed: %d nets, %.2f mm copper, %d vias\n",
		len(res.Routes), res.WireLength, res.ViaCount)
	if res.Iterations > 0 {
		fmt.Printf("  Negotiation: %d iterations, overflow %d\n", res.Iterations, res.Overflow)
	}
	if len(res.Adjustments) > 0 {
		ids := make([]int, 0, len(res.Adjustments))
		for id := range res.Adjustments {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fmt.Printf("  Relaxed clearance:\n")
		for _, id := range ids {
			fmt.Printf("    net %d at %.2f mm\n", id, res.Adjustments[id])
		}
	}
	if len(res.Conflicting) > 0 {
		fmt.Printf("  Still conflicting: %v\n", res.Conflicting)
	}
	if len(res.CrossGroupConflicts) > 0 {
		fmt.Printf("  Cross-group collisions: %v\n", res.CrossGroupConflicts)
	}

	if len(res.Failed) > 0 {
		fmt.Printf("\nFailed nets (%d):\n", len(res.Failed))
		for _, d := range res.Failed {
			fmt.Printf("  net %-4d %-22s expanded=%d clearance_rejects=%d via_rejects=%d\n",
				d.NetID, d.Kind, d.Stats.Expanded, d.Stats.ClearanceRejects, d.Stats.ViaExclusionRejects)
		}
	}
}

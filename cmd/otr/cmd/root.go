package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "otr",
	Short: "OpenTraceRoute - PCB autorouting engine",
	Long: `OpenTraceRoute (otr) routes printed circuit boards: given pads grouped
into nets and a set of design rules, it computes copper traces and vias
connecting every net while honoring clearance and keepout constraints.

Examples:
  otr route charlieplex                      # Negotiated routing on the demo matrix
  otr route detour --strategy sequential     # Single net around an obstacle
  otr route charlieplex --strategy parallel  # Independent net groups on a worker pool
  otr demos                                  # List the built-in demo boards`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

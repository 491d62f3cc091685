package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pidaction/action"
	"pidaction/internal/simulate"
)

var (
	configFile string
	target     int
	start      int
	kp         float64
	ki         float64
	kd         float64
	kf         float64
	tolerance  int
	completion string
	maxSteps   int
	verbose    bool
	noPlot     bool
	height     int
)

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// main runs the pidsim CLI, which bench-tests configured gains against the simulated plant.
func main() {
	rootCmd := &cobra.Command{
		Use:   "pidsim",
		Short: "run a position action against a simulated motor",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "step an action until it arrives",
		RunE:  runSim,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().IntVar(&target, "target", simulate.DefaultTarget, "target position in ticks")
	runCmd.Flags().IntVar(&start, "start", 0, "starting position in ticks")
	runCmd.Flags().Float64Var(&kp, "kp", simulate.DefaultKp, "proportional gain")
	runCmd.Flags().Float64Var(&ki, "ki", 0, "integral gain")
	runCmd.Flags().Float64Var(&kd, "kd", 0, "derivative gain")
	runCmd.Flags().Float64Var(&kf, "kf", 0, "feedforward gain")
	runCmd.Flags().IntVar(&tolerance, "tolerance", action.DefaultTolerance, "arrival band half-width in ticks")
	runCmd.Flags().StringVar(&completion, "completion", simulate.CompletionInline, "inline or condition")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", simulate.DefaultMaxSteps, "give up after this many steps")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every telemetry record")
	runCmd.Flags().BoolVar(&noPlot, "no-plot", false, "skip the position plot")
	runCmd.Flags().IntVar(&height, "height", 12, "plot height")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(simulate.DefaultConfig())
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg := simulate.DefaultConfig()
	if configFile != "" {
		loaded, err := simulate.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	// Flags given explicitly win over the file.
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target = target
	}
	if flags.Changed("start") {
		cfg.Start = start
	}
	if flags.Changed("kp") {
		cfg.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.Kd = kd
	}
	if flags.Changed("kf") {
		cfg.Kf = kf
	}
	if flags.Changed("tolerance") {
		cfg.Tolerance = tolerance
	}
	if flags.Changed("completion") {
		cfg.Completion = completion
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}

	var sink action.Sink
	if verbose {
		step := 0
		sink = action.SinkFunc(func(r action.Record) {
			step++
			fmt.Println(dim.Render(fmt.Sprintf("%4d  %s: %s", step, r.Label, r)))
		})
	}

	result, err := simulate.Run(context.Background(), cfg, sink)
	if err != nil {
		return err
	}

	finalTarget := cfg.Target
	if n := len(result.Records); n > 0 {
		finalTarget = result.Records[n-1].Target
	}
	if result.Arrived {
		fmt.Println(green.Render(fmt.Sprintf("arrived after %d steps, final position %d (target %d ± %d)",
			result.Steps, result.Final, finalTarget, cfg.Tolerance)))
	} else {
		fmt.Println(yellow.Render(fmt.Sprintf("did not arrive within %d steps, final position %d (target %d ± %d)",
			result.Steps, result.Final, finalTarget, cfg.Tolerance)))
	}

	if noPlot || len(result.Positions) < 2 {
		return nil
	}
	graph := asciigraph.PlotMany([][]float64{result.Targets, result.Positions},
		asciigraph.Height(height),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Blue),
		asciigraph.Caption("position (blue) vs target (red)"),
	)
	fmt.Println(graph)
	return nil
}

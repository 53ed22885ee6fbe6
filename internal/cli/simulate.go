package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"GasMonitorAPI/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic device telemetry to the MQTT broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.SpikeChance < 0 || simulateOpts.SpikeChance > 1 {
			return fmt.Errorf("--spike-chance must be between 0 and 1")
		}
		if simulateOpts.Ticks < 0 {
			return fmt.Errorf("--ticks cannot be negative")
		}
		return getApp().Simulate(cmd.Context(), simulateOpts)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simulateOpts.Devices, "devices", 0, "Number of simulated devices (default from config)")
	f.DurationVar(&simulateOpts.Interval, "interval", 0, "Publish interval (default from config)")
	f.Int64Var(&simulateOpts.Seed, "seed", 0, "Random seed for reproducible runs")
	f.Float64Var(&simulateOpts.SpikeChance, "spike-chance", 0, "Per-tick probability of a CO excursion")
	f.IntVar(&simulateOpts.Ticks, "ticks", 0, "Stop after this many rounds (0 runs until interrupted)")
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"GasMonitorAPI/internal/app"
)

var (
	reportFrom   string
	reportTo     string
	reportShift  time.Duration
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <device>",
	Short: "Render a shift exposure PDF from persisted history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := reportPeriod(time.Now().UTC())
		if err != nil {
			return err
		}
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Device: args[0],
			From:   from,
			To:     to,
			Output: reportOutput,
			Writer: cmd.OutOrStdout(),
		})
	},
}

func reportPeriod(now time.Time) (time.Time, time.Time, error) {
	to := now
	if reportTo != "" {
		t, err := time.Parse(time.RFC3339, reportTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = t
	}
	from := to.Add(-reportShift)
	if reportFrom != "" {
		t, err := time.Parse(time.RFC3339, reportFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		from = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return from, to, nil
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "Period start (RFC3339); defaults to --to minus --shift")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Period end (RFC3339); defaults to now")
	reportCmd.Flags().DurationVar(&reportShift, "shift", 8*time.Hour, "Shift length used when --from is omitted")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default stdout)")
}

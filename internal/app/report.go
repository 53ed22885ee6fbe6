package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"GasMonitorAPI/internal/report"
	"GasMonitorAPI/internal/repository"
)

// ReportOptions select the device and period of a shift report.
type ReportOptions struct {
	Device string
	From   time.Time
	To     time.Time
	// Output is a file path; "-" or empty writes to Writer.
	Output string
	Writer io.Writer
}

// Report renders a PDF from persisted history.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := a.buildRegistry(ctx, db)
	if err != nil {
		return err
	}
	device, err := resolveDevice(reg, opts.Device)
	if err != nil {
		return err
	}

	thresholds, err := a.Config.Thresholds()
	if err != nil {
		return err
	}
	builder := &report.Builder{
		Stats:      repository.NewReadingRepository(db.DB),
		Peaks:      repository.NewAggregateRepository(db.DB),
		Alerts:     repository.NewAlertRepository(db.DB),
		Thresholds: thresholds,
	}

	data, err := builder.Build(ctx, device, opts.From, opts.To)
	if err != nil {
		return err
	}

	w := opts.Writer
	if opts.Output != "" && opts.Output != "-" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if w == nil {
		w = os.Stdout
	}

	if err := report.Render(w, data); err != nil {
		return err
	}
	if opts.Output != "" && opts.Output != "-" {
		a.Log.Info("Report for %s written to %s", device.ExternalIdentifier, opts.Output)
	}
	return nil
}

package sink

import (
	"context"
	"fmt"
	"time"

	"GasMonitorAPI/internal/logger"
)

// AlertPruner deletes persisted alerts older than a cutoff.
type AlertPruner interface {
	DeleteOld(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention removes alerts older than Keep. Sweep matches scheduler.TickFunc.
type Retention struct {
	pruner AlertPruner
	keep   time.Duration
	log    *logger.Logger
}

func NewRetention(p AlertPruner, keep time.Duration, log *logger.Logger) *Retention {
	if log == nil {
		log = logger.Nop()
	}
	return &Retention{pruner: p, keep: keep, log: log.With("retention")}
}

func (r *Retention) Sweep(ctx context.Context, now time.Time) error {
	if r.keep <= 0 {
		return nil
	}
	cutoff := now.Add(-r.keep)
	n, err := r.pruner.DeleteOld(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("alert retention sweep: %w", err)
	}
	if n > 0 {
		r.log.Info("Removed %d alerts triggered before %s", n, cutoff.Format(time.RFC3339))
	}
	return nil
}

package accessor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
)

// Prime prefetches the date range into the observation store so the first
// interactive request does not pay for a large backfill. Intended for
// startup, covering the rental dataset's date range. Sequential on purpose:
// the provider meters by request and a burst of month-chunks is already one
// request each.
func (a *Accessor) Prime(ctx context.Context, from, to time.Time) error {
	start := time.Now()
	observability.PrimingTotal.Inc()

	missing, err := a.store.Missing(ctx, models.Day(from), models.Day(to))
	if err == nil && len(missing) == 0 {
		a.logger.Info("cache already primed",
			zap.String("from", models.Day(from).Format(models.DateFormat)),
			zap.String("to", models.Day(to).Format(models.DateFormat)))
		return nil
	}

	a.logger.Info("priming observation cache",
		zap.String("from", models.Day(from).Format(models.DateFormat)),
		zap.String("to", models.Day(to).Format(models.DateFormat)),
		zap.Int("missing_dates", len(missing)))

	_, err = a.GetHistorical(ctx, from, to)
	duration := time.Since(start)
	observability.PrimingDurationSeconds.Observe(duration.Seconds())
	if err != nil {
		observability.PrimingErrorsTotal.Inc()
		return err
	}
	a.logger.Info("cache priming complete", zap.Duration("duration", duration))
	return nil
}

// Package accessor implements the weather data accessor: cached historical
// retrieval backed by the observation store, fresh forecasts straight from
// the provider.
package accessor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kmorozova/bike-demand-service/internal/health"
	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
	"github.com/kmorozova/bike-demand-service/internal/provider"
	"github.com/kmorozova/bike-demand-service/internal/store"
)

// Accessor serves weather observations with a store-aside pattern: cached
// dates never touch the network, missing spans are fetched in batch and
// appended to the store.
type Accessor struct {
	provider provider.WeatherProvider
	store    store.Store
	tracker  *health.Tracker
	logger   *zap.Logger
}

// New returns an Accessor over the given provider and store. tracker may be
// nil when provider outcome tracking is not needed (tests).
func New(p provider.WeatherProvider, s store.Store, tracker *health.Tracker, logger *zap.Logger) *Accessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accessor{provider: p, store: s, tracker: tracker, logger: logger}
}

// GetHistorical returns one observation per date in [from, to], in date
// order. Cached dates are answered from the store; contiguous missing spans
// are fetched from the provider in batch and appended to the store before
// the range is assembled.
func (a *Accessor) GetHistorical(ctx context.Context, from, to time.Time) ([]models.Observation, error) {
	from, to = models.Day(from), models.Day(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: range start %s after end %s", provider.ErrRange, from.Format(models.DateFormat), to.Format(models.DateFormat))
	}

	missing, err := a.store.Missing(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("check cache for %s..%s: %w", from.Format(models.DateFormat), to.Format(models.DateFormat), err)
	}

	total := int(to.Sub(from).Hours()/24) + 1
	observability.CacheHitsTotal.WithLabelValues("file").Add(float64(total - len(missing)))
	observability.CacheMissesTotal.Add(float64(len(missing)))

	if len(missing) > 0 {
		a.logger.Debug("cache miss, fetching provider",
			zap.Int("missing_dates", len(missing)),
			zap.String("from", from.Format(models.DateFormat)),
			zap.String("to", to.Format(models.DateFormat)))
		if err := a.fetchSpans(ctx, missing); err != nil {
			return nil, err
		}
	}

	return a.collect(ctx, from, to)
}

// GetForecast returns a forward-looking observation for date, always fetched
// fresh. Forecasts are mutable by nature and are never cached.
func (a *Accessor) GetForecast(ctx context.Context, date time.Time) (models.Observation, error) {
	obs, err := a.provider.GetForecast(ctx, date)
	a.recordOutcome(err)
	if err != nil {
		return models.Observation{}, fmt.Errorf("fetch forecast for %s: %w", models.Day(date).Format(models.DateFormat), err)
	}
	a.logger.Debug("forecast served", zap.String("date", models.Day(date).Format(models.DateFormat)))
	return obs, nil
}

// fetchSpans groups the missing dates into contiguous spans and fetches each
// span with one provider call, appending results to the store.
func (a *Accessor) fetchSpans(ctx context.Context, missing []time.Time) error {
	for _, span := range contiguousSpans(missing) {
		obs, err := a.provider.GetHistorical(ctx, span.from, span.to)
		a.recordOutcome(err)
		if err != nil {
			return fmt.Errorf("fetch history %s..%s: %w", span.from.Format(models.DateFormat), span.to.Format(models.DateFormat), err)
		}
		if err := a.store.Append(ctx, obs); err != nil {
			return fmt.Errorf("append fetched observations: %w", err)
		}
	}
	return nil
}

func (a *Accessor) collect(ctx context.Context, from, to time.Time) ([]models.Observation, error) {
	var out []models.Observation
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		obs, ok, err := a.store.Get(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("read cached observation %s: %w", d.Format(models.DateFormat), err)
		}
		if !ok {
			// provider accepted the span but skipped this date
			return nil, fmt.Errorf("%w: no observation for %s after fetch", provider.ErrProvider, d.Format(models.DateFormat))
		}
		out = append(out, obs)
	}
	return out, nil
}

func (a *Accessor) recordOutcome(err error) {
	if a.tracker == nil {
		return
	}
	if err != nil {
		a.tracker.RecordProviderError()
	} else {
		a.tracker.RecordProviderSuccess()
	}
}

type span struct {
	from, to time.Time
}

// contiguousSpans collapses an ascending date list into runs of consecutive
// days so each run costs one provider call.
func contiguousSpans(dates []time.Time) []span {
	if len(dates) == 0 {
		return nil
	}
	spans := []span{{from: dates[0], to: dates[0]}}
	for _, d := range dates[1:] {
		last := &spans[len(spans)-1]
		if d.Sub(last.to) == 24*time.Hour {
			last.to = d
			continue
		}
		spans = append(spans, span{from: d, to: d})
	}
	return spans
}

// Package model implements the demand model: the rental/weather join,
// feature derivation and the regression estimator behind predictions.
package model

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kmorozova/bike-demand-service/internal/dataset"
	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
)

// WeatherSource provides historical observations for the training join.
// Implemented by the weather accessor.
type WeatherSource interface {
	GetHistorical(ctx context.Context, from, to time.Time) ([]models.Observation, error)
}

// DemandModel owns the trained estimator. Built once at startup and held in
// memory for the process lifetime; never persisted.
type DemandModel struct {
	source      WeatherSource
	datasetPath string
	lambda      float64
	logger      *zap.Logger

	mu  sync.RWMutex
	est *ridge
}

// New returns an unfitted DemandModel. Call Build before Predict.
func New(source WeatherSource, datasetPath string, lambda float64, logger *zap.Logger) *DemandModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DemandModel{
		source:      source,
		datasetPath: datasetPath,
		lambda:      lambda,
		logger:      logger,
	}
}

// Build loads the rental dataset, fetches observations covering its date
// range, joins the two on date and fits the estimator. Rental rows whose
// date has no observation after the fetch are dropped and counted; a join
// that yields zero usable rows fails with ErrData.
func (m *DemandModel) Build(ctx context.Context) error {
	start := time.Now()

	records, err := dataset.Load(m.datasetPath)
	if err != nil {
		return fmt.Errorf("load rental dataset: %w", err)
	}
	from, to, ok := dataset.DateRange(records)
	if !ok {
		return fmt.Errorf("%w: rental dataset has no dated rows", ErrData)
	}

	obs, err := m.source.GetHistorical(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch weather for training range: %w", err)
	}
	byDate := make(map[time.Time]models.Observation, len(obs))
	for _, o := range obs {
		byDate[o.Day()] = o
	}

	rows, targets, dropped, err := join(records, byDate)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: join of %d rental rows and %d observations produced nothing", ErrData, len(records), len(obs))
	}
	if dropped > 0 {
		m.logger.Warn("dropped rental rows without matching observation",
			zap.Int("dropped", dropped), zap.Int("kept", len(rows)))
	}

	est := newRidge(m.lambda)
	if err := est.fit(rows, targets); err != nil {
		return fmt.Errorf("fit estimator: %w", err)
	}

	m.mu.Lock()
	m.est = est
	m.mu.Unlock()

	duration := time.Since(start)
	observability.TrainingDurationSeconds.Observe(duration.Seconds())
	observability.TrainingRows.Set(float64(len(rows)))
	m.logger.Info("demand model fitted",
		zap.Int("rows", len(rows)),
		zap.Int("dropped", dropped),
		zap.String("from", from.Format(models.DateFormat)),
		zap.String("to", to.Format(models.DateFormat)),
		zap.Duration("duration", duration))
	return nil
}

// join derives one training row per rental record that has a matching
// observation, using the observation's weather so the training inputs come
// from the same source the predict path uses.
func join(records []models.RentalRecord, byDate map[time.Time]models.Observation) (rows [][]float64, targets []float64, dropped int, err error) {
	for _, rec := range records {
		obs, ok := byDate[models.Day(rec.Date)]
		if !ok {
			dropped++
			continue
		}
		cond := models.FromObservation(obs, rec.Hour, rec.Holiday, rec.FunctioningDay)
		v, err := Vector(cond)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("derive features for %s hour %d: %w", models.Day(rec.Date).Format(models.DateFormat), rec.Hour, err)
		}
		rows = append(rows, v)
		targets = append(targets, rec.Count)
	}
	return rows, targets, dropped, nil
}

// Predict returns the predicted rental count for one candidate. The
// candidate goes through the same Vector transform as every training row.
// Predictions are clamped at zero; demand cannot be negative.
func (m *DemandModel) Predict(cond models.Conditions) (float64, error) {
	m.mu.RLock()
	est := m.est
	m.mu.RUnlock()
	if est == nil {
		return 0, ErrNotFitted
	}

	v, err := Vector(cond)
	if err != nil {
		return 0, err
	}
	yhat, err := est.predict(v)
	if err != nil {
		return 0, err
	}
	return math.Max(0, yhat), nil
}

// PredictDay returns hourly predictions for one day under the given
// observation and calendar flags.
func (m *DemandModel) PredictDay(date time.Time, obs models.Observation, holiday, functioning bool) ([]models.HourlyPrediction, error) {
	out := make([]models.HourlyPrediction, 0, 24)
	for hour := 0; hour < 24; hour++ {
		cond := models.FromObservation(obs, hour, holiday, functioning)
		cond.Date = models.Day(date)
		count, err := m.Predict(cond)
		if err != nil {
			return nil, err
		}
		out = append(out, models.HourlyPrediction{Hour: hour, Count: math.Round(count)})
	}
	return out, nil
}

// Fitted reports whether Build has completed. Used by the health handler.
func (m *DemandModel) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.est != nil
}

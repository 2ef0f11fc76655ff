// Package store persists fetched weather observations. The flat cache file
// is the only state this service owns; it is read at startup and appended
// as new historical observations arrive, never rewritten.
package store

import (
	"context"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// Store is the observation repository injected into the weather accessor.
// Observations are immutable: Append ignores dates that are already present.
type Store interface {
	// Get returns the observation for a date if cached.
	Get(ctx context.Context, date time.Time) (models.Observation, bool, error)
	// Missing returns the dates in [from, to] with no cached observation,
	// in ascending order.
	Missing(ctx context.Context, from, to time.Time) ([]time.Time, error)
	// Append persists newly fetched observations.
	Append(ctx context.Context, obs []models.Observation) error
	// Bounds returns the earliest and latest cached dates, ok=false when empty.
	Bounds() (min, max time.Time, ok bool)
}

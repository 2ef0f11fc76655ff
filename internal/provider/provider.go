package provider

import (
	"context"
	"errors"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// WeatherProvider abstracts the external weather HTTP service. GetHistorical
// returns one observation per day in [from, to]; GetForecast returns a
// forward-looking observation for a single date and is never cached.
type WeatherProvider interface {
	GetHistorical(ctx context.Context, from, to time.Time) ([]models.Observation, error)
	GetForecast(ctx context.Context, date time.Time) (models.Observation, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	// ErrProvider covers transport failures and malformed payloads from the
	// weather API. Terminal for the triggering request; callers do not retry.
	ErrProvider = errors.New("weather provider failure")

	// ErrRange is returned when a requested date lies outside the provider's
	// supported retrieval window.
	ErrRange = errors.New("date outside provider retrieval window")

	// ErrInvalidAPIKey is returned when the provider rejects the configured key.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

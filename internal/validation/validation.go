// Package validation checks interactive inputs before they reach the
// accessor or the demand model, so malformed requests fail with 400s
// instead of turning into provider calls.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// ErrDateEmpty is returned when the date input is empty or whitespace-only.
var ErrDateEmpty = errors.New("date is required")

// ErrDateFormat is returned when the date is not YYYY-MM-DD.
var ErrDateFormat = errors.New("date must be YYYY-MM-DD")

// ErrHourRange is returned when the hour is outside 0..23.
var ErrHourRange = errors.New("hour must be between 0 and 23")

// ErrNotNumeric is returned when a weather override is not a number.
var ErrNotNumeric = errors.New("value is not numeric")

// ParseDate trims and parses a YYYY-MM-DD input into a midnight-UTC date.
func ParseDate(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, ErrDateEmpty
	}
	d, err := time.ParseInLocation(models.DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: got %q", ErrDateFormat, s)
	}
	return models.Day(d), nil
}

// ParseHour parses an hour input; empty defaults to defaultHour.
func ParseHour(input string, defaultHour int) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return defaultHour, nil
	}
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: got %q", ErrHourRange, s)
	}
	return h, nil
}

// ParseOverride parses an optional weather override. Empty input means "no
// override" and returns nil; anything non-empty must be numeric.
func ParseOverride(field, input string) (*float64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrNotNumeric, field, s)
	}
	return &v, nil
}

// ParseFlag parses a checkbox/boolean input; empty means false.
func ParseFlag(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

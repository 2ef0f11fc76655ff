package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

var (
	// ErrData is returned when the training join yields no usable rows.
	ErrData = errors.New("no usable training data")

	// ErrNotFitted is returned when Predict is called before Build.
	ErrNotFitted = errors.New("model not fitted")

	// ErrFeature is returned when a candidate is missing a required
	// attribute. Missing values are never substituted with defaults.
	ErrFeature = errors.New("candidate missing required feature")
)

// FeatureCount is the fixed width of the estimator input: 8 numeric
// attributes, 4 season indicators, 7 day-of-week indicators and 2 calendar
// flags. Train and predict both go through Vector, so the layout can never
// diverge between the two paths.
const FeatureCount = 8 + 4 + 7 + 2

var seasonIndex = map[time.Month]int{
	time.December: 0, time.January: 0, time.February: 0, // winter
	time.March: 1, time.April: 1, time.May: 1, // spring
	time.June: 2, time.July: 2, time.August: 2, // summer
	time.September: 3, time.October: 3, time.November: 3, // autumn
}

// Vector derives the feature vector for one candidate. The season and
// day-of-week indicators derive from the date; the weather attributes must
// all be present or the whole candidate is rejected with ErrFeature.
func Vector(c models.Conditions) ([]float64, error) {
	if c.Date.IsZero() {
		return nil, fmt.Errorf("%w: date", ErrFeature)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrFeature, c.Hour)
	}

	required := []struct {
		name string
		val  *float64
	}{
		{"temperature", c.Temperature},
		{"humidity", c.Humidity},
		{"windSpeed", c.WindSpeed},
		{"precipitation", c.Precipitation},
		{"solarRadiation", c.SolarRadiation},
		{"visibility", c.Visibility},
		{"dewPoint", c.DewPoint},
	}
	for _, f := range required {
		if f.val == nil {
			return nil, fmt.Errorf("%w: %s", ErrFeature, f.name)
		}
	}

	v := make([]float64, 0, FeatureCount)
	v = append(v,
		float64(c.Hour),
		*c.Temperature,
		*c.Humidity,
		*c.WindSpeed,
		*c.Precipitation,
		*c.SolarRadiation,
		*c.Visibility,
		*c.DewPoint,
	)

	season := make([]float64, 4)
	season[seasonIndex[c.Date.Month()]] = 1
	v = append(v, season...)

	dow := make([]float64, 7)
	dow[int(c.Date.Weekday())] = 1
	v = append(v, dow...)

	v = append(v, boolFeature(c.Holiday), boolFeature(c.FunctioningDay))
	return v, nil
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

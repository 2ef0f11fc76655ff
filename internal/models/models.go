package models

import "time"

// DateFormat is the canonical day key used across the cache file, the
// provider client and the HTTP surface.
const DateFormat = "2006-01-02"

// Observation is one day's recorded (or forecast) weather for the fixed
// city. Immutable once fetched; historical observations are persisted in
// the append-only cache file keyed by Date.
type Observation struct {
	Date           time.Time `json:"date"`
	Temperature    float64   `json:"temperature"`    // °C
	Humidity       float64   `json:"humidity"`       // %
	WindSpeed      float64   `json:"windSpeed"`      // km/h
	Precipitation  float64   `json:"precipitation"`  // mm
	SolarRadiation float64   `json:"solarRadiation"` // MJ/m²
	Visibility     float64   `json:"visibility"`     // m
	DewPoint       float64   `json:"dewPoint"`       // °C
}

// Day returns the observation date truncated to midnight UTC.
func (o Observation) Day() time.Time {
	return Day(o.Date)
}

// Day truncates t to midnight UTC. All date keys in the system go through
// this so cache lookups and joins never miss on a time-of-day component.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RentalRecord is one historical hourly bicycle-rental count with its
// weather and calendar context, loaded read-only from the static dataset.
type RentalRecord struct {
	Date           time.Time
	Hour           int
	Count          float64
	Temperature    float64
	Humidity       float64
	WindSpeed      float64
	Precipitation  float64
	SolarRadiation float64
	Visibility     float64
	DewPoint       float64
	Season         string
	Holiday        bool
	FunctioningDay bool
}

// Conditions is a candidate input for a single prediction: a date, an hour
// and the weather attributes the estimator was trained on. Weather fields
// are pointers so a missing attribute is distinguishable from zero; the
// feature transform rejects nil fields rather than substituting defaults.
type Conditions struct {
	Date           time.Time `json:"date"`
	Hour           int       `json:"hour"`
	Temperature    *float64  `json:"temperature"`
	Humidity       *float64  `json:"humidity"`
	WindSpeed      *float64  `json:"windSpeed"`
	Precipitation  *float64  `json:"precipitation"`
	SolarRadiation *float64  `json:"solarRadiation"`
	Visibility     *float64  `json:"visibility"`
	DewPoint       *float64  `json:"dewPoint"`
	Holiday        bool      `json:"holiday"`
	FunctioningDay bool      `json:"functioningDay"`
}

// FromObservation fills the weather attributes of a Conditions value from
// an Observation, keeping date, hour and calendar flags as provided.
func FromObservation(obs Observation, hour int, holiday, functioning bool) Conditions {
	o := obs // copy so the pointers below do not alias caller state
	return Conditions{
		Date:           Day(o.Date),
		Hour:           hour,
		Temperature:    &o.Temperature,
		Humidity:       &o.Humidity,
		WindSpeed:      &o.WindSpeed,
		Precipitation:  &o.Precipitation,
		SolarRadiation: &o.SolarRadiation,
		Visibility:     &o.Visibility,
		DewPoint:       &o.DewPoint,
		Holiday:        holiday,
		FunctioningDay: functioning,
	}
}

// HourlyPrediction is one hour's predicted rental count for a day.
type HourlyPrediction struct {
	Hour  int     `json:"hour"`
	Count float64 `json:"count"`
}

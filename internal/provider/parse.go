package provider

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// uvToSolarMJ converts the provider's UV index to solar radiation in MJ/m².
// Approximation calibrated against the rental dataset's radiation column.
const uvToSolarMJ = 3.52 / 6

// snowWaterRatio scales precipMM on sub-zero days. The provider does not
// report precipitation type, so freezing-day precipitation is treated as
// snowfall at a tenth of the liquid depth.
const snowWaterRatio = 0.1

// parseObservations validates the hourly payload and aggregates it to one
// daily observation per reported date: means for the continuous attributes,
// a sum for precipitation. Any missing or non-numeric field fails the whole
// payload with ErrProvider.
func parseObservations(payload wwoResponse) ([]models.Observation, error) {
	if len(payload.Data.Weather) == 0 {
		return nil, fmt.Errorf("%w: payload contains no weather days", ErrProvider)
	}

	out := make([]models.Observation, 0, len(payload.Data.Weather))
	for _, day := range payload.Data.Weather {
		date, err := time.ParseInLocation(models.DateFormat, day.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q: %v", ErrProvider, day.Date, err)
		}
		if len(day.Hourly) == 0 {
			return nil, fmt.Errorf("%w: no hourly entries for %s", ErrProvider, day.Date)
		}

		var temp, hum, wind, vis, dew, uv, precip float64
		for _, h := range day.Hourly {
			vals, err := parseHourly(day.Date, h)
			if err != nil {
				return nil, err
			}
			temp += vals.temp
			hum += vals.humidity
			wind += vals.wind
			vis += vals.visibility
			dew += vals.dew
			uv += vals.uv
			precip += vals.precip
		}
		n := float64(len(day.Hourly))

		obs := models.Observation{
			Date:           date,
			Temperature:    temp / n,
			Humidity:       hum / n,
			WindSpeed:      wind / n,
			SolarRadiation: round2(uv / n * uvToSolarMJ),
			Visibility:     vis / n * 100, // km to 10m units
			DewPoint:       dew / n,
			Precipitation:  precip,
		}
		if obs.Temperature < 0 {
			obs.Precipitation = round2(obs.Precipitation * snowWaterRatio)
		}
		out = append(out, obs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type hourlyValues struct {
	temp, humidity, wind, visibility, dew, uv, precip float64
}

func parseHourly(date string, h wwoHourly) (hourlyValues, error) {
	var v hourlyValues
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"tempC", h.TempC, &v.temp},
		{"humidity", h.Humidity, &v.humidity},
		{"windspeedKmph", h.WindspeedKmph, &v.wind},
		{"precipMM", h.PrecipMM, &v.precip},
		{"visibility", h.Visibility, &v.visibility},
		{"DewPointC", h.DewPointC, &v.dew},
		{"uvIndex", h.UVIndex, &v.uv},
	}
	for _, f := range fields {
		if f.raw == "" {
			return v, fmt.Errorf("%w: %s missing %s", ErrProvider, date, f.name)
		}
		parsed, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return v, fmt.Errorf("%w: %s field %s=%q not numeric", ErrProvider, date, f.name, f.raw)
		}
		*f.dst = parsed
	}
	return v, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

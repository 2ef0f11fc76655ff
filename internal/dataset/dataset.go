// Package dataset loads the static historical rental dataset. The file is
// read wholesale at startup and never mutated.
package dataset

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

// dateLayout matches the Seoul dataset's day/month/year column.
const dateLayout = "02/01/2006"

// snowWaterRatio converts the snowfall column (cm) into the combined
// precipitation feature, mirroring the provider-side conversion.
const snowWaterRatio = 0.1

// columns maps logical fields to dataset header prefixes. Headers carry
// units ("Temperature(°C)"), so matching is by lowercase prefix.
var columns = []struct {
	field  string
	prefix string
}{
	{"date", "date"},
	{"count", "rented bike count"},
	{"hour", "hour"},
	{"temperature", "temperature"},
	{"humidity", "humidity"},
	{"windspeed", "wind speed"},
	{"visibility", "visibility"},
	{"dewpoint", "dew point"},
	{"solar", "solar radiation"},
	{"rainfall", "rainfall"},
	{"snowfall", "snowfall"},
	{"season", "seasons"},
	{"holiday", "holiday"},
	{"functioning", "functioning day"},
}

// Load reads the rental dataset CSV at path into RentalRecords, in file
// order. Header names are matched by prefix so unit suffixes do not matter;
// a missing column or malformed row fails the load.
func Load(path string) ([]models.RentalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rental dataset: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("parse rental dataset %s: %w", path, df.Err)
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("rental dataset %s is empty", path)
	}

	idx, err := resolveColumns(df.Names())
	if err != nil {
		return nil, fmt.Errorf("rental dataset %s: %w", path, err)
	}

	records := make([]models.RentalRecord, 0, df.Nrow())
	for r := 0; r < df.Nrow(); r++ {
		rec, err := parseRecord(df, idx, r)
		if err != nil {
			return nil, fmt.Errorf("rental dataset %s row %d: %w", path, r+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DateRange returns the earliest and latest dates across the records.
func DateRange(records []models.RentalRecord) (from, to time.Time, ok bool) {
	for _, rec := range records {
		d := models.Day(rec.Date)
		if from.IsZero() || d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return from, to, !from.IsZero()
}

func resolveColumns(names []string) (map[string]int, error) {
	idx := make(map[string]int, len(columns))
	for _, col := range columns {
		found := -1
		for i, name := range names {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), col.prefix) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("missing column %q", col.prefix)
		}
		idx[col.field] = found
	}
	return idx, nil
}

func parseRecord(df dataframe.DataFrame, idx map[string]int, r int) (models.RentalRecord, error) {
	cell := func(field string) string {
		return strings.TrimSpace(df.Elem(r, idx[field]).String())
	}
	num := func(field string) (float64, error) {
		v, err := strconv.ParseFloat(cell(field), 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %q not numeric", field, cell(field))
		}
		return v, nil
	}

	date, err := time.ParseInLocation(dateLayout, cell("date"), time.UTC)
	if err != nil {
		return models.RentalRecord{}, fmt.Errorf("bad date %q: %w", cell("date"), err)
	}

	hour, err := strconv.Atoi(cell("hour"))
	if err != nil || hour < 0 || hour > 23 {
		return models.RentalRecord{}, fmt.Errorf("bad hour %q", cell("hour"))
	}

	var rec models.RentalRecord
	rec.Date = date
	rec.Hour = hour

	numeric := []struct {
		field string
		dst   *float64
	}{
		{"count", &rec.Count},
		{"temperature", &rec.Temperature},
		{"humidity", &rec.Humidity},
		{"windspeed", &rec.WindSpeed},
		{"visibility", &rec.Visibility},
		{"dewpoint", &rec.DewPoint},
		{"solar", &rec.SolarRadiation},
	}
	for _, n := range numeric {
		v, err := num(n.field)
		if err != nil {
			return models.RentalRecord{}, err
		}
		*n.dst = v
	}

	rain, err := num("rainfall")
	if err != nil {
		return models.RentalRecord{}, err
	}
	snow, err := num("snowfall")
	if err != nil {
		return models.RentalRecord{}, err
	}
	rec.Precipitation = rain + snow*snowWaterRatio

	rec.Season = cell("season")
	rec.Holiday = strings.EqualFold(cell("holiday"), "Holiday")
	rec.FunctioningDay = strings.EqualFold(cell("functioning"), "Yes")
	return rec, nil
}

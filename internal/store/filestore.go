package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
)

var fileHeader = []string{
	"Date", "Temperature", "Humidity", "WindSpeed",
	"Precipitation", "SolarRadiation", "Visibility", "DewPoint",
}

// FileStore keeps observations in a CSV flat file with an in-memory index.
// The file is loaded once at open and only ever appended to afterwards.
// Safe for concurrent use.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	file  *os.File
	w     *csv.Writer
	index map[time.Time]models.Observation
}

// OpenFileStore loads the cache file at path (creating it with a header row
// if absent) and returns a store ready for appends.
func OpenFileStore(path string) (*FileStore, error) {
	index, err := loadIndex(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}

	s := &FileStore{
		path:  path,
		file:  f,
		w:     csv.NewWriter(f),
		index: index,
	}

	if len(index) == 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat cache file: %w", err)
		}
		if info.Size() == 0 {
			if err := s.w.Write(fileHeader); err != nil {
				f.Close()
				return nil, fmt.Errorf("write cache header: %w", err)
			}
			s.w.Flush()
			if err := s.w.Error(); err != nil {
				f.Close()
				return nil, fmt.Errorf("flush cache header: %w", err)
			}
		}
	}
	return s, nil
}

func loadIndex(path string) (map[time.Time]models.Observation, error) {
	index := make(map[time.Time]models.Observation)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(fileHeader)

	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse cache file %s: %w", path, err)
		}
		if first {
			first = false
			if rec[0] == fileHeader[0] {
				continue
			}
		}
		obs, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("cache file %s: %w", path, err)
		}
		// first write wins; observations are immutable
		if _, exists := index[obs.Day()]; !exists {
			index[obs.Day()] = obs
		}
	}
	return index, nil
}

func parseRow(rec []string) (models.Observation, error) {
	date, err := time.ParseInLocation(models.DateFormat, rec[0], time.UTC)
	if err != nil {
		return models.Observation{}, fmt.Errorf("bad date %q: %w", rec[0], err)
	}
	vals := make([]float64, len(rec)-1)
	for i, raw := range rec[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Observation{}, fmt.Errorf("row %s: field %s=%q not numeric", rec[0], fileHeader[i+1], raw)
		}
		vals[i] = v
	}
	return models.Observation{
		Date:           date,
		Temperature:    vals[0],
		Humidity:       vals[1],
		WindSpeed:      vals[2],
		Precipitation:  vals[3],
		SolarRadiation: vals[4],
		Visibility:     vals[5],
		DewPoint:       vals[6],
	}, nil
}

// Get implements Store.Get.
func (s *FileStore) Get(ctx context.Context, date time.Time) (models.Observation, bool, error) {
	if ctx.Err() != nil {
		return models.Observation{}, false, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.index[models.Day(date)]
	return obs, ok, nil
}

// Missing implements Store.Missing.
func (s *FileStore) Missing(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []time.Time
	for d := models.Day(from); !d.After(models.Day(to)); d = d.AddDate(0, 0, 1) {
		if _, ok := s.index[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

// Append implements Store.Append. Already-cached dates are skipped; new rows
// are written to the file and indexed atomically under the store lock.
func (s *FileStore) Append(ctx context.Context, obs []models.Observation) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := 0
	for _, o := range obs {
		day := o.Day()
		if _, exists := s.index[day]; exists {
			continue
		}
		if err := s.w.Write(formatRow(o)); err != nil {
			return fmt.Errorf("append cache row %s: %w", day.Format(models.DateFormat), err)
		}
		s.index[day] = o
		appended++
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush cache file: %w", err)
	}
	observability.CacheAppendsTotal.Add(float64(appended))
	return nil
}

func formatRow(o models.Observation) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		o.Day().Format(models.DateFormat),
		f(o.Temperature), f(o.Humidity), f(o.WindSpeed),
		f(o.Precipitation), f(o.SolarRadiation), f(o.Visibility), f(o.DewPoint),
	}
}

// Bounds implements Store.Bounds.
func (s *FileStore) Bounds() (time.Time, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.index) == 0 {
		return time.Time{}, time.Time{}, false
	}
	var min, max time.Time
	for d := range s.index {
		if min.IsZero() || d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, true
}

// Len returns the number of cached observations.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Close flushes and closes the underlying file. Call during shutdown.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

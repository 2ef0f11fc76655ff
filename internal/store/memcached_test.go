package store

import (
	"context"
	"testing"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

type fakeInner struct {
	data     map[time.Time]models.Observation
	getCalls int
	appends  int
}

func newFakeInner() *fakeInner {
	return &fakeInner{data: make(map[time.Time]models.Observation)}
}

func (f *fakeInner) Get(ctx context.Context, date time.Time) (models.Observation, bool, error) {
	f.getCalls++
	o, ok := f.data[models.Day(date)]
	return o, ok, nil
}

func (f *fakeInner) Missing(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var missing []time.Time
	for d := models.Day(from); !d.After(models.Day(to)); d = d.AddDate(0, 0, 1) {
		if _, ok := f.data[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

func (f *fakeInner) Append(ctx context.Context, obs []models.Observation) error {
	f.appends++
	for _, o := range obs {
		f.data[o.Day()] = o
	}
	return nil
}

func (f *fakeInner) Bounds() (time.Time, time.Time, bool) {
	var min, max time.Time
	for d := range f.data {
		if min.IsZero() || d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, !min.IsZero()
}

// unreachableStore returns a MemcachedStore whose client cannot connect, so
// every memcached operation fails and the inner store must answer.
func unreachableStore(inner Store) *MemcachedStore {
	return NewMemcachedStore(inner, "127.0.0.1:1", 50*time.Millisecond, 1, time.Hour)
}

// TestMemcachedStore_FallsBackToInner verifies an unreachable memcached tier
// degrades to inner lookups instead of failing reads.
func TestMemcachedStore_FallsBackToInner(t *testing.T) {
	inner := newFakeInner()
	want := obsOn("2023-06-03", 12.5)
	inner.data[want.Day()] = want
	s := unreachableStore(inner)

	got, ok, err := s.Get(context.Background(), want.Date)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want inner hit")
	}
	if got.Temperature != want.Temperature {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if inner.getCalls != 1 {
		t.Errorf("inner Get calls = %d, want 1", inner.getCalls)
	}
}

// TestMemcachedStore_AppendReachesInner verifies the inner store stays the
// source of truth even when memcached writes fail.
func TestMemcachedStore_AppendReachesInner(t *testing.T) {
	inner := newFakeInner()
	s := unreachableStore(inner)

	obs := obsOn("2023-06-03", 12.5)
	if err := s.Append(context.Background(), []models.Observation{obs}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if inner.appends != 1 {
		t.Errorf("inner Append calls = %d, want 1", inner.appends)
	}
	if _, ok := inner.data[obs.Day()]; !ok {
		t.Error("observation not persisted to inner store")
	}
}

// TestMemcachedStore_MissingAndBoundsDelegate verifies gap detection and
// bounds come from the inner store, never from memcached.
func TestMemcachedStore_MissingAndBoundsDelegate(t *testing.T) {
	inner := newFakeInner()
	inner.data[obsOn("2023-06-03", 12).Day()] = obsOn("2023-06-03", 12)
	inner.data[obsOn("2023-06-05", 14).Day()] = obsOn("2023-06-05", 14)
	s := unreachableStore(inner)

	from := obsOn("2023-06-03", 0).Date
	to := obsOn("2023-06-05", 0).Date
	missing, err := s.Missing(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Missing() error = %v", err)
	}
	if len(missing) != 1 || missing[0].Format(models.DateFormat) != "2023-06-04" {
		t.Errorf("Missing() = %v, want [2023-06-04]", missing)
	}

	min, max, ok := s.Bounds()
	if !ok {
		t.Fatal("Bounds() ok = false, want true")
	}
	if min.Format(models.DateFormat) != "2023-06-03" || max.Format(models.DateFormat) != "2023-06-05" {
		t.Errorf("Bounds() = %s..%s, want 2023-06-03..2023-06-05", min.Format(models.DateFormat), max.Format(models.DateFormat))
	}
}

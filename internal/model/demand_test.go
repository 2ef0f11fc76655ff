package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
)

type fakeSource struct {
	obs []models.Observation
	err error
}

func (f *fakeSource) GetHistorical(ctx context.Context, from, to time.Time) ([]models.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.obs, nil
}

const header = "Date,Rented Bike Count,Hour,Temperature(C),Humidity(%),Wind speed (m/s),Visibility (10m),Dew point temperature(C),Solar Radiation (MJ/m2),Rainfall(mm),Snowfall (cm),Seasons,Holiday,Functioning Day"

// writeRentals writes a dataset where the count is 50*temperature for the
// observation temperature assigned to each day, a relation the ridge
// estimator can recover almost exactly.
func writeRentals(t *testing.T, days int) (path string, obs []models.Observation) {
	t.Helper()
	var rows []string
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < days; d++ {
		date := base.AddDate(0, 0, d)
		temp := 10 + float64(d)
		obs = append(obs, models.Observation{
			Date:           date,
			Temperature:    temp,
			Humidity:       60,
			WindSpeed:      3,
			Precipitation:  0,
			SolarRadiation: 1,
			Visibility:     2000,
			DewPoint:       12,
		})
		for hour := 0; hour < 4; hour++ {
			rows = append(rows, fmt.Sprintf("%s,%d,%d,%.1f,60,3.0,2000,12.0,1.0,0.0,0.0,Summer,No Holiday,Yes",
				date.Format("02/01/2006"), int(50*temp), hour, temp))
		}
	}
	path = filepath.Join(t.TempDir(), "rentals.csv")
	if err := os.WriteFile(path, []byte(header+"\n"+strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path, obs
}

// TestBuildAndPredict verifies the end-to-end pipeline: a dataset whose
// demand is linear in temperature trains an estimator whose prediction for
// a seen day lands near the observed count.
func TestBuildAndPredict(t *testing.T) {
	path, obs := writeRentals(t, 10)
	m := New(&fakeSource{obs: obs}, path, 1e-6, nil)

	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	cond := models.FromObservation(obs[5], 2, false, true)
	got, err := m.Predict(cond)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := 50 * obs[5].Temperature
	if math.Abs(got-want) > 25 {
		t.Errorf("Predict() = %v, want within 25 of %v", got, want)
	}
}

// TestPredict_Deterministic verifies two predictions after one Build are
// identical for the same candidate.
func TestPredict_Deterministic(t *testing.T) {
	path, obs := writeRentals(t, 5)
	m := New(&fakeSource{obs: obs}, path, 1e-3, nil)
	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	cond := models.FromObservation(obs[2], 3, false, true)
	a, err := m.Predict(cond)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	b, err := m.Predict(cond)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if a != b {
		t.Errorf("predictions differ: %v vs %v", a, b)
	}
}

// TestPredict_BeforeBuild verifies Predict fails with ErrNotFitted before
// Build, never returning a stale or zero value.
func TestPredict_BeforeBuild(t *testing.T) {
	m := New(&fakeSource{}, "unused.csv", 1e-3, nil)
	cond := models.FromObservation(models.Observation{Date: time.Now()}, 0, false, true)
	if _, err := m.Predict(cond); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("Predict() error = %v, want ErrNotFitted", err)
	}
}

// TestPredict_MissingFeature verifies a candidate lacking an attribute is
// rejected with ErrFeature after Build.
func TestPredict_MissingFeature(t *testing.T) {
	path, obs := writeRentals(t, 5)
	m := New(&fakeSource{obs: obs}, path, 1e-3, nil)
	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	cond := models.FromObservation(obs[0], 0, false, true)
	cond.Humidity = nil
	if _, err := m.Predict(cond); !errors.Is(err, ErrFeature) {
		t.Fatalf("Predict() error = %v, want ErrFeature", err)
	}
}

// TestPredict_NonNegative verifies predictions are clamped at zero even when
// the linear form would go negative.
func TestPredict_NonNegative(t *testing.T) {
	path, obs := writeRentals(t, 10)
	m := New(&fakeSource{obs: obs}, path, 1e-6, nil)
	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// temperature far below anything seen drives the linear form negative
	cold := obs[0]
	cold.Temperature = -80
	cond := models.FromObservation(cold, 0, false, true)
	got, err := m.Predict(cond)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got < 0 {
		t.Errorf("Predict() = %v, want >= 0", got)
	}
}

// TestBuild_NoOverlap verifies a join producing zero usable rows fails with
// ErrData.
func TestBuild_NoOverlap(t *testing.T) {
	path, _ := writeRentals(t, 3)
	// observations for entirely different dates
	other := []models.Observation{{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Visibility: 2000}}
	m := New(&fakeSource{obs: other}, path, 1e-3, nil)

	if err := m.Build(context.Background()); !errors.Is(err, ErrData) {
		t.Fatalf("Build() error = %v, want ErrData", err)
	}
}

// TestBuild_PartialOverlap verifies rows without a matching observation are
// dropped while the rest still train: the join row count equals the number
// of rental rows whose date has an observation, with no duplication.
func TestBuild_PartialOverlap(t *testing.T) {
	path, obs := writeRentals(t, 4)
	partial := obs[:2] // observations only for the first two days
	m := New(&fakeSource{obs: partial}, path, 1e-3, nil)

	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !m.Fitted() {
		t.Fatal("model not fitted after Build")
	}
}

// TestBuild_SourceError verifies a failing weather source fails Build.
func TestBuild_SourceError(t *testing.T) {
	path, _ := writeRentals(t, 3)
	m := New(&fakeSource{err: errors.New("provider down")}, path, 1e-3, nil)
	if err := m.Build(context.Background()); err == nil {
		t.Fatal("Build() succeeded with failing weather source")
	}
}

// TestPredictDay verifies 24 hourly predictions come back in hour order.
func TestPredictDay(t *testing.T) {
	path, obs := writeRentals(t, 5)
	m := New(&fakeSource{obs: obs}, path, 1e-3, nil)
	if err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	preds, err := m.PredictDay(obs[1].Date, obs[1], false, true)
	if err != nil {
		t.Fatalf("PredictDay() error = %v", err)
	}
	if len(preds) != 24 {
		t.Fatalf("got %d hourly predictions, want 24", len(preds))
	}
	for i, p := range preds {
		if p.Hour != i {
			t.Fatalf("prediction %d has hour %d", i, p.Hour)
		}
		if p.Count < 0 {
			t.Errorf("hour %d prediction is negative: %v", i, p.Count)
		}
	}
}

// TestJoin_RowCount verifies the join emits exactly one row per rental
// record with a matching observation date.
func TestJoin_RowCount(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	byDate := map[time.Time]models.Observation{
		base: {Date: base, Visibility: 2000},
	}
	records := []models.RentalRecord{
		{Date: base, Hour: 0, Count: 100, FunctioningDay: true},
		{Date: base, Hour: 1, Count: 120, FunctioningDay: true},
		{Date: base.AddDate(0, 0, 1), Hour: 0, Count: 90, FunctioningDay: true},
	}
	rows, targets, dropped, err := join(records, byDate)
	if err != nil {
		t.Fatalf("join() error = %v", err)
	}
	if len(rows) != 2 || len(targets) != 2 {
		t.Errorf("join produced %d rows, want 2", len(rows))
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

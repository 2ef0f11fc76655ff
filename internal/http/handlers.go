package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kmorozova/bike-demand-service/internal/accessor"
	"github.com/kmorozova/bike-demand-service/internal/health"
	"github.com/kmorozova/bike-demand-service/internal/model"
	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
	"github.com/kmorozova/bike-demand-service/internal/provider"
	"github.com/kmorozova/bike-demand-service/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// CachePing, when set, checks reachability of the memcached tier.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	accessor     *accessor.Accessor
	demand       *model.DemandModel
	client       provider.WeatherProvider
	tracker      *health.Tracker
	healthConfig *HealthConfig
	logger       *zap.Logger
	now          func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	acc *accessor.Accessor,
	demand *model.DemandModel,
	client provider.WeatherProvider,
	tracker *health.Tracker,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		accessor:     acc,
		demand:       demand,
		client:       client,
		tracker:      tracker,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// GetIndex handles GET /. Renders the empty prediction form.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, pageData{
		Date: models.Day(h.now()).Format(models.DateFormat),
	})
}

// PostPredict handles POST /predict: the interactive form submission.
// Fetches weather for the chosen date (forecast for today or later,
// history otherwise), applies any overrides, and renders the hourly
// prediction table or a human-readable error.
func (h *Handler) PostPredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, pageData{Error: "could not read form input"})
		return
	}

	date, err := validation.ParseDate(r.FormValue("date"))
	if err != nil {
		h.renderPage(w, http.StatusBadRequest, pageData{Error: err.Error(), Date: r.FormValue("date")})
		return
	}
	holiday := validation.ParseFlag(r.FormValue("holiday"))

	obs, err := h.fetchObservation(r.Context(), date)
	if err != nil {
		status, _, msg := mapError(err)
		observability.PredictionsTotal.WithLabelValues(errOutcome(err)).Inc()
		h.renderPage(w, status, pageData{Error: msg, Date: date.Format(models.DateFormat), Holiday: holiday})
		return
	}

	obs, err = applyOverrides(obs, r.FormValue)
	if err != nil {
		h.renderPage(w, http.StatusBadRequest, pageData{Error: err.Error(), Date: date.Format(models.DateFormat), Holiday: holiday})
		return
	}

	preds, err := h.demand.PredictDay(date, obs, holiday, true)
	if err != nil {
		status, _, msg := mapError(err)
		observability.PredictionsTotal.WithLabelValues(errOutcome(err)).Inc()
		h.renderPage(w, status, pageData{Error: msg, Date: date.Format(models.DateFormat), Holiday: holiday})
		return
	}
	observability.PredictionsTotal.WithLabelValues("ok").Inc()

	var total float64
	for _, p := range preds {
		total += p.Count
	}
	h.renderPage(w, http.StatusOK, pageData{
		Date:        date.Format(models.DateFormat),
		Holiday:     holiday,
		Observation: &obs,
		Predictions: preds,
		Total:       total,
	})
}

// GetPredictAPI handles GET /api/predict. Returns a single JSON prediction
// for date+hour, with optional weather overrides as query parameters.
func (h *Handler) GetPredictAPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := validation.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}
	hour, err := validation.ParseHour(q.Get("hour"), 12)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_HOUR", err.Error())
		return
	}
	holiday := validation.ParseFlag(q.Get("holiday"))

	obs, err := h.fetchObservation(r.Context(), date)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	obs, err = applyOverrides(obs, q.Get)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CONDITIONS", err.Error())
		return
	}

	cond := models.FromObservation(obs, hour, holiday, true)
	count, err := h.demand.Predict(cond)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	observability.PredictionsTotal.WithLabelValues("ok").Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":      date.Format(models.DateFormat),
		"hour":      hour,
		"predicted": count,
		"weather":   obs,
	})
}

// fetchObservation routes past dates to the historical accessor and
// today-or-future dates to a fresh forecast.
func (h *Handler) fetchObservation(ctx context.Context, date time.Time) (models.Observation, error) {
	today := models.Day(h.now())
	if date.Before(today) {
		obs, err := h.accessor.GetHistorical(ctx, date, date)
		if err != nil {
			return models.Observation{}, err
		}
		return obs[0], nil
	}
	return h.accessor.GetForecast(ctx, date)
}

// applyOverrides overwrites observation attributes with any non-empty form
// or query values. A non-numeric override is an input error, not a silent
// fallback to the fetched value.
func applyOverrides(obs models.Observation, get func(string) string) (models.Observation, error) {
	fields := []struct {
		name string
		dst  *float64
	}{
		{"temperature", &obs.Temperature},
		{"humidity", &obs.Humidity},
		{"windSpeed", &obs.WindSpeed},
		{"precipitation", &obs.Precipitation},
		{"solarRadiation", &obs.SolarRadiation},
		{"visibility", &obs.Visibility},
		{"dewPoint", &obs.DewPoint},
	}
	for _, f := range fields {
		v, err := validation.ParseOverride(f.name, get(f.name))
		if err != nil {
			return obs, err
		}
		if v != nil {
			*f.dst = *v
		}
	}
	return obs, nil
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"weatherProvider": "healthy",
		"demandModel":     "healthy",
	}
	switch result.reason {
	case "api_key_invalid", "error_rate_breach":
		checks["weatherProvider"] = "unhealthy"
	case "model_not_fitted":
		checks["demandModel"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	body := map[string]interface{}{
		"status":    result.status,
		"service":   "bike-demand-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		body["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > API key invalid > model not fitted > provider error rate.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.tracker != nil && h.tracker.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if !h.demand.Fitted() {
		return healthResult{"starting", http.StatusServiceUnavailable, "model_not_fitted"}
	}
	if h.tracker != nil && h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := h.tracker.ProviderErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// mapError converts pipeline errors into (status, code, user message).
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, provider.ErrRange):
		return http.StatusBadRequest, "DATE_OUT_OF_RANGE", "The requested date is outside the weather provider's supported window."
	case errors.Is(err, model.ErrFeature):
		return http.StatusBadRequest, "INVALID_CONDITIONS", "The prediction input is missing a required weather attribute."
	case errors.Is(err, provider.ErrInvalidAPIKey):
		return http.StatusBadGateway, "PROVIDER_AUTH", "The weather provider rejected the configured API key."
	case errors.Is(err, provider.ErrProvider):
		return http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Weather data could not be fetched from the provider."
	case errors.Is(err, model.ErrNotFitted):
		return http.StatusServiceUnavailable, "MODEL_NOT_READY", "The demand model has not finished training yet."
	case errors.Is(err, model.ErrData):
		return http.StatusInternalServerError, "TRAINING_DATA", "The demand model could not be trained from the available data."
	}
	return http.StatusInternalServerError, "INTERNAL", "Unexpected internal error."
}

// errOutcome returns the stable metric label for a pipeline error.
func errOutcome(err error) string {
	switch {
	case errors.Is(err, provider.ErrRange):
		return "range_error"
	case errors.Is(err, model.ErrFeature):
		return "feature_error"
	case errors.Is(err, provider.ErrProvider), errors.Is(err, provider.ErrInvalidAPIKey):
		return "provider_error"
	case errors.Is(err, model.ErrNotFitted):
		return "not_fitted"
	case errors.Is(err, model.ErrData):
		return "data_error"
	}
	return "internal"
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	observability.PredictionsTotal.WithLabelValues(errOutcome(err)).Inc()
	writeError(w, r, status, code, msg)
	if logger := LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("prediction request failed", zap.String("code", code), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message and requestId (correlation ID) if available in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := CorrelationIDFromContext(r.Context())
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

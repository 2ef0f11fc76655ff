package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
)

// WWOClient fetches historical and forecast weather from the World Weather
// Online HTTP API. One attempt per request; provider failures surface to the
// caller unretried.
type WWOClient struct {
	apiKey      string
	historyURL  string
	forecastURL string
	city        string
	earliest    time.Time // provider's historical retrieval floor
	horizonDays int       // forecast horizon
	client      *http.Client
	now         func() time.Time // injectable for tests
}

// NewWWOClient validates the key and returns a client for the fixed city.
// earliest bounds historical retrieval; horizonDays bounds forecasts.
func NewWWOClient(apiKey, historyURL, forecastURL, city string, earliest time.Time, horizonDays int, timeout time.Duration) (*WWOClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if horizonDays <= 0 {
		horizonDays = 14
	}
	return &WWOClient{
		apiKey:      apiKey,
		historyURL:  historyURL,
		forecastURL: forecastURL,
		city:        city,
		earliest:    models.Day(earliest),
		horizonDays: horizonDays,
		client:      &http.Client{Timeout: timeout},
		now:         time.Now,
	}, nil
}

// wwoResponse is the explicit schema for both the past-weather and forecast
// payloads. Numeric fields arrive as strings and are validated in parse;
// anything malformed becomes ErrProvider at this boundary.
type wwoResponse struct {
	Data struct {
		Error []struct {
			Msg string `json:"msg"`
		} `json:"error"`
		Weather []wwoDay `json:"weather"`
	} `json:"data"`
}

type wwoDay struct {
	Date   string      `json:"date"`
	Hourly []wwoHourly `json:"hourly"`
}

type wwoHourly struct {
	Time          string `json:"time"`
	TempC         string `json:"tempC"`
	Humidity      string `json:"humidity"`
	WindspeedKmph string `json:"windspeedKmph"`
	PrecipMM      string `json:"precipMM"`
	Visibility    string `json:"visibility"`
	DewPointC     string `json:"DewPointC"`
	UVIndex       string `json:"uvIndex"`
}

// GetHistorical fetches daily observations for [from, to]. The provider
// caps one request at a calendar month, so longer ranges are fetched in
// month-sized chunks; the first failing chunk aborts the whole call.
func (c *WWOClient) GetHistorical(ctx context.Context, from, to time.Time) ([]models.Observation, error) {
	from, to = models.Day(from), models.Day(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: range start %s after end %s", ErrRange, from.Format(models.DateFormat), to.Format(models.DateFormat))
	}
	if from.Before(c.earliest) {
		return nil, fmt.Errorf("%w: %s precedes provider floor %s", ErrRange, from.Format(models.DateFormat), c.earliest.Format(models.DateFormat))
	}
	if today := models.Day(c.now()); to.After(today) {
		return nil, fmt.Errorf("%w: %s is in the future; use GetForecast", ErrRange, to.Format(models.DateFormat))
	}

	var out []models.Observation
	for start := from; !start.After(to); {
		end := lastDayOfMonth(start)
		if end.After(to) {
			end = to
		}
		obs, err := c.fetchHistoryChunk(ctx, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, obs...)
		start = end.AddDate(0, 0, 1)
	}
	return out, nil
}

// GetForecast fetches a forward-looking observation for one date. Forecasts
// for past dates are refused; callers use GetHistorical for those.
func (c *WWOClient) GetForecast(ctx context.Context, date time.Time) (models.Observation, error) {
	date = models.Day(date)
	today := models.Day(c.now())
	if date.Before(today) {
		return models.Observation{}, fmt.Errorf("%w: %s has passed; use GetHistorical", ErrRange, date.Format(models.DateFormat))
	}
	days := int(date.Sub(today).Hours()/24) + 1
	if days > c.horizonDays {
		return models.Observation{}, fmt.Errorf("%w: %s beyond %d-day forecast horizon", ErrRange, date.Format(models.DateFormat), c.horizonDays)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", c.city)
	params.Set("num_of_days", strconv.Itoa(days))
	params.Set("tp", "1")
	params.Set("format", "json")

	obs, err := c.call(ctx, "forecast", c.forecastURL, params)
	if err != nil {
		return models.Observation{}, err
	}
	for _, o := range obs {
		if o.Day().Equal(date) {
			return o, nil
		}
	}
	return models.Observation{}, fmt.Errorf("%w: forecast payload missing %s", ErrProvider, date.Format(models.DateFormat))
}

// ValidateAPIKey issues a minimal one-day forecast request to confirm the
// configured key is accepted. Used by the health handler.
func (c *WWOClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", c.city)
	params.Set("num_of_days", "1")
	params.Set("format", "json")

	_, err := c.call(ctx, "validate", c.forecastURL, params)
	return err
}

func (c *WWOClient) fetchHistoryChunk(ctx context.Context, from, to time.Time) ([]models.Observation, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", c.city)
	params.Set("date", from.Format(models.DateFormat))
	params.Set("enddate", to.Format(models.DateFormat))
	params.Set("tp", "1")
	params.Set("format", "json")
	return c.call(ctx, "history", c.historyURL, params)
}

func (c *WWOClient) call(ctx context.Context, endpoint, rawURL string, params url.Values) ([]models.Observation, error) {
	start := time.Now()

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid API URL: %v", ErrProvider, err)
	}
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: http request failed: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrProvider, err)
	}

	var payload wwoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrProvider, err)
	}
	if len(payload.Data.Error) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrProvider, payload.Data.Error[0].Msg)
	}

	return parseObservations(payload)
}

func handleErrorStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: provider rejected key (HTTP %d)", ErrInvalidAPIKey, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrProvider, code)
	}
	return nil
}

// lastDayOfMonth returns the final day of t's calendar month.
func lastDayOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

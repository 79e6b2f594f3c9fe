package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/lox/fogwatch/internal/httputil"
	"github.com/lox/fogwatch/internal/metrics"
	"github.com/lox/fogwatch/internal/models"
)

const (
	DefaultBaseURL  = "https://api.open-meteo.com"
	DefaultTimezone = "Asia/Kolkata"

	hourlyFields = "relative_humidity_2m,temperature_2m"
)

var (
	ErrCircuitOpen   = errors.New("forecast api circuit open")
	ErrResponseShape = errors.New("unexpected forecast response shape")
	ErrMissingField  = errors.New("forecast field missing")
)

// StatusError is a non-2xx reply from the forecast API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// FetchResult carries bookkeeping about one API call for the run ledger.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
}

// ForecastLocation is one element of an Open-Meteo forecast response.
type ForecastLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    *Hourly `json:"hourly"`
}

type Hourly struct {
	Time               []string   `json:"time"`
	Temperature2m      []*float64 `json:"temperature_2m"`
	RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
}

type apiError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// SampleAt extracts the sample for hour index idx.
func (l ForecastLocation) SampleAt(idx int) (models.Sample, error) {
	if l.Hourly == nil {
		return models.Sample{}, fmt.Errorf("%w: hourly", ErrMissingField)
	}
	temp, err := valueAt(l.Hourly.Temperature2m, idx, "temperature_2m")
	if err != nil {
		return models.Sample{}, err
	}
	hum, err := valueAt(l.Hourly.RelativeHumidity2m, idx, "relative_humidity_2m")
	if err != nil {
		return models.Sample{}, err
	}
	return models.Sample{TemperatureC: temp, RelativeHumidity: hum}, nil
}

func valueAt(series []*float64, idx int, name string) (float64, error) {
	if idx < 0 || idx >= len(series) {
		return 0, fmt.Errorf("%w: %s[%d] (have %d values)", ErrMissingField, name, idx, len(series))
	}
	if series[idx] == nil {
		return 0, fmt.Errorf("%w: %s[%d] is null", ErrMissingField, name, idx)
	}
	return *series[idx], nil
}

// DecodeLocations normalizes a forecast body into a slice. Open-Meteo replies
// with a bare object for one coordinate pair and an array for several.
func DecodeLocations(body []byte) ([]ForecastLocation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrResponseShape)
	}

	switch trimmed[0] {
	case '[':
		var locs []ForecastLocation
		if err := json.Unmarshal(trimmed, &locs); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return locs, nil
	case '{':
		var apiErr apiError
		if err := json.Unmarshal(trimmed, &apiErr); err == nil && apiErr.Error {
			return nil, fmt.Errorf("%w: api error: %s", ErrResponseShape, apiErr.Reason)
		}
		var loc ForecastLocation
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return []ForecastLocation{loc}, nil
	default:
		return nil, fmt.Errorf("%w: starts with %q", ErrResponseShape, trimmed[0])
	}
}

type ForecastClient struct {
	baseURL          string
	timezone         string
	client           *http.Client
	breaker          *gobreaker.CircuitBreaker
	breakerThreshold uint32
	retries          uint64
	retryInterval    time.Duration
}

type ForecastOption func(*ForecastClient)

func WithBaseURL(u string) ForecastOption {
	return func(f *ForecastClient) { f.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) ForecastOption {
	return func(f *ForecastClient) { f.client = c }
}

// WithRetries allows n extra attempts on transport errors, 429 and 5xx.
func WithRetries(n uint64, interval time.Duration) ForecastOption {
	return func(f *ForecastClient) {
		f.retries = n
		if interval > 0 {
			f.retryInterval = interval
		}
	}
}

// WithBreaker opens the circuit after n consecutive transport, 429 or 5xx
// failures; while open, batches fail without a request. 0 never trips.
func WithBreaker(n uint32) ForecastOption {
	return func(f *ForecastClient) { f.breakerThreshold = n }
}

func NewForecastClient(timezone string, opts ...ForecastOption) *ForecastClient {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	f := &ForecastClient{
		baseURL:       DefaultBaseURL,
		timezone:      timezone,
		client:        httputil.NewClient(httputil.DefaultTimeout),
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}

	threshold := f.breakerThreshold
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
	})
	return f
}

// RequestURL builds the forecast URL for stations, preserving their order in
// the coordinate lists.
func (f *ForecastClient) RequestURL(stations []models.Station) string {
	lats := make([]string, len(stations))
	lons := make([]string, len(stations))
	for i, st := range stations {
		lats[i] = strconv.FormatFloat(st.Latitude, 'f', -1, 64)
		lons[i] = strconv.FormatFloat(st.Longitude, 'f', -1, 64)
	}

	values := url.Values{}
	values.Set("latitude", strings.Join(lats, ","))
	values.Set("longitude", strings.Join(lons, ","))
	values.Set("hourly", hourlyFields)
	values.Set("timezone", f.timezone)
	values.Set("forecast_days", "1")

	return fmt.Sprintf("%s/v1/forecast?%s", f.baseURL, values.Encode())
}

// FetchHourly requests one day of hourly humidity and temperature for every
// station in a single call. The returned body is the raw response, kept even
// when decoding fails.
func (f *ForecastClient) FetchHourly(ctx context.Context, stations []models.Station) ([]ForecastLocation, []byte, *FetchResult, error) {
	result := &FetchResult{}
	if len(stations) == 0 {
		return nil, nil, result, nil
	}

	u := f.RequestURL(stations)
	var body []byte

	operation := func() error {
		start := time.Now()
		out, err := f.breaker.Execute(func() (interface{}, error) {
			return f.get(ctx, u)
		})
		metrics.ForecastAPILatency.Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				metrics.ForecastAPICallsTotal.WithLabelValues("circuit_open").Inc()
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			var se *StatusError
			if errors.As(err, &se) {
				body = []byte(se.Body)
				result.HTTPStatus = se.Code
				result.ResponseSize = len(se.Body)
				metrics.ForecastAPICallsTotal.WithLabelValues(strconv.Itoa(se.Code)).Inc()
				return fmt.Errorf("fetch forecast: %w", err)
			}
			metrics.ForecastAPICallsTotal.WithLabelValues("error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("fetch forecast: %w", err))
			}
			return fmt.Errorf("fetch forecast: %w", err)
		}

		resp := out.(*rawResponse)
		result.HTTPStatus = resp.status
		result.ResponseSize = len(resp.body)
		metrics.ForecastAPICallsTotal.WithLabelValues(strconv.Itoa(resp.status)).Inc()
		if resp.status < 200 || resp.status > 299 {
			body = resp.body
			return backoff.Permanent(fmt.Errorf("fetch forecast: %w", &StatusError{Code: resp.status, Body: string(resp.body)}))
		}
		body = resp.body
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retryInterval
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, f.retries), ctx)); err != nil {
		return nil, body, result, err
	}

	locs, err := DecodeLocations(body)
	if err != nil {
		return nil, body, result, err
	}
	result.RecordCount = len(locs)
	return locs, body, result, nil
}

type rawResponse struct {
	status int
	body   []byte
}

// get performs one request. Only transport failures, 429 and 5xx are
// returned as errors so the breaker ignores client-side mistakes.
func (f *ForecastClient) get(ctx context.Context, u string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	se := &StatusError{Code: resp.StatusCode, Body: string(body)}
	if se.retryable() {
		return nil, se
	}
	return &rawResponse{status: resp.StatusCode, body: body}, nil
}

// Package meteo is the client for the Meteomatics weather API.
package meteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.meteomatics.com"

const (
	timeLayout = "2006-01-02T15:04:05Z"
	// The API reports unavailable values with these sentinels.
	invalidValue = -666
	missingValue = -999

	statsAttempts = 3
)

var errTransport = errors.New("transport error")

// Client implements runner.WeatherClient over HTTP with basic auth.
type Client struct {
	username   string
	password   string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger

	statsBackoff time.Duration
}

// NewClient creates a client. timeout bounds each HTTP call, including
// reading the response body.
func NewClient(username, password, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,

		statsBackoff: time.Second,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meteomatics",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !breakerFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// TimeSeries requests daily values for every point and parameter of d.
func (c *Client) TimeSeries(ctx context.Context, d domain.RequestDescriptor) ([]domain.Observation, error) {
	body, err := c.get(ctx, TimeSeriesURL(c.baseURL, d))
	if err != nil {
		return nil, err
	}

	var resp timeSeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode time series: %w", err)
	}
	if resp.Status != "" && resp.Status != "OK" {
		return nil, fmt.Errorf("time series status %q: %w", resp.Status, domain.ErrServerError)
	}
	return resp.observations()
}

// RemainingRequests reports how many requests the account has left since UTC
// midnight. An account without a hard limit reports math.MaxInt32.
func (c *Client) RemainingRequests(ctx context.Context) (int, error) {
	var (
		body    []byte
		err     error
		backoff = c.statsBackoff
	)
	for attempt := 1; ; attempt++ {
		body, err = c.get(ctx, c.baseURL+"/user_stats_json")
		if err == nil || attempt == statsAttempts || !breakerFailure(err) {
			break
		}
		c.logger.Warn("user stats request failed, retrying", "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return 0, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, 10*time.Second)
	}
	if err != nil {
		return 0, err
	}

	var stats userStatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("decode user stats: %w", err)
	}
	daily := stats.UserStatistics.SinceMidnight
	if daily.HardLimit <= 0 {
		return math.MaxInt32, nil
	}
	return max(daily.HardLimit-daily.Used, 0), nil
}

// TimeSeriesURL builds the path-style query for d:
// {base}/{start}--{end}:PT24H/{parameters}/{lat,lon+...}/json.
func TimeSeriesURL(baseURL string, d domain.RequestDescriptor) string {
	points := make([]string, len(d.Cells))
	for i, c := range d.Cells {
		points[i] = formatCoord(c.Centroid.Lat) + "," + formatCoord(c.Centroid.Lon)
	}
	return fmt.Sprintf("%s/%s--%s:PT24H/%s/%s/json?on_invalid=fill_with_invalid",
		strings.TrimRight(baseURL, "/"),
		d.StartDateUTC.UTC().Format(timeLayout),
		d.EndDateUTC.UTC().Format(timeLayout),
		strings.Join(d.Parameters, ","),
		strings.Join(points, "+"),
	)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// get executes one GET through the circuit breaker and maps failures onto
// the domain error sentinels.
func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(c.username, c.password)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classifyTransport(err)
		}
		if err := statusError(resp.StatusCode, body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", domain.ErrCircuitOpen, domain.ErrServerError)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func statusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("status %d: %s: %w", code, snippet(body), domain.ErrParameterUnavailable)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %s: %w", code, snippet(body), domain.ErrQuotaExhausted)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("status %d: %w", code, domain.ErrRequestTimeout)
	case code >= 500:
		return fmt.Errorf("status %d: %s: %w", code, snippet(body), domain.ErrServerError)
	default:
		return fmt.Errorf("meteomatics API error: status %d: %s", code, snippet(body))
	}
}

func classifyTransport(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%v: %w", err, domain.ErrRequestTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", errTransport, err)
}

// breakerFailure reports errors that say the API itself is unhealthy.
func breakerFailure(err error) bool {
	return errors.Is(err, domain.ErrServerError) ||
		errors.Is(err, domain.ErrRequestTimeout) ||
		errors.Is(err, errTransport)
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

// API response types.

type timeSeriesResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Parameter   string `json:"parameter"`
		Coordinates []struct {
			Lat   float64 `json:"lat"`
			Lon   float64 `json:"lon"`
			Dates []struct {
				Date  string   `json:"date"`
				Value *float64 `json:"value"`
			} `json:"dates"`
		} `json:"coordinates"`
	} `json:"data"`
}

func (r timeSeriesResponse) observations() ([]domain.Observation, error) {
	var out []domain.Observation
	for _, p := range r.Data {
		for _, c := range p.Coordinates {
			for _, d := range c.Dates {
				valid, err := time.Parse(time.RFC3339, d.Date)
				if err != nil {
					return nil, fmt.Errorf("parse valid date %q: %w", d.Date, err)
				}
				value := math.NaN()
				if d.Value != nil && *d.Value != invalidValue && *d.Value != missingValue {
					value = *d.Value
				}
				out = append(out, domain.Observation{
					Lat:       c.Lat,
					Lon:       c.Lon,
					ValidDate: valid.UTC(),
					Parameter: p.Parameter,
					Value:     value,
				})
			}
		}
	}
	return out, nil
}

type userStatsResponse struct {
	UserStatistics struct {
		SinceMidnight struct {
			Used      int `json:"used"`
			SoftLimit int `json:"soft limit"`
			HardLimit int `json:"hard limit"`
		} `json:"requests since last UTC midnight"`
	} `json:"user statistics"`
}

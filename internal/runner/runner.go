// Package runner submits planned requests to the weather API one at a time,
// within the day's remaining quota, and hands matched rows to the writer.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/observability"
)

// WeatherClient is the external weather API.
type WeatherClient interface {
	TimeSeries(ctx context.Context, d domain.RequestDescriptor) ([]domain.Observation, error)
	// RemainingRequests is the account's hard limit minus what it has used
	// since UTC midnight.
	RemainingRequests(ctx context.Context) (int, error)
}

// RequestLog is the append-only record of submitted requests.
type RequestLog interface {
	LogOutcome(ctx context.Context, runID string, o domain.RequestOutcome) error
	RequestsLoggedSince(ctx context.Context, since time.Time) (int, error)
}

// RowWriter stores the rows of one successful request and reports how many
// were kept.
type RowWriter interface {
	Write(ctx context.Context, d domain.RequestDescriptor, rows []domain.DailyRow) (int, error)
}

// OutcomePublisher receives every logged outcome. Publishing is best-effort.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, runID string, o domain.RequestOutcome) error
}

// Result is what one Run submitted.
type Result struct {
	Outcomes []domain.RequestOutcome
	// Cut counts descriptors dropped up front to fit the remaining quota.
	Cut int
	// QuotaExhausted is set when the API answered 429 and the run stopped
	// early, or when the remaining quota could not fit a single zone.
	QuotaExhausted bool
	RowsWritten    int
}

// Runner executes request descriptors sequentially.
type Runner struct {
	client     WeatherClient
	log        RequestLog
	writer     RowWriter
	publisher  OutcomePublisher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	dailyLimit int
}

// New creates a Runner. dailyLimit is the self-imposed number of requests per
// UTC day. publisher may be nil.
func New(client WeatherClient, log RequestLog, writer RowWriter, publisher OutcomePublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, dailyLimit int) *Runner {
	return &Runner{
		client:     client,
		log:        log,
		writer:     writer,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		dailyLimit: dailyLimit,
	}
}

// Remaining returns the lesser of the self-imposed allowance left today and
// what the API account has left.
func (r *Runner) Remaining(ctx context.Context) (int, error) {
	midnight := domain.Day(r.clock.Now().UTC())
	used, err := r.log.RequestsLoggedSince(ctx, midnight)
	if err != nil {
		return 0, fmt.Errorf("requests logged today: %w", err)
	}
	api, err := r.client.RemainingRequests(ctx)
	if err != nil {
		return 0, fmt.Errorf("api remaining requests: %w", err)
	}
	remaining := max(min(r.dailyLimit-used, api), 0)
	r.metrics.QuotaRemaining.Set(float64(remaining))
	r.logger.Info("quota checked", "used_today", used, "api_remaining", api, "remaining", remaining)
	return remaining, nil
}

// Run submits descriptors until they are done or the quota runs out. A 429
// from the API ends the run with the outcomes gathered so far and a nil error.
// Request log or storage failures abort the run.
func (r *Runner) Run(ctx context.Context, runID string, descriptors []domain.RequestDescriptor) (Result, error) {
	var res Result
	if len(descriptors) == 0 {
		return res, nil
	}

	remaining, err := r.Remaining(ctx)
	if err != nil {
		return res, err
	}
	if remaining <= 0 {
		res.QuotaExhausted = true
		res.Cut = len(descriptors)
		return res, domain.ErrQuotaExhausted
	}

	todo := CutAlongZones(descriptors, remaining)
	res.Cut = len(descriptors) - len(todo)
	if len(todo) == 0 {
		r.logger.Warn("remaining quota fits no zone", "planned", len(descriptors), "remaining", remaining)
		res.QuotaExhausted = true
		return res, domain.ErrQuotaExhausted
	}
	if res.Cut > 0 {
		r.logger.Warn("request list cut to fit quota", "submitting", len(todo), "planned", len(descriptors), "remaining", remaining)
	}

	for i, d := range todo {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		outcome, observations := r.submit(ctx, d)
		res.Outcomes = append(res.Outcomes, outcome)

		if err := r.record(ctx, runID, outcome); err != nil {
			return res, err
		}

		if outcome.Status == domain.StatusSuccess {
			rows := r.normalize(d, observations, outcome.DateRequestedUTC)
			n, err := r.writer.Write(ctx, d, rows)
			if err != nil {
				return res, fmt.Errorf("write request %d: %w", d.RequestID, err)
			}
			res.RowsWritten += n
		}

		if errors.Is(outcome.Err, domain.ErrQuotaExhausted) {
			r.logger.Warn("daily request limit reached, stopping", "submitted", i+1, "planned", len(todo))
			res.QuotaExhausted = true
			return res, nil
		}
	}
	return res, nil
}

// submit validates and sends one descriptor.
func (r *Runner) submit(ctx context.Context, d domain.RequestDescriptor) (domain.RequestOutcome, []domain.Observation) {
	outcome := domain.RequestOutcome{Descriptor: d, DateRequestedUTC: r.clock.Now().UTC()}

	if err := validate(d); err != nil {
		outcome.Status = domain.StatusFail
		outcome.Err = err
		outcome.ElapsedSeconds = domain.SecondsInvalid
		return outcome, nil
	}

	start := r.clock.Now()
	observations, err := r.client.TimeSeries(ctx, d)
	elapsed := r.clock.Since(start)

	if err != nil {
		outcome.Status = domain.StatusFail
		outcome.Err = err
		outcome.ElapsedSeconds = domain.FailureSeconds(err, elapsed)
		r.logger.Warn("request failed",
			"request_id", d.RequestID,
			"mode", d.Mode,
			"zone", d.Zone,
			"points", len(d.Cells),
			"kind", outcome.FailureKind(),
			"error", err,
		)
		return outcome, nil
	}

	outcome.Status = domain.StatusSuccess
	outcome.ElapsedSeconds = domain.RoundSeconds(elapsed)
	r.metrics.RequestDuration.Observe(elapsed.Seconds())
	r.logger.Info("request succeeded",
		"request_id", d.RequestID,
		"mode", d.Mode,
		"zone", d.Zone,
		"points", len(d.Cells),
		"parameters", len(d.Parameters),
		"seconds", outcome.ElapsedSeconds,
	)
	return outcome, observations
}

// record logs the outcome. Descriptors rejected before submission and
// requests refused by an open circuit breaker never reached the API, so they
// are not written to the request log and do not count against the quota.
func (r *Runner) record(ctx context.Context, runID string, o domain.RequestOutcome) error {
	r.metrics.Requests.WithLabelValues(string(o.Descriptor.Mode), string(o.Status)).Inc()
	switch {
	case errors.Is(o.Err, domain.ErrInvalidDescriptor):
		r.logger.Error("descriptor rejected", "request_id", o.Descriptor.RequestID, "error", o.Err)
		return nil
	case errors.Is(o.Err, domain.ErrCircuitOpen):
		r.logger.Debug("request not sent, circuit open", "request_id", o.Descriptor.RequestID)
		return nil
	}
	if err := r.log.LogOutcome(ctx, runID, o); err != nil {
		return fmt.Errorf("log request %d: %w", o.Descriptor.RequestID, err)
	}
	if r.publisher != nil {
		if err := r.publisher.PublishOutcome(ctx, runID, o); err != nil {
			r.logger.Warn("publish outcome failed", "request_id", o.Descriptor.RequestID, "error", err)
		}
	}
	return nil
}

// normalize matches observations back to requested cells by their rounded
// coordinates and converts each timestamp to the zone's local date.
func (r *Runner) normalize(d domain.RequestDescriptor, observations []domain.Observation, requested time.Time) []domain.DailyRow {
	byKey := make(map[string]domain.CellTarget, len(d.Cells))
	for _, c := range d.Cells {
		byKey[c.Centroid.Key()] = c
	}

	rows := make([]domain.DailyRow, 0, len(observations))
	unmatched := 0
	for _, o := range observations {
		key := domain.NewCentroid(o.Lon, o.Lat).Key()
		cell, ok := byKey[key]
		if !ok {
			unmatched++
			r.logger.Debug("unmatched response coordinate", "request_id", d.RequestID, "coordinate", key)
			continue
		}
		rows = append(rows, domain.DailyRow{
			WorldUtmID:    cell.WorldUtmID,
			CellID:        cell.CellID,
			Date:          domain.Day(domain.Localize(o.ValidDate, d.UTCOffset)),
			Parameter:     o.Parameter,
			Value:         o.Value,
			DateRequested: requested,
		})
	}
	if unmatched > 0 {
		r.metrics.RowsDropped.WithLabelValues("unmatched").Add(float64(unmatched))
		r.logger.Warn("dropping response rows",
			"request_id", d.RequestID,
			"rows", unmatched,
			"error", domain.ErrMatching,
		)
	}
	return rows
}

func validate(d domain.RequestDescriptor) error {
	switch {
	case len(d.Cells) == 0:
		return fmt.Errorf("request %d has no points: %w", d.RequestID, domain.ErrInvalidDescriptor)
	case len(d.Parameters) == 0 || len(d.Parameters) > domain.MaxParametersPerRequest:
		return fmt.Errorf("request %d has %d parameters: %w", d.RequestID, len(d.Parameters), domain.ErrInvalidDescriptor)
	case d.EndDateUTC.Before(d.StartDateUTC):
		return fmt.Errorf("request %d ends before it starts: %w", d.RequestID, domain.ErrInvalidDescriptor)
	}
	for _, c := range d.Cells {
		if !c.Centroid.IsRounded() {
			return fmt.Errorf("request %d point %v is not rounded to %d decimals: %w",
				d.RequestID, c.Centroid, domain.CoordinatePrecision, domain.ErrInvalidDescriptor)
		}
	}
	return nil
}

package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

const requestLogColumns = "run_id, mode, zone, utc_offset_seconds, request_id, n_points_requested, " +
	"start_date, end_date, parameters, date_requested, status, request_seconds, error"

// LoggedRequest is one request_log row.
type LoggedRequest struct {
	RunID            string
	Mode             domain.Mode
	Zone             int
	UTCOffset        time.Duration
	RequestID        int
	NPointsRequested int
	StartDate        time.Time
	EndDate          time.Time
	Parameters       []string
	DateRequested    time.Time
	Status           domain.Status
	RequestSeconds   float64
	Error            string
}

// LogOutcome appends one request outcome.
func (s *Store) LogOutcome(ctx context.Context, runID string, o domain.RequestOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := o.Descriptor
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO request_log ("+requestLogColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		runID, string(d.Mode), d.Zone, int64(d.UTCOffset/time.Second), d.RequestID, d.NPointsRequested,
		d.StartDateUTC.UTC().Format(time.RFC3339), d.EndDateUTC.UTC().Format(time.RFC3339),
		strings.Join(d.Parameters, ","), o.DateRequestedUTC.Unix(), string(o.Status), o.ElapsedSeconds, o.ErrorText(),
	)
	if err != nil {
		return fmt.Errorf("insert request log %d: %w", d.RequestID, err)
	}
	return nil
}

// RequestsLoggedSince counts request_log rows with date_requested >= since.
func (s *Store) RequestsLoggedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM request_log WHERE date_requested >= ?", since.Unix()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count request log: %w", err)
	}
	return n, nil
}

// RequestStatusCounts tallies request_log rows by status.
func (s *Store) RequestStatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM request_log GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query request status counts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan request status: %w", err)
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

// RequestLog returns the rows of one run in insertion order.
func (s *Store) RequestLog(ctx context.Context, runID string) ([]LoggedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+requestLogColumns+" FROM request_log WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query request log: %w", err)
	}
	defer rows.Close()

	var out []LoggedRequest
	for rows.Next() {
		var (
			r                    LoggedRequest
			mode, status, params string
			offsetSec, requested int64
			start, end           string
		)
		if err := rows.Scan(&r.RunID, &mode, &r.Zone, &offsetSec, &r.RequestID, &r.NPointsRequested,
			&start, &end, &params, &requested, &status, &r.RequestSeconds, &r.Error); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		r.Mode = domain.Mode(mode)
		r.Status = domain.Status(status)
		r.UTCOffset = time.Duration(offsetSec) * time.Second
		r.DateRequested = unixTime(requested)
		if params != "" {
			r.Parameters = strings.Split(params, ",")
		}
		if r.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parse start date: %w", err)
		}
		if r.EndDate, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("parse end date: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

const dailyColumns = "world_utm_id, cell_id, date, weather_type_id, value, date_requested"

// AppendDaily inserts rows in one transaction. Nothing is merged or replaced.
func (s *Store) AppendDaily(ctx context.Context, records []domain.RetrievalRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin daily tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO daily ("+dailyColumns+") VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare daily insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		value := sql.NullFloat64{Float64: r.Value, Valid: !math.IsNaN(r.Value)}
		if _, err := stmt.ExecContext(ctx, r.WorldUtmID, r.CellID, formatDate(r.Date), r.WeatherTypeID, value, r.DateRequested.Unix()); err != nil {
			return fmt.Errorf("insert daily cell %d %s: %w", r.CellID, formatDate(r.Date), err)
		}
	}
	return tx.Commit()
}

// CellsLastRequested returns, per populated cell, the minimum across weather
// types of each type's latest date_requested.
func (s *Store) CellsLastRequested(ctx context.Context) ([]domain.CellLastRequested, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT world_utm_id, cell_id, MIN(last_requested)
FROM (
    SELECT world_utm_id, cell_id, weather_type_id, MAX(date_requested) AS last_requested
    FROM daily
    GROUP BY world_utm_id, cell_id, weather_type_id
)
GROUP BY world_utm_id, cell_id
ORDER BY world_utm_id, cell_id`)
	if err != nil {
		return nil, fmt.Errorf("query last requested: %w", err)
	}
	defer rows.Close()

	var out []domain.CellLastRequested
	for rows.Next() {
		var (
			c    domain.CellLastRequested
			last int64
		)
		if err := rows.Scan(&c.WorldUtmID, &c.CellID, &last); err != nil {
			return nil, fmt.Errorf("scan last requested: %w", err)
		}
		c.DateLastRequested = unixTime(last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CellFirstDates returns, per populated cell, the latest across weather types
// of each type's earliest stored date.
func (s *Store) CellFirstDates(ctx context.Context) (map[int64]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT cell_id, MAX(first_date)
FROM (
    SELECT cell_id, weather_type_id, MIN(date) AS first_date
    FROM daily
    GROUP BY cell_id, weather_type_id
)
GROUP BY cell_id`)
	if err != nil {
		return nil, fmt.Errorf("query first dates: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]time.Time)
	for rows.Next() {
		var (
			cellID int64
			first  string
		)
		if err := rows.Scan(&cellID, &first); err != nil {
			return nil, fmt.Errorf("scan first date: %w", err)
		}
		d, err := parseDate(first)
		if err != nil {
			return nil, err
		}
		out[cellID] = d
	}
	return out, rows.Err()
}

// DailyStamps lists every stored (cell, date, date_requested) for one weather
// type in one polygon.
func (s *Store) DailyStamps(ctx context.Context, worldUtmID, weatherTypeID int) ([]domain.DailyStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT cell_id, date, date_requested
FROM daily
WHERE world_utm_id = ? AND weather_type_id = ?`, worldUtmID, weatherTypeID)
	if err != nil {
		return nil, fmt.Errorf("query daily stamps: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyStamp
	for rows.Next() {
		var (
			st        domain.DailyStamp
			date      string
			requested int64
		)
		if err := rows.Scan(&st.CellID, &date, &requested); err != nil {
			return nil, fmt.Errorf("scan daily stamp: %w", err)
		}
		if st.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		st.DateRequested = unixTime(requested)
		out = append(out, st)
	}
	return out, rows.Err()
}

// DailyForCell returns every stored row of one cell ordered by type, date, and
// retrieval time.
func (s *Store) DailyForCell(ctx context.Context, cellID int64) ([]domain.RetrievalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+dailyColumns+" FROM daily WHERE cell_id = ? ORDER BY weather_type_id, date, date_requested", cellID)
	if err != nil {
		return nil, fmt.Errorf("query daily for cell: %w", err)
	}
	defer rows.Close()

	var out []domain.RetrievalRecord
	for rows.Next() {
		var (
			r         domain.RetrievalRecord
			date      string
			value     sql.NullFloat64
			requested int64
		)
		if err := rows.Scan(&r.WorldUtmID, &r.CellID, &date, &r.WeatherTypeID, &value, &requested); err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		r.Value = math.NaN()
		if value.Valid {
			r.Value = value.Float64
		}
		r.DateRequested = unixTime(requested)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DuplicateDailyRows counts (cell, date, type) keys stored more than once.
func (s *Store) DuplicateDailyRows(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM (
    SELECT 1 FROM daily GROUP BY cell_id, date, weather_type_id HAVING COUNT(*) > 1
)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count duplicate daily rows: %w", err)
	}
	return n, nil
}

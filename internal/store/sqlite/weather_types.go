package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

const weatherTypeColumns = "weather_type_id, name, temporal_extent_seconds, units, description"

// EnsureWeatherTypes inserts any type not already stored by name and returns
// every requested type with its stored ID.
func (s *Store) EnsureWeatherTypes(ctx context.Context, types []domain.WeatherType) ([]domain.WeatherType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin weather type tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]domain.WeatherType, 0, len(types))
	for _, wt := range types {
		stored, err := getWeatherType(ctx, tx, wt.Name)
		if errors.Is(err, sql.ErrNoRows) {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO weather_type (name, temporal_extent_seconds, units, description) VALUES (?, ?, ?, ?)",
				wt.Name, int64(wt.TemporalExtent/time.Second), wt.Units, wt.Description)
			if err != nil {
				return nil, fmt.Errorf("insert weather type %s: %w", wt.Name, err)
			}
			stored, err = getWeatherType(ctx, tx, wt.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("get weather type %s: %w", wt.Name, err)
		}
		out = append(out, stored)
	}
	return out, tx.Commit()
}

// WeatherTypes returns every stored weather type ordered by ID.
func (s *Store) WeatherTypes(ctx context.Context) ([]domain.WeatherType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+weatherTypeColumns+" FROM weather_type ORDER BY weather_type_id")
	if err != nil {
		return nil, fmt.Errorf("query weather types: %w", err)
	}
	defer rows.Close()

	var out []domain.WeatherType
	for rows.Next() {
		wt, err := scanWeatherType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wt)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getWeatherType(ctx context.Context, tx *sql.Tx, name string) (domain.WeatherType, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+weatherTypeColumns+" FROM weather_type WHERE name = ?", name)
	return scanWeatherType(row)
}

func scanWeatherType(r rowScanner) (domain.WeatherType, error) {
	var (
		wt     domain.WeatherType
		extent int64
	)
	if err := r.Scan(&wt.ID, &wt.Name, &extent, &wt.Units, &wt.Description); err != nil {
		return domain.WeatherType{}, err
	}
	wt.TemporalExtent = time.Duration(extent) * time.Second
	return wt, nil
}

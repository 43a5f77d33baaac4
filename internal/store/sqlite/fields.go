package sqlite

import (
	"context"
	"fmt"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

const fieldColumns = "field_id, lon, lat, date_planted"

// UpsertFields stores consumer locations keyed by field ID.
func (s *Store) UpsertFields(ctx context.Context, fields []domain.ConsumerLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin field tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range fields {
		_, err := tx.ExecContext(ctx, `
INSERT INTO field (`+fieldColumns+`) VALUES (?, ?, ?, ?)
ON CONFLICT(field_id) DO UPDATE SET lon = excluded.lon, lat = excluded.lat, date_planted = excluded.date_planted`,
			f.ID, f.Point.Lon, f.Point.Lat, formatDate(f.EarliestRequiredDate))
		if err != nil {
			return fmt.Errorf("upsert field %d: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ConsumerLocations returns every field as a coverage demand.
func (s *Store) ConsumerLocations(ctx context.Context) ([]domain.ConsumerLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+fieldColumns+" FROM field ORDER BY field_id")
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	var out []domain.ConsumerLocation
	for rows.Next() {
		var (
			f       domain.ConsumerLocation
			planted string
		)
		if err := rows.Scan(&f.ID, &f.Point.Lon, &f.Point.Lat, &planted); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		if f.EarliestRequiredDate, err = parseDate(planted); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

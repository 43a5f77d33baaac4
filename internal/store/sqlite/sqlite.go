/*
Package sqlite persists the weather grid, daily observations, and the request
log in a single SQLite database.

TABLES:

	world_utm     one row per world UTM polygon, geometry as WKT
	raster_5km    the cell raster of each polygon plus its geotransform
	weather_type  daily API parameters, insert-or-get by name
	daily         append-only observations, one row per cell x date x type
	request_log   append-only outcome of every submitted request
	field         consumer locations (fields and their planting dates)

APPEND-ONLY:

daily and request_log are never updated or deleted. Re-fetching a day adds a
new daily row with a later date_requested; readers pick the most recent.

Rows are mapped into domain types as soon as they are scanned. Calendar dates
are stored as YYYY-MM-DD text and instants as unix seconds.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements every storage interface the pipeline needs.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and migrates the schema.
func New(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx, path != MemoryPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context, onDisk bool) error {
	pragmas := []string{"pragma foreign_keys=on", "pragma busy_timeout=5000"}
	if onDisk {
		pragmas = append(pragmas, "pragma journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS world_utm (
    world_utm_id       INTEGER PRIMARY KEY,
    zone               INTEGER NOT NULL,
    row                TEXT NOT NULL,
    geom               TEXT NOT NULL,
    utc_offset_seconds INTEGER NOT NULL,
    raster_epsg        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS raster_5km (
    world_utm_id INTEGER PRIMARY KEY REFERENCES world_utm(world_utm_id),
    cell_raster  BLOB NOT NULL,
    metadata     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weather_type (
    weather_type_id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name                    TEXT NOT NULL UNIQUE,
    temporal_extent_seconds INTEGER NOT NULL,
    units                   TEXT NOT NULL,
    description             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily (
    world_utm_id    INTEGER NOT NULL,
    cell_id         INTEGER NOT NULL,
    date            TEXT NOT NULL,
    weather_type_id INTEGER NOT NULL REFERENCES weather_type(weather_type_id),
    value           REAL,
    date_requested  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_zone_type_cell
    ON daily(world_utm_id, weather_type_id, cell_id, date);
CREATE INDEX IF NOT EXISTS idx_daily_cell
    ON daily(cell_id, weather_type_id);

CREATE TABLE IF NOT EXISTS request_log (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id             TEXT NOT NULL,
    mode               TEXT NOT NULL,
    zone               INTEGER NOT NULL,
    utc_offset_seconds INTEGER NOT NULL,
    request_id         INTEGER NOT NULL,
    n_points_requested INTEGER NOT NULL,
    start_date         TEXT NOT NULL,
    end_date           TEXT NOT NULL,
    parameters         TEXT NOT NULL,
    date_requested     INTEGER NOT NULL,
    status             TEXT NOT NULL,
    request_seconds    REAL NOT NULL,
    error              TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_request_log_date_requested
    ON request_log(date_requested);

CREATE TABLE IF NOT EXISTS field (
    field_id     INTEGER PRIMARY KEY,
    lon          REAL NOT NULL,
    lat          REAL NOT NULL,
    date_planted TEXT NOT NULL
);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

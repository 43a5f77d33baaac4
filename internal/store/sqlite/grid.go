package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/couchcryptid/weather-grid-sync/internal/grid"
)

const worldUtmColumns = "world_utm_id, zone, row, geom, utc_offset_seconds, raster_epsg"

// SaveGrid replaces the stored polygons and rasters in one transaction.
func (s *Store) SaveGrid(ctx context.Context, zones []grid.Zone, rasters []*grid.Raster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grid tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM raster_5km", "DELETE FROM world_utm"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear grid: %w", err)
		}
	}

	for _, z := range zones {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO world_utm ("+worldUtmColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			z.WorldUtmID, z.Zone, z.Row, wkt.MarshalString(z.Polygon),
			int64(z.UTCOffset/time.Second), z.RasterEPSG,
		)
		if err != nil {
			return fmt.Errorf("insert world utm %d: %w", z.WorldUtmID, err)
		}
	}

	for _, r := range rasters {
		meta, err := json.Marshal(r.RasterMeta)
		if err != nil {
			return fmt.Errorf("encode raster %d metadata: %w", r.WorldUtmID, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO raster_5km (world_utm_id, cell_raster, metadata) VALUES (?, ?, ?)",
			r.WorldUtmID, r.MarshalCells(), string(meta),
		)
		if err != nil {
			return fmt.Errorf("insert raster %d: %w", r.WorldUtmID, err)
		}
	}

	return tx.Commit()
}

// LoadGrid returns every stored polygon and raster, ordered by world UTM ID.
func (s *Store) LoadGrid(ctx context.Context) ([]grid.Zone, []*grid.Raster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zones, err := s.loadZones(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT cell_raster, metadata FROM raster_5km ORDER BY world_utm_id")
	if err != nil {
		return nil, nil, fmt.Errorf("query rasters: %w", err)
	}
	defer rows.Close()

	var rasters []*grid.Raster
	for rows.Next() {
		var (
			cells    []byte
			metaJSON string
			meta     grid.RasterMeta
		)
		if err := rows.Scan(&cells, &metaJSON); err != nil {
			return nil, nil, fmt.Errorf("scan raster: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, nil, fmt.Errorf("decode raster metadata: %w", err)
		}
		r, err := grid.UnmarshalRaster(meta, cells)
		if err != nil {
			return nil, nil, err
		}
		rasters = append(rasters, r)
	}
	return zones, rasters, rows.Err()
}

func (s *Store) loadZones(ctx context.Context) ([]grid.Zone, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+worldUtmColumns+" FROM world_utm ORDER BY world_utm_id")
	if err != nil {
		return nil, fmt.Errorf("query world utm: %w", err)
	}
	defer rows.Close()

	var zones []grid.Zone
	for rows.Next() {
		var (
			z         grid.Zone
			geom      string
			offsetSec int64
		)
		if err := rows.Scan(&z.WorldUtmID, &z.Zone, &z.Row, &geom, &offsetSec, &z.RasterEPSG); err != nil {
			return nil, fmt.Errorf("scan world utm: %w", err)
		}
		g, err := wkt.Unmarshal(geom)
		if err != nil {
			return nil, fmt.Errorf("world utm %d geometry: %w", z.WorldUtmID, err)
		}
		poly, ok := g.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("world utm %d geometry: got %s, want Polygon", z.WorldUtmID, g.GeoJSONType())
		}
		z.Polygon = poly
		z.UTCOffset = time.Duration(offsetSec) * time.Second
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

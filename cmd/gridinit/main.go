// Command gridinit builds the world UTM polygons and their 5 km rasters and
// stores them, replacing any previous grid. It also seeds the weather types.
//
// Usage:
//
//	go run ./cmd/gridinit -db weather.db -bbox -105,38,-101,41
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-grid-sync/internal/config"
	"github.com/couchcryptid/weather-grid-sync/internal/grid"
	"github.com/couchcryptid/weather-grid-sync/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", sharedcfg.EnvOrDefault("DB_PATH", "weather.db"), "sqlite database path")
	bbox := flag.String("bbox", os.Getenv("GRID_BBOX"), "restrict to zones intersecting minLon,minLat,maxLon,maxLat")
	pixelSize := flag.Float64("pixel-size", grid.DefaultPixelSize, "raster resolution in projected meters")
	flag.Parse()

	logger := sharedobs.NewLogger(sharedcfg.EnvOrDefault("LOG_LEVEL", "info"), sharedcfg.EnvOrDefault("LOG_FORMAT", "text"))

	if err := run(context.Background(), logger, *dbPath, *bbox, *pixelSize); err != nil {
		logger.Error("gridinit failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dbPath, bbox string, pixelSize float64) error {
	if pixelSize <= 0 {
		return fmt.Errorf("pixel size must be positive, got %v", pixelSize)
	}
	bound, err := config.ParseBBox(bbox)
	if err != nil {
		return err
	}
	params, err := config.ParametersFromEnv()
	if err != nil {
		return err
	}

	zones := grid.WorldPolygons()
	if bound != nil {
		zones = grid.FilterByBound(zones, *bound)
		if len(zones) == 0 {
			return fmt.Errorf("no zone intersects %s", bbox)
		}
	}
	logger.Info("building rasters", "zones", len(zones), "pixel_size_m", pixelSize)

	start := time.Now()
	rasters := grid.BuildAll(zones, 1, pixelSize)

	// The index refuses overlapping or inconsistent rasters, so build one
	// before anything is written.
	idx, err := grid.NewIndex(zones, rasters, grid.DefaultCacheSize)
	if err != nil {
		return fmt.Errorf("validate rasters: %w", err)
	}
	logger.Info("rasters built",
		"cells", humanize.Comma(idx.CellCount()),
		"elapsed", time.Since(start).Round(time.Millisecond))

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("sqlite close error", "error", err)
		}
	}()

	if err := store.SaveGrid(ctx, zones, rasters); err != nil {
		return err
	}
	types, err := store.EnsureWeatherTypes(ctx, params.Types())
	if err != nil {
		return err
	}

	logger.Info("grid stored", "db", dbPath, "zones", len(zones), "weather_types", len(types))
	return nil
}

// Command seedfields loads consumer locations (fields and their planting
// dates) from a CSV file into the store. Existing fields are updated in place.
//
// The CSV must have a header with the columns field_id, lon, lat, and
// date_planted (YYYY-MM-DD). Extra columns are ignored.
//
// Usage:
//
//	go run ./cmd/seedfields -db weather.db -csv data/fields.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-grid-sync/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	dbPath := flag.String("db", sharedcfg.EnvOrDefault("DB_PATH", "weather.db"), "sqlite database path")
	csvPath := flag.String("csv", "", "path to the fields CSV")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -csv")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	fields, err := readFields(f)
	if err != nil {
		return fmt.Errorf("%s: %w", *csvPath, err)
	}
	log.Printf("read %d fields", len(fields))

	ctx := context.Background()
	store, err := sqlite.New(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertFields(ctx, fields); err != nil {
		return err
	}
	log.Printf("stored %d fields in %s", len(fields), *dbPath)
	return nil
}

// Command validate audits a populated store: every grid cell must map back to
// itself through its centroid, every field must fall on the grid, daily rows
// must be unique per (cell, date, type), and the request log must only hold
// known statuses.
//
// Usage:
//
//	go run ./cmd/validate -db weather.db -stride 1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/grid"
	"github.com/couchcryptid/weather-grid-sync/internal/store/sqlite"
)

// maxReported caps the detailed errors kept per phase.
const maxReported = 50

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	dropped int
}

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) >= maxReported {
		p.dropped++
		return
	}
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", sharedcfg.EnvOrDefault("DB_PATH", "weather.db"), "sqlite database path")
	stride := flag.Int64("stride", 1, "check every n-th cell of each raster")
	flag.Parse()

	if *stride < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(context.Background(), *dbPath, *stride); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, dbPath string, stride int64) int {
	fmt.Println("=== Weather Grid Integrity Validation ===")
	fmt.Println()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	zones, rasters, err := store.LoadGrid(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load grid: %v\n", err)
		return 1
	}
	idx, err := grid.NewIndex(zones, rasters, grid.DefaultCacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: build index: %v\n", err)
		return 1
	}

	fields, err := store.ConsumerLocations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fields: %v\n", err)
		return 1
	}

	gridPhase, checked := validateGridRoundTrip(idx, stride)
	phases := []*phase{
		gridPhase,
		validateFields(idx, fields),
		validateDaily(ctx, store),
		validateRequestLog(ctx, store),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors)+p.dropped)
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Grid: %d zones, %s cells (%s checked), %d fields\n",
		len(zones), humanize.Comma(idx.CellCount()), humanize.Comma(checked), len(fields))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		if p.dropped > 0 {
			fmt.Printf("  ... and %d more\n", p.dropped)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateGridRoundTrip checks that locating a cell's centroid returns the
// same cell and zone.
func validateGridRoundTrip(idx *grid.Index, stride int64) (*phase, int64) {
	p := &phase{name: "Grid: centroid round trip"}
	var checked int64
	for _, r := range idx.Rasters() {
		if r.Empty() {
			continue
		}
		for id := r.CellMin; id <= r.CellMax; id += stride {
			checked++
			c, err := idx.CentroidForCell(r.WorldUtmID, id)
			if err != nil {
				p.errorf("cell %d: %v", id, err)
				continue
			}
			got, err := idx.Locate(c.Point())
			if err != nil {
				p.errorf("cell %d centroid %s: %v", id, c.Key(), err)
				continue
			}
			if got.CellID != id || got.WorldUtmID != r.WorldUtmID {
				p.errorf("cell %d (world utm %d) centroid %s locates to cell %d (world utm %d)",
					id, r.WorldUtmID, c.Key(), got.CellID, got.WorldUtmID)
			}
		}
	}
	return p, checked
}

func validateFields(idx *grid.Index, fields []domain.ConsumerLocation) *phase {
	p := &phase{name: "Fields: covered by grid"}
	for _, f := range fields {
		if _, err := idx.Locate(f.Point); err != nil {
			p.errorf("field %d at (%v, %v): %v", f.ID, f.Point.Lon, f.Point.Lat, err)
		}
	}
	return p
}

func validateDaily(ctx context.Context, store *sqlite.Store) *phase {
	p := &phase{name: "Daily: unique (cell, date, type)"}
	n, err := store.DuplicateDailyRows(ctx)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if n > 0 {
		p.errorf("%s keys stored more than once", humanize.Comma(int64(n)))
	}
	return p
}

func validateRequestLog(ctx context.Context, store *sqlite.Store) *phase {
	p := &phase{name: "Request log: known statuses"}
	counts, err := store.RequestStatusCounts(ctx)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		n := counts[domain.Status(s)]
		fmt.Printf("  request_log %-8s %s\n", s, humanize.Comma(int64(n)))
		switch domain.Status(s) {
		case domain.StatusSuccess, domain.StatusFail:
		default:
			p.errorf("%d rows with unknown status %q", n, s)
		}
	}
	return p
}

// Package inventory decides which cells and dates still need weather data.
//
// Three workflows diff required coverage against what is stored:
//
//   - Update refetches the trailing unstable day and the forecast horizon of
//     every populated cell.
//   - Add covers cells newly required by consumer locations, or required
//     further back in time than what is stored.
//   - Fill audits every (cell, date, parameter) of the combined need and
//     reports the individual gaps.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// Store is the read side of the daily table and the consumer feed.
type Store interface {
	CellsLastRequested(ctx context.Context) ([]domain.CellLastRequested, error)
	CellFirstDates(ctx context.Context) (map[int64]time.Time, error)
	ConsumerLocations(ctx context.Context) ([]domain.ConsumerLocation, error)
	DailyStamps(ctx context.Context, worldUtmID, weatherTypeID int) ([]domain.DailyStamp, error)
}

// Grid resolves points and cells against the weather grid.
type Grid interface {
	Locate(p domain.Point) (domain.GridCell, error)
	Cell(worldUtmID int, cellID int64) (domain.GridCell, error)
	CentroidForCell(worldUtmID int, cellID int64) (domain.Centroid, error)
	WestmostOffset() time.Duration
}

// Engine computes coverage requirements.
type Engine struct {
	store        Store
	grid         Grid
	clock        clockwork.Clock
	logger       *slog.Logger
	historyYears int
	forecastDays int
}

// New creates an Engine. historyYears is how many whole years before a
// consumer's earliest required date are kept; forecastDays is the horizon past
// the current local date.
func New(store Store, grid Grid, clock clockwork.Clock, logger *slog.Logger, historyYears, forecastDays int) *Engine {
	return &Engine{
		store:        store,
		grid:         grid,
		clock:        clock,
		logger:       logger,
		historyYears: historyYears,
		forecastDays: forecastDays,
	}
}

// DateLast is the last date any workflow asks for.
func (e *Engine) DateLast() time.Time {
	return domain.AddDays(domain.MinCurrentLocalDate(e.clock.Now(), e.grid.WestmostOffset()), e.forecastDays)
}

// Update returns, per populated cell, the window from the first date its last
// fetch left unstable up to the forecast horizon. Cells already fetched today
// (UTC) are skipped.
func (e *Engine) Update(ctx context.Context) ([]domain.CoverageRequirement, error) {
	reqs, err := e.update(ctx, true)
	if err != nil {
		return nil, err
	}
	e.logger.Info("update coverage computed", "cells", len(reqs))
	return reqs, nil
}

func (e *Engine) update(ctx context.Context, skipToday bool) ([]domain.CoverageRequirement, error) {
	cells, err := e.store.CellsLastRequested(ctx)
	if err != nil {
		return nil, fmt.Errorf("cells last requested: %w", err)
	}

	todayUTC := domain.Day(e.clock.Now().UTC())
	dateLast := e.DateLast()

	var out []domain.CoverageRequirement
	for _, c := range cells {
		if skipToday && domain.Day(c.DateLastRequested).Equal(todayUTC) {
			continue
		}
		cell, err := e.grid.Cell(c.WorldUtmID, c.CellID)
		if err != nil {
			e.logger.Warn("stored cell not in grid, skipping", "world_utm_id", c.WorldUtmID, "cell_id", c.CellID, "error", err)
			continue
		}
		dateFirst := domain.FirstUnstableDate(domain.Localize(c.DateLastRequested, cell.UTCOffset))
		if dateFirst.After(dateLast) {
			continue
		}
		req, err := e.requirement(cell, dateFirst, dateLast)
		if err != nil {
			e.logger.Warn("no centroid for cell, skipping", "cell_id", c.CellID, "error", err)
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// Add returns the coverage consumer locations require but the store lacks.
// Cells with no stored data get their whole window; cells whose stored data
// starts in a later year get only the earlier gap. It fails with
// domain.ErrNoDemand when there are no consumer locations at all.
func (e *Engine) Add(ctx context.Context) ([]domain.CoverageRequirement, error) {
	demand, err := e.demand(ctx)
	if err != nil {
		return nil, err
	}
	firsts, err := e.store.CellFirstDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("cell first dates: %w", err)
	}

	var out []domain.CoverageRequirement
	for _, req := range demand {
		existing, ok := firsts[req.CellID]
		if !ok {
			out = append(out, req)
			continue
		}
		firstYear := domain.Jan1(existing.Year())
		if !req.DateFirst.Before(firstYear) {
			continue
		}
		req.DateLast = domain.Dec31(existing.Year() - 1)
		out = append(out, req)
	}
	e.logger.Info("add coverage computed", "demand_cells", len(demand), "cells", len(out))
	return out, nil
}

// demand maps every consumer location to its cell and keeps, per cell, the
// earliest required first date. Locations outside the grid are skipped.
func (e *Engine) demand(ctx context.Context) ([]domain.CoverageRequirement, error) {
	locations, err := e.store.ConsumerLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("consumer locations: %w", err)
	}
	if len(locations) == 0 {
		return nil, domain.ErrNoDemand
	}

	dateLast := e.DateLast()
	byCell := make(map[int64]domain.CoverageRequirement)
	for _, loc := range locations {
		cell, err := e.grid.Locate(loc.Point)
		if err != nil {
			if errors.Is(err, domain.ErrNoCoverage) {
				e.logger.Warn("consumer location outside grid, skipping", "location_id", loc.ID, "lon", loc.Point.Lon, "lat", loc.Point.Lat)
				continue
			}
			return nil, fmt.Errorf("locate consumer %d: %w", loc.ID, err)
		}
		dateFirst := domain.Jan1(loc.EarliestRequiredDate.Year() - e.historyYears)
		if prev, ok := byCell[cell.CellID]; ok {
			if dateFirst.Before(prev.DateFirst) {
				prev.DateFirst = dateFirst
				byCell[cell.CellID] = prev
			}
			continue
		}
		req, err := e.requirement(cell, dateFirst, dateLast)
		if err != nil {
			return nil, fmt.Errorf("centroid for consumer %d: %w", loc.ID, err)
		}
		byCell[cell.CellID] = req
	}
	return sortRequirements(byCell), nil
}

func (e *Engine) requirement(cell domain.GridCell, dateFirst, dateLast time.Time) (domain.CoverageRequirement, error) {
	c, err := e.grid.CentroidForCell(cell.WorldUtmID, cell.CellID)
	if err != nil {
		return domain.CoverageRequirement{}, err
	}
	return domain.CoverageRequirement{
		WorldUtmID: cell.WorldUtmID,
		Zone:       cell.Zone,
		UTCOffset:  cell.UTCOffset,
		CellID:     cell.CellID,
		Centroid:   c,
		DateFirst:  dateFirst,
		DateLast:   dateLast,
	}, nil
}

func sortRequirements(byCell map[int64]domain.CoverageRequirement) []domain.CoverageRequirement {
	out := make([]domain.CoverageRequirement, 0, len(byCell))
	for _, r := range byCell {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorldUtmID != out[j].WorldUtmID {
			return out[i].WorldUtmID < out[j].WorldUtmID
		}
		return out[i].CellID < out[j].CellID
	})
	return out
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

type stampKey struct {
	cellID int64
	date   time.Time
}

// Fill audits every (cell, date, weather type) of the combined add and update
// need. A stored row satisfies a date when it was fetched late enough to be
// stable, or when the date is still inside the recent window that update
// refetches anyway. Everything else is a gap.
func (e *Engine) Fill(ctx context.Context, types []domain.WeatherType) ([]domain.FillItem, error) {
	needs, err := e.fillNeeds(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var gaps []domain.FillItem
	for _, zone := range groupByZone(needs) {
		for _, wt := range types {
			stamps, err := e.store.DailyStamps(ctx, zone[0].WorldUtmID, wt.ID)
			if err != nil {
				return nil, fmt.Errorf("daily stamps for world utm %d type %s: %w", zone[0].WorldUtmID, wt.Name, err)
			}
			latest := make(map[stampKey]time.Time, len(stamps))
			for _, st := range stamps {
				k := stampKey{st.CellID, st.Date}
				if st.DateRequested.After(latest[k]) {
					latest[k] = st.DateRequested
				}
			}

			for _, req := range zone {
				lastStable := domain.LastStableDate(domain.Localize(now, req.UTCOffset))
				for _, d := range domain.DateRange(req.DateFirst, req.DateLast) {
					if requested, ok := latest[stampKey{req.CellID, d}]; ok {
						stable := domain.FirstUnstableDate(domain.Localize(requested, req.UTCOffset)).After(d)
						recent := d.After(lastStable)
						if stable || recent {
							continue
						}
					}
					gaps = append(gaps, domain.FillItem{
						WorldUtmID: req.WorldUtmID,
						Zone:       req.Zone,
						UTCOffset:  req.UTCOffset,
						CellID:     req.CellID,
						Centroid:   req.Centroid,
						Date:       d,
						Parameter:  wt.Name,
					})
				}
			}
		}
	}
	e.logger.Info("fill gaps computed", "cells", len(needs), "gaps", len(gaps))
	return gaps, nil
}

// fillNeeds unions raw consumer demand with the update windows of populated
// cells, keeping per cell the earliest first and latest last date.
func (e *Engine) fillNeeds(ctx context.Context) ([]domain.CoverageRequirement, error) {
	demand, err := e.demand(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoDemand) {
		return nil, err
	}
	updates, err := e.update(ctx, false)
	if err != nil {
		return nil, err
	}

	byCell := make(map[int64]domain.CoverageRequirement, len(demand)+len(updates))
	for _, reqs := range [][]domain.CoverageRequirement{demand, updates} {
		for _, r := range reqs {
			prev, ok := byCell[r.CellID]
			if !ok {
				byCell[r.CellID] = r
				continue
			}
			prev.DateFirst = domain.MinDate(prev.DateFirst, r.DateFirst)
			prev.DateLast = domain.MaxDate(prev.DateLast, r.DateLast)
			byCell[r.CellID] = prev
		}
	}
	return sortRequirements(byCell), nil
}

// groupByZone splits requirements sorted by world UTM ID into runs.
func groupByZone(reqs []domain.CoverageRequirement) [][]domain.CoverageRequirement {
	var out [][]domain.CoverageRequirement
	for i := 0; i < len(reqs); {
		j := i
		for j < len(reqs) && reqs[j].WorldUtmID == reqs[i].WorldUtmID {
			j++
		}
		out = append(out, reqs[i:j])
		i = j
	}
	return out
}

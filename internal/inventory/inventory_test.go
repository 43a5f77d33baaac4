package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/inventory"
)

// --- mocks ---

type fakeStore struct {
	last      []domain.CellLastRequested
	firsts    map[int64]time.Time
	locations []domain.ConsumerLocation
	stamps    map[[2]int][]domain.DailyStamp
	err       error
}

func (f *fakeStore) CellsLastRequested(context.Context) ([]domain.CellLastRequested, error) {
	return f.last, f.err
}

func (f *fakeStore) CellFirstDates(context.Context) (map[int64]time.Time, error) {
	return f.firsts, f.err
}

func (f *fakeStore) ConsumerLocations(context.Context) ([]domain.ConsumerLocation, error) {
	return f.locations, f.err
}

func (f *fakeStore) DailyStamps(_ context.Context, worldUtmID, weatherTypeID int) ([]domain.DailyStamp, error) {
	return f.stamps[[2]int{worldUtmID, weatherTypeID}], f.err
}

// fakeGrid places cell N at lon N/100 and resolves points by exact match.
type fakeGrid struct {
	cells  map[int64]domain.GridCell
	points map[domain.Point]int64
}

func newFakeGrid(cells ...domain.GridCell) *fakeGrid {
	g := &fakeGrid{cells: make(map[int64]domain.GridCell), points: make(map[domain.Point]int64)}
	for _, c := range cells {
		g.cells[c.CellID] = c
		g.points[pointOf(c.CellID)] = c.CellID
	}
	return g
}

func pointOf(cellID int64) domain.Point {
	return domain.Point{Lon: float64(cellID) / 100, Lat: 10}
}

func (g *fakeGrid) Locate(p domain.Point) (domain.GridCell, error) {
	id, ok := g.points[p]
	if !ok {
		return domain.GridCell{}, fmt.Errorf("%v: %w", p, domain.ErrNoCoverage)
	}
	return g.cells[id], nil
}

func (g *fakeGrid) Cell(_ int, cellID int64) (domain.GridCell, error) {
	c, ok := g.cells[cellID]
	if !ok {
		return domain.GridCell{}, domain.ErrUnknownCell
	}
	return c, nil
}

func (g *fakeGrid) CentroidForCell(_ int, cellID int64) (domain.Centroid, error) {
	p := pointOf(cellID)
	return domain.NewCentroid(p.Lon, p.Lat), nil
}

func (g *fakeGrid) WestmostOffset() time.Duration { return -12 * time.Hour }

// --- helpers ---

var (
	// 13:00 UTC is past the westmost zone's midnight, so today is current everywhere.
	testNow = time.Date(2024, 4, 26, 13, 0, 0, 0, time.UTC)
	mst     = -7 * time.Hour
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cell(worldUtmID int, id int64, offset time.Duration) domain.GridCell {
	return domain.GridCell{WorldUtmID: worldUtmID, Zone: 14, Row: "S", CellID: id, UTCOffset: offset}
}

func newEngine(store inventory.Store, g inventory.Grid, historyYears int) *inventory.Engine {
	return inventory.New(store, g, clockwork.NewFakeClockAt(testNow), slog.New(slog.DiscardHandler), historyYears, 7)
}

func requirement(c domain.GridCell, first, last time.Time) domain.CoverageRequirement {
	p := pointOf(c.CellID)
	return domain.CoverageRequirement{
		WorldUtmID: c.WorldUtmID, Zone: c.Zone, UTCOffset: c.UTCOffset, CellID: c.CellID,
		Centroid: domain.NewCentroid(p.Lon, p.Lat), DateFirst: first, DateLast: last,
	}
}

// --- update ---

func TestEngine_Update(t *testing.T) {
	a, b := cell(1, 10, mst), cell(1, 11, mst)
	store := &fakeStore{last: []domain.CellLastRequested{
		{WorldUtmID: 1, CellID: 10, DateLastRequested: time.Date(2024, 4, 20, 13, 0, 0, 0, time.UTC)},
		{WorldUtmID: 1, CellID: 11, DateLastRequested: time.Date(2024, 4, 26, 2, 0, 0, 0, time.UTC)},
		{WorldUtmID: 1, CellID: 99, DateLastRequested: time.Date(2024, 4, 20, 13, 0, 0, 0, time.UTC)},
	}}

	got, err := newEngine(store, newFakeGrid(a, b), 10).Update(context.Background())
	require.NoError(t, err)

	// 2024-04-20 13:00 UTC is 06:00 local; the day before is the first unstable date.
	want := []domain.CoverageRequirement{requirement(a, day(2024, 4, 19), day(2024, 5, 3))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_Update_LocalDateShiftsFirstDate(t *testing.T) {
	east := cell(2, 20, 9*time.Hour)
	store := &fakeStore{last: []domain.CellLastRequested{
		// 20:00 UTC is already the 21st at +09:00.
		{WorldUtmID: 2, CellID: 20, DateLastRequested: time.Date(2024, 4, 20, 20, 0, 0, 0, time.UTC)},
	}}

	got, err := newEngine(store, newFakeGrid(east), 10).Update(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(2024, 4, 20), got[0].DateFirst)
}

func TestEngine_Update_ColdStart(t *testing.T) {
	got, err := newEngine(&fakeStore{}, newFakeGrid(), 10).Update(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_Update_StoreError(t *testing.T) {
	_, err := newEngine(&fakeStore{err: errors.New("db down")}, newFakeGrid(), 10).Update(context.Background())
	assert.Error(t, err)
}

// --- add ---

func TestEngine_Add_NoDemand(t *testing.T) {
	_, err := newEngine(&fakeStore{}, newFakeGrid(), 10).Add(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoDemand))
}

func TestEngine_Add_FreshCell(t *testing.T) {
	c := cell(1, 10, mst)
	store := &fakeStore{locations: []domain.ConsumerLocation{
		{ID: 1, Point: pointOf(10), EarliestRequiredDate: day(2021, 5, 1)},
	}}

	got, err := newEngine(store, newFakeGrid(c), 10).Add(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.CoverageRequirement{requirement(c, day(2011, 1, 1), day(2024, 5, 3))}, got)
}

func TestEngine_Add_DedupesToEarliestAndSkipsUncovered(t *testing.T) {
	c := cell(1, 10, mst)
	store := &fakeStore{locations: []domain.ConsumerLocation{
		{ID: 1, Point: pointOf(10), EarliestRequiredDate: day(2021, 5, 1)},
		{ID: 2, Point: pointOf(10), EarliestRequiredDate: day(2019, 3, 1)},
		{ID: 3, Point: domain.Point{Lon: 170, Lat: 89}, EarliestRequiredDate: day(2000, 1, 1)},
	}}

	got, err := newEngine(store, newFakeGrid(c), 10).Add(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(2009, 1, 1), got[0].DateFirst)
}

func TestEngine_Add_ExistingCells(t *testing.T) {
	early, same, later := cell(1, 10, mst), cell(1, 11, mst), cell(2, 30, 0)
	store := &fakeStore{
		locations: []domain.ConsumerLocation{
			{ID: 1, Point: pointOf(10), EarliestRequiredDate: day(2021, 5, 1)},
			{ID: 2, Point: pointOf(11), EarliestRequiredDate: day(2021, 5, 1)},
			{ID: 3, Point: pointOf(30), EarliestRequiredDate: day(2021, 5, 1)},
		},
		firsts: map[int64]time.Time{
			10: day(2015, 3, 1),
			11: day(2011, 1, 1),
		},
	}

	got, err := newEngine(store, newFakeGrid(early, same, later), 10).Add(context.Background())
	require.NoError(t, err)

	want := []domain.CoverageRequirement{
		requirement(early, day(2011, 1, 1), day(2014, 12, 31)),
		requirement(later, day(2011, 1, 1), day(2024, 5, 3)),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("add mismatch (-want +got):\n%s", diff)
	}
}

// --- fill ---

func TestEngine_Fill(t *testing.T) {
	c := cell(1, 10, mst)
	tmin := domain.WeatherType{ID: 1, Name: "t_min_2m_24h:C"}
	fetched := time.Date(2024, 4, 25, 13, 0, 0, 0, time.UTC)

	var stamps []domain.DailyStamp
	for _, d := range domain.DateRange(day(2024, 1, 1), day(2024, 5, 3)) {
		if d.Equal(day(2024, 2, 10)) {
			continue
		}
		stamps = append(stamps, domain.DailyStamp{CellID: 10, Date: d, DateRequested: fetched})
	}

	store := &fakeStore{
		locations: []domain.ConsumerLocation{{ID: 1, Point: pointOf(10), EarliestRequiredDate: day(2024, 3, 1)}},
		stamps:    map[[2]int][]domain.DailyStamp{{1, 1}: stamps},
	}

	got, err := newEngine(store, newFakeGrid(c), 0).Fill(context.Background(), []domain.WeatherType{tmin})
	require.NoError(t, err)

	// 02-10 was never fetched. 04-24 was fetched on its own unstable day and
	// is already older than the recent window.
	var dates []time.Time
	for _, g := range got {
		assert.Equal(t, tmin.Name, g.Parameter)
		assert.Equal(t, int64(10), g.CellID)
		dates = append(dates, g.Date)
	}
	assert.Equal(t, []time.Time{day(2024, 2, 10), day(2024, 4, 24)}, dates)
}

func TestEngine_Fill_UnionsUpdateOnlyCells(t *testing.T) {
	c := cell(1, 10, mst)
	wt := domain.WeatherType{ID: 3, Name: "precip_24h:mm"}
	store := &fakeStore{
		last: []domain.CellLastRequested{
			// Fetched today: skipped by update, but still audited by fill.
			{WorldUtmID: 1, CellID: 10, DateLastRequested: time.Date(2024, 4, 26, 10, 0, 0, 0, time.UTC)},
		},
	}

	got, err := newEngine(store, newFakeGrid(c), 10).Fill(context.Background(), []domain.WeatherType{wt})
	require.NoError(t, err)
	// Local fetch time is 03:00 on the 26th, so the window starts on the 25th.
	require.Len(t, got, len(domain.DateRange(day(2024, 4, 25), day(2024, 5, 3))))
	assert.Equal(t, day(2024, 4, 25), got[0].Date)
}

func TestEngine_Fill_NothingToAudit(t *testing.T) {
	got, err := newEngine(&fakeStore{}, newFakeGrid(), 10).Fill(context.Background(), domain.DailyWeatherTypes)
	require.NoError(t, err)
	assert.Empty(t, got)
}

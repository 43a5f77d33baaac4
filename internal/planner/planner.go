// Package planner packs coverage requirements into weather API requests.
//
// Every request covers exactly one UTM zone, so its end-of-day instants share
// one UTC offset. Update and add requests are split by zone, then (add only)
// by calendar year, then by parameter group, then into chunks of at most the
// group's cell cap. Fill requests are split by zone, parameter stride, and
// year, and carry the exact gaps they are meant to close.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// ParameterGroup is a set of parameters requested together and the largest
// number of cells one request for it may carry.
type ParameterGroup struct {
	Parameters []string
	MaxCells   int
}

// Planner builds request descriptors.
type Planner struct {
	update  []ParameterGroup
	add     []ParameterGroup
	fillCap int
}

// New validates the update and add groups and returns a Planner.
func New(update, add []ParameterGroup, fillCap int) (*Planner, error) {
	if err := validateGroups("update", update); err != nil {
		return nil, err
	}
	if err := validateGroups("add", add); err != nil {
		return nil, err
	}
	if fillCap < 1 {
		return nil, errors.New("planner: fill cell cap must be >= 1")
	}
	return &Planner{update: update, add: add, fillCap: fillCap}, nil
}

func validateGroups(mode string, groups []ParameterGroup) error {
	if len(groups) == 0 {
		return fmt.Errorf("planner: at least one %s parameter group is required", mode)
	}
	for i, g := range groups {
		if len(g.Parameters) == 0 || len(g.Parameters) > domain.MaxParametersPerRequest {
			return fmt.Errorf("planner: %s group %d has %d parameters, want 1..%d", mode, i, len(g.Parameters), domain.MaxParametersPerRequest)
		}
		if g.MaxCells < 1 {
			return fmt.Errorf("planner: %s group %d cell cap must be >= 1", mode, i)
		}
	}
	return nil
}

// PlanUpdate splits requirements by zone, parameter group, and cell cap.
func (p *Planner) PlanUpdate(reqs []domain.CoverageRequirement) []domain.RequestDescriptor {
	var b builder
	for _, zone := range splitByZone(reqs) {
		cells := targets(zone)
		for _, g := range p.update {
			for _, chunk := range chunkTargets(cells, g.MaxCells) {
				b.add(domain.ModeUpdate, zone[0].Zone, zone[0].UTCOffset, g.Parameters, chunk, nil)
			}
		}
	}
	return b.out
}

// PlanAdd splits requirements by zone, calendar year, parameter group, and
// cell cap. Each cell's window is clipped to the year.
func (p *Planner) PlanAdd(reqs []domain.CoverageRequirement) []domain.RequestDescriptor {
	var b builder
	for _, zone := range splitByZone(reqs) {
		for _, year := range splitByYear(zone) {
			for _, g := range p.add {
				for _, chunk := range chunkTargets(year, g.MaxCells) {
					b.add(domain.ModeAdd, zone[0].Zone, zone[0].UTCOffset, g.Parameters, chunk, nil)
				}
			}
		}
	}
	return b.out
}

// PlanFill packs individual gaps. Per zone, the distinct gap parameters are
// striped into groups of at most ten; within each group gaps are split by
// year, their cells deduplicated, and chunked by the fill cap.
func (p *Planner) PlanFill(items []domain.FillItem) []domain.RequestDescriptor {
	byZone := make(map[int][]domain.FillItem)
	for _, it := range items {
		byZone[it.Zone] = append(byZone[it.Zone], it)
	}

	var b builder
	for _, z := range sortedKeys(byZone) {
		zoneItems := byZone[z]
		for _, params := range strideParameters(distinctParameters(zoneItems)) {
			inGroup := make(map[string]bool, len(params))
			for _, name := range params {
				inGroup[name] = true
			}

			byYear := make(map[int][]domain.FillItem)
			for _, it := range zoneItems {
				if inGroup[it.Parameter] {
					byYear[it.Date.Year()] = append(byYear[it.Date.Year()], it)
				}
			}

			for _, y := range sortedKeys(byYear) {
				cells, gapsByCell := fillTargets(byYear[y])
				for _, chunk := range chunkTargets(cells, p.fillCap) {
					var gaps []domain.FillItem
					for _, c := range chunk {
						gaps = append(gaps, gapsByCell[c.CellID]...)
					}
					b.add(domain.ModeFill, z, zoneItems[0].UTCOffset, params, chunk, gaps)
				}
			}
		}
	}
	return b.out
}

type builder struct {
	out []domain.RequestDescriptor
}

func (b *builder) add(mode domain.Mode, zone int, offset time.Duration, params []string, cells []domain.CellTarget, gaps []domain.FillItem) {
	first, last := cells[0].DateFirst, cells[0].DateLast
	for _, c := range cells[1:] {
		first = domain.MinDate(first, c.DateFirst)
		last = domain.MaxDate(last, c.DateLast)
	}
	days := len(domain.DateRange(first, last))

	b.out = append(b.out, domain.RequestDescriptor{
		RequestID:        len(b.out) + 1,
		Mode:             mode,
		Zone:             zone,
		UTCOffset:        offset,
		Cells:            cells,
		StartDateUTC:     domain.EndOfDayUTC(first, offset),
		EndDateUTC:       domain.EndOfDayUTC(last, offset),
		Parameters:       append([]string(nil), params...),
		NPointsRequested: len(params) * days * len(cells),
		Gaps:             gaps,
	})
}

// splitByZone groups requirements by zone number, zones ascending, keeping
// input order within a zone.
func splitByZone(reqs []domain.CoverageRequirement) [][]domain.CoverageRequirement {
	byZone := make(map[int][]domain.CoverageRequirement)
	for _, r := range reqs {
		byZone[r.Zone] = append(byZone[r.Zone], r)
	}
	out := make([][]domain.CoverageRequirement, 0, len(byZone))
	for _, z := range sortedKeys(byZone) {
		out = append(out, byZone[z])
	}
	return out
}

// splitByYear clips every requirement to each calendar year it spans.
func splitByYear(reqs []domain.CoverageRequirement) [][]domain.CellTarget {
	byYear := make(map[int][]domain.CellTarget)
	for _, r := range reqs {
		for y := r.DateFirst.Year(); y <= r.DateLast.Year(); y++ {
			byYear[y] = append(byYear[y], domain.CellTarget{
				WorldUtmID: r.WorldUtmID,
				CellID:     r.CellID,
				Centroid:   r.Centroid,
				DateFirst:  domain.MaxDate(r.DateFirst, domain.Jan1(y)),
				DateLast:   domain.MinDate(r.DateLast, domain.Dec31(y)),
			})
		}
	}
	out := make([][]domain.CellTarget, 0, len(byYear))
	for _, y := range sortedKeys(byYear) {
		out = append(out, byYear[y])
	}
	return out
}

func targets(reqs []domain.CoverageRequirement) []domain.CellTarget {
	out := make([]domain.CellTarget, len(reqs))
	for i, r := range reqs {
		out[i] = domain.CellTarget{
			WorldUtmID: r.WorldUtmID,
			CellID:     r.CellID,
			Centroid:   r.Centroid,
			DateFirst:  r.DateFirst,
			DateLast:   r.DateLast,
		}
	}
	return out
}

// fillTargets deduplicates the cells of items in first-seen order, giving each
// the span of its gap dates.
func fillTargets(items []domain.FillItem) ([]domain.CellTarget, map[int64][]domain.FillItem) {
	var cells []domain.CellTarget
	index := make(map[int64]int)
	gaps := make(map[int64][]domain.FillItem)
	for _, it := range items {
		gaps[it.CellID] = append(gaps[it.CellID], it)
		i, ok := index[it.CellID]
		if !ok {
			index[it.CellID] = len(cells)
			cells = append(cells, domain.CellTarget{
				WorldUtmID: it.WorldUtmID,
				CellID:     it.CellID,
				Centroid:   it.Centroid,
				DateFirst:  it.Date,
				DateLast:   it.Date,
			})
			continue
		}
		cells[i].DateFirst = domain.MinDate(cells[i].DateFirst, it.Date)
		cells[i].DateLast = domain.MaxDate(cells[i].DateLast, it.Date)
	}
	return cells, gaps
}

func chunkTargets(cells []domain.CellTarget, size int) [][]domain.CellTarget {
	var out [][]domain.CellTarget
	for start := 0; start < len(cells); start += size {
		end := min(start+size, len(cells))
		out = append(out, cells[start:end])
	}
	return out
}

func distinctParameters(items []domain.FillItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if !seen[it.Parameter] {
			seen[it.Parameter] = true
			out = append(out, it.Parameter)
		}
	}
	return out
}

// strideParameters deals params round-robin into the fewest groups of at most
// MaxParametersPerRequest.
func strideParameters(params []string) [][]string {
	n := (len(params) + domain.MaxParametersPerRequest - 1) / domain.MaxParametersPerRequest
	out := make([][]string, n)
	for i, name := range params {
		out[i%n] = append(out[i%n], name)
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

package runner

import (
	"sort"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// CutAlongZones keeps at most n descriptors without splitting a zone. Zones
// with the fewest descriptors are kept first (ties by first appearance) while
// the running total stays within n. Kept descriptors stay in input order.
func CutAlongZones(descriptors []domain.RequestDescriptor, n int) []domain.RequestDescriptor {
	if len(descriptors) <= n {
		return descriptors
	}

	type zoneCount struct {
		zone  int
		count int
	}
	var zones []zoneCount
	index := make(map[int]int)
	for _, d := range descriptors {
		i, ok := index[d.Zone]
		if !ok {
			i = len(zones)
			index[d.Zone] = i
			zones = append(zones, zoneCount{zone: d.Zone})
		}
		zones[i].count++
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].count < zones[j].count })

	keep := make(map[int]bool)
	total := 0
	for _, z := range zones {
		if total+z.count > n {
			break
		}
		total += z.count
		keep[z.zone] = true
	}

	out := make([]domain.RequestDescriptor, 0, total)
	for _, d := range descriptors {
		if keep[d.Zone] {
			out = append(out, d)
		}
	}
	return out
}

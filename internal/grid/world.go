package grid

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// PolarZone is the zone number used for the four UPS polygons.
const PolarZone = 0

// Zone is one world UTM polygon: a UTM zone clipped to a latitude band, or one
// half of a polar cap. Polygon is in WGS84 lon/lat.
type Zone struct {
	WorldUtmID int
	Zone       int
	Row        string
	Polygon    orb.Polygon
	UTCOffset  time.Duration
	RasterEPSG int
}

// South reports whether the zone lies in the southern hemisphere.
func (z Zone) South() bool {
	return z.Row < "N"
}

// Polar reports whether the zone is one of the UPS caps.
func (z Zone) Polar() bool {
	return z.Zone == PolarZone
}

// Projection returns the planar projection the zone's raster is built in.
func (z Zone) Projection() Projection {
	if z.Polar() {
		return NewUPS(z.South())
	}
	return NewUTM(z.Zone, z.South())
}

// Bound returns the lon/lat bounding box of the polygon.
func (z Zone) Bound() orb.Bound {
	return z.Polygon.Bound()
}

func (z Zone) String() string {
	return fmt.Sprintf("%d%s", z.Zone, z.Row)
}

// ZoneUTCOffset is the whole-hour offset of a zone's central meridian.
func ZoneUTCOffset(zone int) time.Duration {
	if zone == PolarZone {
		return 0
	}
	return time.Duration(math.Round(float64(6*zone-183)/15)) * time.Hour
}

var bandLetters = []string{"C", "D", "E", "F", "G", "H", "J", "K", "L", "M", "N", "P", "Q", "R", "S", "T", "U", "V", "W", "X"}

type lonSpan struct{ west, east float64 }

// Zones 32X, 34X and 36X do not exist; the odd X zones are widened instead.
var xBandSpans = map[int]lonSpan{
	31: {0, 9},
	33: {9, 21},
	35: {21, 33},
	37: {33, 42},
}

// WorldPolygons generates every world UTM polygon, sorted by (row, zone) and
// numbered from 1 in that order.
func WorldPolygons() []Zone {
	var zones []Zone

	for i, band := range bandLetters {
		south := -80 + 8*float64(i)
		north := south + 8
		if band == "X" {
			north = 84
		}
		for zone := 1; zone <= 60; zone++ {
			west := float64(6*zone - 186)
			east := west + 6
			switch band {
			case "V":
				if zone == 31 {
					east = 3
				}
				if zone == 32 {
					west = 3
				}
			case "X":
				if zone >= 32 && zone <= 36 && zone%2 == 0 {
					continue
				}
				if span, ok := xBandSpans[zone]; ok {
					west, east = span.west, span.east
				}
			}
			zones = append(zones, newZone(zone, band, west, south, east, north))
		}
	}

	zones = append(zones,
		newZone(PolarZone, "A", -180, -90, 0, -80),
		newZone(PolarZone, "B", 0, -90, 180, -80),
		newZone(PolarZone, "Y", -180, 84, 0, 90),
		newZone(PolarZone, "Z", 0, 84, 180, 90),
	)

	sort.Slice(zones, func(i, j int) bool {
		if zones[i].Row != zones[j].Row {
			return zones[i].Row < zones[j].Row
		}
		return zones[i].Zone < zones[j].Zone
	})
	for i := range zones {
		zones[i].WorldUtmID = i + 1
	}
	return zones
}

func newZone(zone int, row string, west, south, east, north float64) Zone {
	z := Zone{
		Zone:      zone,
		Row:       row,
		Polygon:   rectangle(west, south, east, north),
		UTCOffset: ZoneUTCOffset(zone),
	}
	z.RasterEPSG = z.Projection().EPSG()
	return z
}

func rectangle(west, south, east, north float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{west, south}, {east, south}, {east, north}, {west, north}, {west, south},
	}}
}

// FilterByBound keeps the zones whose polygon intersects b. IDs are untouched.
func FilterByBound(zones []Zone, b orb.Bound) []Zone {
	var out []Zone
	for _, z := range zones {
		if z.Bound().Intersects(b) {
			out = append(out, z)
		}
	}
	return out
}

package domain

import (
	"math"
	"strconv"
	"time"
)

// CoordinatePrecision is the number of decimal places kept in a centroid.
const CoordinatePrecision = 5

var coordinateScale = math.Pow10(CoordinatePrecision)

// GridCell identifies one raster pixel of one world UTM polygon.
type GridCell struct {
	WorldUtmID int           `json:"world_utm_id"`
	Zone       int           `json:"zone"`
	Row        string        `json:"row"`
	CellID     int64         `json:"cell_id"`
	UTCOffset  time.Duration `json:"utc_offset"`
}

// ZoneInfo is the static description of a world UTM polygon.
type ZoneInfo struct {
	WorldUtmID int
	Zone       int
	Row        string
	UTCOffset  time.Duration
	RasterEPSG int
}

// Point is an unrounded WGS84 coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Centroid is a WGS84 coordinate rounded to CoordinatePrecision decimals.
type Centroid struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// NewCentroid rounds lon/lat to CoordinatePrecision decimals.
func NewCentroid(lon, lat float64) Centroid {
	return Centroid{Lon: RoundCoordinate(lon), Lat: RoundCoordinate(lat)}
}

// RoundCoordinate rounds v half away from zero at CoordinatePrecision decimals.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*coordinateScale) / coordinateScale
}

// IsRounded reports whether neither coordinate carries more than
// CoordinatePrecision decimals.
func (c Centroid) IsRounded() bool {
	return decimals(c.Lon) <= CoordinatePrecision && decimals(c.Lat) <= CoordinatePrecision
}

// Point returns c as an unrounded point.
func (c Centroid) Point() Point {
	return Point{Lon: c.Lon, Lat: c.Lat}
}

// Key is the exact string form used to match API rows back to cells.
func (c Centroid) Key() string {
	return strconv.FormatFloat(c.Lat, 'f', CoordinatePrecision, 64) + "," +
		strconv.FormatFloat(c.Lon, 'f', CoordinatePrecision, 64)
}

func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

// ConsumerLocation is one point that needs weather coverage, e.g. a field.
// EarliestRequiredDate is the first date the consumer itself cares about
// (typically its planting date); history years are added on top of it.
type ConsumerLocation struct {
	ID                   int64
	Point                Point
	EarliestRequiredDate time.Time
}

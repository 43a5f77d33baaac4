package grid

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ctessum/geom/proj"
)

// WGS84 ellipsoid, for the polar caps.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
)

// Projection maps WGS84 lon/lat degrees to planar meters and back.
type Projection interface {
	Forward(lon, lat float64) (x, y float64)
	Inverse(x, y float64) (lon, lat float64)
	EPSG() int
}

// utm is a single, forced UTM zone. Points outside the zone's nominal 6 degree
// strip are still projected against its central meridian, which the X-band
// exception polygons rely on.
type utm struct {
	zone    int
	south   bool
	forward proj.Transformer
	inverse proj.Transformer
}

var (
	utmMu    sync.Mutex
	utmCache = map[int]utm{}
)

// NewUTM returns the projection of UTM zone 1..60 in the given hemisphere.
// Transforms are built once per zone and hemisphere.
func NewUTM(zone int, south bool) Projection {
	p := utm{zone: zone, south: south}
	utmMu.Lock()
	defer utmMu.Unlock()
	if cached, ok := utmCache[p.EPSG()]; ok {
		return cached
	}
	fwd, inv, err := utmTransforms(zone, south)
	if err != nil {
		panic(fmt.Sprintf("grid: utm zone %d: %v", zone, err))
	}
	p.forward, p.inverse = fwd, inv
	utmCache[p.EPSG()] = p
	return p
}

func utmTransforms(zone int, south bool) (fwd, inv proj.Transformer, err error) {
	if zone < 1 || zone > 60 {
		return nil, nil, errors.New("zone out of range")
	}
	def := fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
	if south {
		def = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone)
	}
	lonlat, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, nil, fmt.Errorf("parse longlat: %w", err)
	}
	planar, err := proj.Parse(def)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %q: %w", def, err)
	}
	if fwd, err = lonlat.NewTransform(planar); err != nil {
		return nil, nil, fmt.Errorf("forward transform: %w", err)
	}
	if inv, err = planar.NewTransform(lonlat); err != nil {
		return nil, nil, fmt.Errorf("inverse transform: %w", err)
	}
	return fwd, inv, nil
}

func (p utm) EPSG() int {
	if p.south {
		return 32700 + p.zone
	}
	return 32600 + p.zone
}

// Forward returns NaN coordinates when the point cannot be projected.
func (p utm) Forward(lon, lat float64) (float64, float64) {
	x, y, err := p.forward(lon, lat)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	return x, y
}

func (p utm) Inverse(x, y float64) (float64, float64) {
	lon, lat, err := p.inverse(x, y)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	return normalizeLon(lon), lat
}

// polarStereographic is UPS north or south.
type polarStereographic struct {
	south bool
}

const (
	upsScale = 0.994
	upsFalse = 2000000.0
)

var (
	eccentricity = math.Sqrt(flattening * (2 - flattening))
	upsRhoFactor = 2 * semiMajor * upsScale /
		math.Sqrt(math.Pow(1+eccentricity, 1+eccentricity)*math.Pow(1-eccentricity, 1-eccentricity))
)

// NewUPS returns the universal polar stereographic projection.
func NewUPS(south bool) Projection {
	return polarStereographic{south: south}
}

func (p polarStereographic) EPSG() int {
	if p.south {
		return 32761
	}
	return 32661
}

// The south aspect is the north one applied to -lat with the y axis mirrored.
func (p polarStereographic) Forward(lon, lat float64) (float64, float64) {
	if p.south {
		lat = -lat
	}
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	es := eccentricity * math.Sin(phi)
	t := math.Tan(math.Pi/4-phi/2) / math.Pow((1-es)/(1+es), eccentricity/2)
	rho := upsRhoFactor * t

	x := upsFalse + rho*math.Sin(lambda)
	dy := rho * math.Cos(lambda)
	if p.south {
		return x, upsFalse + dy
	}
	return x, upsFalse - dy
}

func (p polarStereographic) Inverse(x, y float64) (float64, float64) {
	dx := x - upsFalse
	dy := y - upsFalse
	if p.south {
		dy = -dy
	}
	rho := math.Hypot(dx, dy)
	t := rho / upsRhoFactor

	phi := math.Pi/2 - 2*math.Atan(t)
	for range 8 {
		es := eccentricity * math.Sin(phi)
		phi = math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), eccentricity/2))
	}
	lambda := 0.0
	if rho > 0 {
		lambda = math.Atan2(dx, -dy)
	}

	lon, lat := lambda*180/math.Pi, phi*180/math.Pi
	if p.south {
		lat = -lat
	}
	return lon, lat
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

package grid

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// DefaultPixelSize is the raster resolution in projected meters.
const DefaultPixelSize = 5000.0

// densifyStep is the lon/lat spacing used before projecting polygon edges,
// so that curved parallels survive the projection.
const densifyStep = 0.1

// subSamples is the per-axis count of fallback sample points in a pixel.
const subSamples = 8

// RasterMeta is the persisted geotransform of a zone raster.
type RasterMeta struct {
	WorldUtmID int     `json:"world_utm_id"`
	EPSG       int     `json:"epsg"`
	OriginX    float64 `json:"origin_x"`
	OriginY    float64 `json:"origin_y"`
	CoefX      float64 `json:"coef_x"`
	CoefY      float64 `json:"coef_y"`
	PixelSize  float64 `json:"pixel_size"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	CellMin    int64   `json:"cell_min"`
	CellMax    int64   `json:"cell_max"`
}

// Raster is one zone's pixel grid. Cells holds a cell ID per pixel in
// row-major order; 0 marks pixels outside the zone.
type Raster struct {
	RasterMeta
	Cells []uint32

	positionsOnce sync.Once
	positions     []int32
}

// Empty reports whether no pixel received a cell ID.
func (r *Raster) Empty() bool {
	return r.CellMax < r.CellMin
}

// pixelOf returns the pixel holding planar point (x, y).
func (r *Raster) pixelOf(x, y float64) (col, row int, ok bool) {
	fc := math.Floor(r.CoefX * (x - r.OriginX) / r.PixelSize)
	fr := math.Floor(r.CoefY * (y - r.OriginY) / r.PixelSize)
	if math.IsNaN(fc) || math.IsNaN(fr) {
		return 0, 0, false
	}
	if fc < 0 || fr < 0 || fc >= float64(r.Width) || fr >= float64(r.Height) {
		return 0, 0, false
	}
	return int(fc), int(fr), true
}

// pixelPoint maps fractional pixel coordinates to planar meters.
func (r *Raster) pixelPoint(col, row float64) (float64, float64) {
	return r.OriginX + r.CoefX*col*r.PixelSize, r.OriginY + r.CoefY*row*r.PixelSize
}

func (r *Raster) pixelBound(col, row int) orb.Bound {
	x0, y0 := r.pixelPoint(float64(col), float64(row))
	x1, y1 := r.pixelPoint(float64(col+1), float64(row+1))
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

func (r *Raster) at(col, row int) uint32 {
	return r.Cells[row*r.Width+col]
}

// position returns the pixel of cellID, which must lie in [CellMin, CellMax].
// IDs are assigned in scan order, so the n-th non-zero pixel holds CellMin+n.
func (r *Raster) position(cellID int64) (col, row int, ok bool) {
	if cellID < r.CellMin || cellID > r.CellMax {
		return 0, 0, false
	}
	r.positionsOnce.Do(func() {
		r.positions = make([]int32, 0, r.CellMax-r.CellMin+1)
		for i, v := range r.Cells {
			if v != 0 {
				r.positions = append(r.positions, int32(i))
			}
		}
	})
	n := cellID - r.CellMin
	if n >= int64(len(r.positions)) {
		return 0, 0, false
	}
	idx := int(r.positions[n])
	return idx % r.Width, idx / r.Width, true
}

// MarshalCells encodes the pixel values as little-endian uint32s.
func (r *Raster) MarshalCells() []byte {
	buf := make([]byte, 4*len(r.Cells))
	for i, v := range r.Cells {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

// UnmarshalRaster rebuilds a raster from its metadata and encoded cells.
func UnmarshalRaster(meta RasterMeta, cells []byte) (*Raster, error) {
	n := meta.Width * meta.Height
	if len(cells) != 4*n {
		return nil, fmt.Errorf("raster %d: %d bytes for %dx%d pixels", meta.WorldUtmID, len(cells), meta.Width, meta.Height)
	}
	r := &Raster{RasterMeta: meta, Cells: make([]uint32, n)}
	for i := range r.Cells {
		r.Cells[i] = binary.LittleEndian.Uint32(cells[4*i:])
	}
	return r, nil
}

// surface is a zone bundled with its projection and projected outline.
type surface struct {
	zone   Zone
	proj   Projection
	planar orb.Polygon
}

func newSurface(z Zone) *surface {
	proj := z.Projection()
	return &surface{
		zone:   z,
		proj:   proj,
		planar: projectPolygon(densify(z.Polygon, densifyStep), proj),
	}
}

// Build rasterizes z at pixelSize, numbering pixels from firstID. The origin
// is the projected corner nearest the equator; west polar caps grow westward
// from their maximum x.
func Build(z Zone, firstID int64, pixelSize float64) *Raster {
	s := newSurface(z)
	b := s.planar.Bound()

	meta := RasterMeta{
		WorldUtmID: z.WorldUtmID,
		EPSG:       s.proj.EPSG(),
		PixelSize:  pixelSize,
		Width:      int(math.Floor((b.Max[0]-b.Min[0])/pixelSize)) + 1,
		Height:     int(math.Floor((b.Max[1]-b.Min[1])/pixelSize)) + 1,
		OriginX:    b.Min[0],
		OriginY:    b.Min[1],
		CoefX:      1,
		CoefY:      1,
	}
	switch {
	case z.Polar() && (z.Row == "A" || z.Row == "Y"):
		meta.OriginX, meta.CoefX = b.Max[0], -1
	case !z.Polar() && z.South():
		meta.OriginY, meta.CoefY = b.Max[1], -1
	}

	r := &Raster{RasterMeta: meta, Cells: make([]uint32, meta.Width*meta.Height)}
	next := firstID
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if _, ok := s.representative(r, col, row); !ok {
				continue
			}
			r.Cells[row*r.Width+col] = uint32(next)
			next++
		}
	}
	r.CellMin = firstID
	r.CellMax = next - 1
	return r
}

// representative picks the centroid reported for a pixel. A candidate is
// accepted only if, once rounded, it lies strictly inside the zone polygon and
// projects back into the same pixel. Candidates are the pixel center, the
// centroid of the pixel clipped to the zone, then a regular sub-grid. Pixels
// with no accepted candidate stay unassigned.
func (s *surface) representative(r *Raster, col, row int) (domain.Centroid, bool) {
	cx, cy := r.pixelPoint(float64(col)+0.5, float64(row)+0.5)
	if c, ok := s.accept(r, col, row, cx, cy); ok {
		return c, true
	}

	pb := r.pixelBound(col, row)
	if !pb.Intersects(s.planar.Bound()) {
		return domain.Centroid{}, false
	}
	clipped := clip.Polygon(pb, s.planar.Clone())
	if len(clipped) == 0 || len(clipped[0]) < 4 {
		return domain.Centroid{}, false
	}
	if p, area := planar.CentroidArea(clipped); area > 0 {
		if c, ok := s.accept(r, col, row, p[0], p[1]); ok {
			return c, true
		}
	}

	for i := 0; i < subSamples; i++ {
		for j := 0; j < subSamples; j++ {
			x, y := r.pixelPoint(float64(col)+(float64(i)+0.5)/subSamples, float64(row)+(float64(j)+0.5)/subSamples)
			if c, ok := s.accept(r, col, row, x, y); ok {
				return c, true
			}
		}
	}
	return domain.Centroid{}, false
}

func (s *surface) accept(r *Raster, col, row int, x, y float64) (domain.Centroid, bool) {
	c := domain.NewCentroid(s.proj.Inverse(x, y))
	if !strictlyInside(s.zone.Polygon, orb.Point{c.Lon, c.Lat}) {
		return domain.Centroid{}, false
	}
	fc, fr, ok := r.pixelOf(s.proj.Forward(c.Lon, c.Lat))
	if !ok || fc != col || fr != row {
		return domain.Centroid{}, false
	}
	return c, true
}

// contains is boundary-inclusive containment.
func contains(poly orb.Polygon, p orb.Point) bool {
	return poly.Bound().Contains(p) && (planar.PolygonContains(poly, p) || onBoundary(poly, p))
}

func strictlyInside(poly orb.Polygon, p orb.Point) bool {
	return planar.PolygonContains(poly, p) && !onBoundary(poly, p)
}

func onBoundary(poly orb.Polygon, p orb.Point) bool {
	const eps = 1e-12
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			a, b := ring[i-1], ring[i]
			cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
			if math.Abs(cross) > eps {
				continue
			}
			if p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
				p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1]) {
				return true
			}
		}
	}
	return false
}

func densify(poly orb.Polygon, step float64) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		var dense orb.Ring
		for j := 1; j < len(ring); j++ {
			a, b := ring[j-1], ring[j]
			n := int(math.Ceil(math.Max(math.Abs(b[0]-a[0]), math.Abs(b[1]-a[1])) / step))
			if n < 1 {
				n = 1
			}
			for k := 0; k < n; k++ {
				t := float64(k) / float64(n)
				dense = append(dense, orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])})
			}
		}
		if len(ring) > 0 {
			dense = append(dense, ring[len(ring)-1])
		}
		out[i] = dense
	}
	return out
}

func projectPolygon(poly orb.Polygon, proj Projection) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		pr := make(orb.Ring, len(ring))
		for j, p := range ring {
			x, y := proj.Forward(p[0], p[1])
			pr[j] = orb.Point{x, y}
		}
		out[i] = pr
	}
	return out
}

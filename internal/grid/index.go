package grid

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// DefaultCacheSize is the centroid LRU capacity used by NewIndex callers that
// have no better number.
const DefaultCacheSize = 100000

// Index is the read-only GridIndex over a set of built zone rasters.
type Index struct {
	layers   []*layer // sorted by WorldUtmID
	byZone   map[int]*layer
	byCell   []*layer // non-empty layers sorted by CellMin
	cache    *centroidCache
	westmost time.Duration
}

type layer struct {
	*surface
	raster *Raster
}

// NewIndex pairs each zone with its raster. Every zone needs a raster.
func NewIndex(zones []Zone, rasters []*Raster, cacheSize int) (*Index, error) {
	byRaster := make(map[int]*Raster, len(rasters))
	for _, r := range rasters {
		byRaster[r.WorldUtmID] = r
	}

	idx := &Index{
		byZone: make(map[int]*layer, len(zones)),
		cache:  newCentroidCache(cacheSize),
	}
	for _, z := range zones {
		r, ok := byRaster[z.WorldUtmID]
		if !ok {
			return nil, fmt.Errorf("zone %s (world utm %d): no raster", z, z.WorldUtmID)
		}
		if r.EPSG != z.RasterEPSG {
			return nil, fmt.Errorf("zone %s: raster epsg %d, want %d", z, r.EPSG, z.RasterEPSG)
		}
		l := &layer{surface: newSurface(z), raster: r}
		idx.layers = append(idx.layers, l)
		idx.byZone[z.WorldUtmID] = l
		if !r.Empty() {
			idx.byCell = append(idx.byCell, l)
		}
		if z.UTCOffset < idx.westmost {
			idx.westmost = z.UTCOffset
		}
	}
	sort.Slice(idx.layers, func(i, j int) bool { return idx.layers[i].zone.WorldUtmID < idx.layers[j].zone.WorldUtmID })
	sort.Slice(idx.byCell, func(i, j int) bool { return idx.byCell[i].raster.CellMin < idx.byCell[j].raster.CellMin })
	for i := 1; i < len(idx.byCell); i++ {
		if idx.byCell[i].raster.CellMin <= idx.byCell[i-1].raster.CellMax {
			return nil, fmt.Errorf("world utm %d and %d: overlapping cell ids",
				idx.byCell[i-1].zone.WorldUtmID, idx.byCell[i].zone.WorldUtmID)
		}
	}
	return idx, nil
}

// BuildAll rasterizes zones in order, continuing the cell counter from one
// zone to the next. Zones must already be sorted by WorldUtmID.
func BuildAll(zones []Zone, firstID int64, pixelSize float64) []*Raster {
	out := make([]*Raster, 0, len(zones))
	next := firstID
	for _, z := range zones {
		r := Build(z, next, pixelSize)
		if !r.Empty() {
			next = r.CellMax + 1
		}
		out = append(out, r)
	}
	return out
}

// CellIDForPoint returns the cell holding p. See Locate.
func (idx *Index) CellIDForPoint(p domain.Point) (int64, error) {
	c, err := idx.Locate(p)
	if err != nil {
		return 0, err
	}
	return c.CellID, nil
}

// Locate finds the cell holding p. When p lies on a border shared by several
// zones the lowest cell ID wins. If p falls in a pixel left unassigned at a
// zone edge, its nearest assigned neighbor pixel is used instead.
func (idx *Index) Locate(p domain.Point) (domain.GridCell, error) {
	pt := orb.Point{p.Lon, p.Lat}

	var (
		best      int64
		bestLayer *layer
		covering  []*layer
	)
	for _, l := range idx.layers {
		if !contains(l.zone.Polygon, pt) {
			continue
		}
		covering = append(covering, l)
		col, row, ok := l.raster.pixelOf(l.proj.Forward(p.Lon, p.Lat))
		if !ok {
			continue
		}
		if v := int64(l.raster.at(col, row)); v != 0 && (best == 0 || v < best) {
			best, bestLayer = v, l
		}
	}
	if best == 0 {
		best, bestLayer = idx.nearestAssigned(covering, p)
	}
	if best == 0 {
		return domain.GridCell{}, fmt.Errorf("lon %.5f lat %.5f: %w", p.Lon, p.Lat, domain.ErrNoCoverage)
	}
	z := bestLayer.zone
	return domain.GridCell{
		WorldUtmID: z.WorldUtmID,
		Zone:       z.Zone,
		Row:        z.Row,
		CellID:     best,
		UTCOffset:  z.UTCOffset,
	}, nil
}

func (idx *Index) nearestAssigned(covering []*layer, p domain.Point) (int64, *layer) {
	var (
		best      int64
		bestLayer *layer
	)
	for _, l := range covering {
		x, y := l.proj.Forward(p.Lon, p.Lat)
		col := int(math.Floor(l.raster.CoefX * (x - l.raster.OriginX) / l.raster.PixelSize))
		row := int(math.Floor(l.raster.CoefY * (y - l.raster.OriginY) / l.raster.PixelSize))
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				c, r := col+dc, row+dr
				if c < 0 || r < 0 || c >= l.raster.Width || r >= l.raster.Height {
					continue
				}
				if v := int64(l.raster.at(c, r)); v != 0 && (best == 0 || v < best) {
					best, bestLayer = v, l
				}
			}
		}
	}
	return best, bestLayer
}

// CentroidForCell returns the rounded lon/lat reported for cellID. The result
// always maps back to cellID through CellIDForPoint.
func (idx *Index) CentroidForCell(worldUtmID int, cellID int64) (domain.Centroid, error) {
	l, ok := idx.byZone[worldUtmID]
	if !ok {
		return domain.Centroid{}, fmt.Errorf("world utm %d: %w", worldUtmID, domain.ErrUnknownZone)
	}
	if c, ok := idx.cache.get(cellID); ok && cellID >= l.raster.CellMin && cellID <= l.raster.CellMax {
		return c, nil
	}
	col, row, ok := l.raster.position(cellID)
	if !ok {
		return domain.Centroid{}, fmt.Errorf("cell %d in world utm %d: %w", cellID, worldUtmID, domain.ErrUnknownCell)
	}
	c, ok := l.representative(l.raster, col, row)
	if !ok {
		return domain.Centroid{}, fmt.Errorf("cell %d in world utm %d: no representative point: %w", cellID, worldUtmID, domain.ErrUnknownCell)
	}
	idx.cache.put(cellID, c)
	return c, nil
}

// ZoneForCell returns the world UTM ID whose raster holds cellID.
func (idx *Index) ZoneForCell(cellID int64) (int, error) {
	i := sort.Search(len(idx.byCell), func(i int) bool { return idx.byCell[i].raster.CellMax >= cellID })
	if i == len(idx.byCell) || idx.byCell[i].raster.CellMin > cellID {
		return 0, fmt.Errorf("cell %d: %w", cellID, domain.ErrUnknownCell)
	}
	return idx.byCell[i].zone.WorldUtmID, nil
}

// InfoForZone returns the static attributes of a world UTM polygon.
func (idx *Index) InfoForZone(worldUtmID int) (domain.ZoneInfo, error) {
	l, ok := idx.byZone[worldUtmID]
	if !ok {
		return domain.ZoneInfo{}, fmt.Errorf("world utm %d: %w", worldUtmID, domain.ErrUnknownZone)
	}
	return zoneInfo(l.zone), nil
}

// Cell returns the full grid cell for a known (worldUtmID, cellID) pair.
func (idx *Index) Cell(worldUtmID int, cellID int64) (domain.GridCell, error) {
	l, ok := idx.byZone[worldUtmID]
	if !ok {
		return domain.GridCell{}, fmt.Errorf("world utm %d: %w", worldUtmID, domain.ErrUnknownZone)
	}
	if cellID < l.raster.CellMin || cellID > l.raster.CellMax {
		return domain.GridCell{}, fmt.Errorf("cell %d in world utm %d: %w", cellID, worldUtmID, domain.ErrUnknownCell)
	}
	return domain.GridCell{
		WorldUtmID: worldUtmID,
		Zone:       l.zone.Zone,
		Row:        l.zone.Row,
		CellID:     cellID,
		UTCOffset:  l.zone.UTCOffset,
	}, nil
}

// Zones lists every loaded polygon in WorldUtmID order.
func (idx *Index) Zones() []domain.ZoneInfo {
	out := make([]domain.ZoneInfo, len(idx.layers))
	for i, l := range idx.layers {
		out[i] = zoneInfo(l.zone)
	}
	return out
}

// Rasters returns the raster of each loaded polygon in WorldUtmID order.
func (idx *Index) Rasters() []*Raster {
	out := make([]*Raster, len(idx.layers))
	for i, l := range idx.layers {
		out[i] = l.raster
	}
	return out
}

// WestmostOffset is the most negative UTC offset among loaded zones, or 0.
func (idx *Index) WestmostOffset() time.Duration {
	return idx.westmost
}

// CellCount is the number of assigned cells across all zones.
func (idx *Index) CellCount() int64 {
	var n int64
	for _, l := range idx.byCell {
		n += l.raster.CellMax - l.raster.CellMin + 1
	}
	return n
}

func zoneInfo(z Zone) domain.ZoneInfo {
	return domain.ZoneInfo{
		WorldUtmID: z.WorldUtmID,
		Zone:       z.Zone,
		Row:        z.Row,
		UTCOffset:  z.UTCOffset,
		RasterEPSG: z.RasterEPSG,
	}
}

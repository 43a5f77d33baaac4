package grid

import (
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

var (
	texasOnce    sync.Once
	texasZones   []Zone
	texasRasters []*Raster
)

// texasGrid builds zones 14S and 15S once per test binary.
func texasGrid(t *testing.T) ([]Zone, []*Raster) {
	t.Helper()
	texasOnce.Do(func() {
		texasZones = FilterByBound(WorldPolygons(), orb.Bound{Min: orb.Point{-97, 33}, Max: orb.Point{-95, 34}})
		texasRasters = BuildAll(texasZones, 1, DefaultPixelSize)
	})
	require.Len(t, texasZones, 2)
	return texasZones, texasRasters
}

func texasIndex(t *testing.T) *Index {
	t.Helper()
	zones, rasters := texasGrid(t)
	idx, err := NewIndex(zones, rasters, 1000)
	require.NoError(t, err)
	return idx
}

func TestBuildAll_DenseIncreasingIDs(t *testing.T) {
	_, rasters := texasGrid(t)

	assert.Equal(t, int64(1), rasters[0].CellMin)
	assert.Equal(t, rasters[0].CellMax+1, rasters[1].CellMin)

	for _, r := range rasters {
		require.False(t, r.Empty())
		var last uint32
		var n int64
		for _, v := range r.Cells {
			if v == 0 {
				continue
			}
			assert.Greater(t, v, last)
			last = v
			n++
		}
		assert.Equal(t, r.CellMax-r.CellMin+1, n)
		assert.Equal(t, uint32(r.CellMax), last)
	}
}

func TestBuild_Geotransform(t *testing.T) {
	zones, rasters := texasGrid(t)
	r := rasters[0]
	assert.Equal(t, zones[0].WorldUtmID, r.WorldUtmID)
	assert.Equal(t, 32614, r.EPSG)
	assert.Equal(t, 1.0, r.CoefX)
	assert.Equal(t, 1.0, r.CoefY)
	assert.Equal(t, DefaultPixelSize, r.PixelSize)
	// A 6 by 8 degree zone at mid latitudes is roughly 560 by 890 km.
	assert.InDelta(t, 112, r.Width, 10)
	assert.InDelta(t, 178, r.Height, 10)
}

func TestBuild_SouthernOriginIsNorthEdge(t *testing.T) {
	z := FilterByBound(WorldPolygons(), orb.Bound{Min: orb.Point{-45.5, -1}, Max: orb.Point{-45.4, -0.9}})
	require.Len(t, z, 1)
	require.Equal(t, "M", z[0].Row)

	r := Build(z[0], 1, 50000)
	assert.Equal(t, -1.0, r.CoefY)
	assert.InDelta(t, 10000000, r.OriginY, 1)
}

func TestIndex_RoundTrip(t *testing.T) {
	idx := texasIndex(t)

	for _, r := range idx.Rasters() {
		for id := r.CellMin; id <= r.CellMax; id++ {
			c, err := idx.CentroidForCell(r.WorldUtmID, id)
			require.NoError(t, err, "cell %d", id)
			require.True(t, c.IsRounded())

			got, err := idx.CellIDForPoint(c.Point())
			require.NoError(t, err, "cell %d centroid %+v", id, c)
			require.Equal(t, id, got, "centroid %+v", c)
		}
	}
}

func TestIndex_CellIDForPoint(t *testing.T) {
	idx := texasIndex(t)
	p := domain.Point{Lon: -97.7431, Lat: 33.2672}

	first, err := idx.Locate(p)
	require.NoError(t, err)
	assert.Equal(t, 14, first.Zone)
	assert.Equal(t, "S", first.Row)
	assert.Equal(t, -7*60*60, int(first.UTCOffset.Seconds()))

	for range 5 {
		again, err := idx.CellIDForPoint(p)
		require.NoError(t, err)
		assert.Equal(t, first.CellID, again)
	}

	zoneID, err := idx.ZoneForCell(first.CellID)
	require.NoError(t, err)
	assert.Equal(t, first.WorldUtmID, zoneID)
}

func TestIndex_NoCoverage(t *testing.T) {
	idx := texasIndex(t)

	_, err := idx.CellIDForPoint(domain.Point{Lon: 2.35, Lat: 48.85})
	assert.True(t, errors.Is(err, domain.ErrNoCoverage))

	_, err = idx.CellIDForPoint(domain.Point{Lon: 200, Lat: 33})
	assert.True(t, errors.Is(err, domain.ErrNoCoverage))
}

func TestIndex_SharedBorderPicksLowestCell(t *testing.T) {
	zones, rasters := texasGrid(t)
	idx := texasIndex(t)

	hits := 0
	for _, lat := range []float64{32.5, 33.75, 35, 36.125, 37.25, 38.6, 39.9} {
		p := domain.Point{Lon: -96, Lat: lat}

		var want int64
		for i, z := range zones {
			col, row, ok := rasters[i].pixelOf(z.Projection().Forward(p.Lon, p.Lat))
			if !ok {
				continue
			}
			if v := int64(rasters[i].at(col, row)); v != 0 && (want == 0 || v < want) {
				want = v
			}
		}

		got, err := idx.CellIDForPoint(p)
		require.NoError(t, err, "lat %v", lat)
		if want != 0 {
			hits++
			assert.Equal(t, want, got, "lat %v", lat)
		}
	}
	assert.NotZero(t, hits)
}

func TestIndex_Errors(t *testing.T) {
	idx := texasIndex(t)
	r := idx.Rasters()[0]

	_, err := idx.CentroidForCell(999999, 1)
	assert.True(t, errors.Is(err, domain.ErrUnknownZone))

	_, err = idx.CentroidForCell(r.WorldUtmID, r.CellMax+1)
	assert.True(t, errors.Is(err, domain.ErrUnknownCell))

	_, err = idx.ZoneForCell(0)
	assert.True(t, errors.Is(err, domain.ErrUnknownCell))

	_, err = idx.InfoForZone(-1)
	assert.True(t, errors.Is(err, domain.ErrUnknownZone))
}

func TestIndex_InfoForZone(t *testing.T) {
	idx := texasIndex(t)
	zones, _ := texasGrid(t)

	info, err := idx.InfoForZone(zones[1].WorldUtmID)
	require.NoError(t, err)
	assert.Equal(t, 15, info.Zone)
	assert.Equal(t, "S", info.Row)
	assert.Equal(t, ZoneUTCOffset(15), info.UTCOffset)
	assert.Equal(t, 32615, info.RasterEPSG)
	assert.Equal(t, ZoneUTCOffset(14), idx.WestmostOffset())
}

func TestNewIndex_MissingRaster(t *testing.T) {
	zones, rasters := texasGrid(t)
	_, err := NewIndex(zones, rasters[:1], 0)
	assert.Error(t, err)
}

func TestRaster_MarshalCells(t *testing.T) {
	_, rasters := texasGrid(t)
	r := rasters[1]

	got, err := UnmarshalRaster(r.RasterMeta, r.MarshalCells())
	require.NoError(t, err)
	assert.Equal(t, r.RasterMeta, got.RasterMeta)
	assert.Equal(t, r.Cells, got.Cells)

	_, err = UnmarshalRaster(r.RasterMeta, []byte{1, 2, 3})
	assert.Error(t, err)
}

package projection

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wroge/wgs84"

	"simplemap/internal/tile"
)

func TestWebMercatorRoundTrip(t *testing.T) {
	p := WebMercator{}
	for lat := -85.0; lat <= 85.0; lat += 2.5 {
		for lng := -180.0; lng <= 180.0; lng += 7.5 {
			ll := orb.Point{lng, lat}
			got := p.Unproject(p.Project(ll))
			assert.InDelta(t, lng, got.X(), 1e-6, "lng of %v", ll)
			assert.InDelta(t, lat, got.Y(), 1e-6, "lat of %v", ll)
		}
	}
}

func TestWebMercatorMatchesWGS84(t *testing.T) {
	p := WebMercator{}
	toMercator := wgs84.LonLat().To(wgs84.WebMercator())
	for _, ll := range []orb.Point{{0, 0}, {126.97, 37.56}, {-74.006, 40.7128}, {151.2, -33.86}, {179.9, 80}} {
		east, north, _ := toMercator(ll.X(), ll.Y(), 0)
		got := p.Project(ll)
		assert.InDelta(t, east, got.X(), 1e-2, "east of %v", ll)
		assert.InDelta(t, north, got.Y(), 1e-2, "north of %v", ll)
	}
}

func TestResolution(t *testing.T) {
	p := WebMercator{}
	assert.InDelta(t, 156543.03392804097, p.Resolution(0), 1e-6)
	for z := 0.0; z < 22; z += 0.5 {
		assert.Greater(t, p.Resolution(z), p.Resolution(z+0.5))
	}
}

func TestLookup(t *testing.T) {
	p, err := Lookup("EPSG:3857")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", p.Code())

	_, err = Lookup("EPSG:4326")
	assert.Error(t, err)
}

func TestTileNumsWorld(t *testing.T) {
	p := WebMercator{}
	world := orb.Bound{Min: orb.Point{-179.9, -85}, Max: orb.Point{179.9, 85}}
	nums := TileNums(p, world, 1)
	assert.ElementsMatch(t, []tile.Num{
		{X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1},
		{X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1},
	}, nums)
}

func TestTileNumsWrapAntimeridian(t *testing.T) {
	p := WebMercator{}
	b := orb.Bound{Min: orb.Point{-190, 10}, Max: orb.Point{-170, 20}}
	nums := TileNums(p, b, 1)
	assert.Equal(t, []tile.Num{
		{X: 1, Y: 0, Z: 1, Offset: -1},
		{X: 0, Y: 0, Z: 1, Offset: 0},
	}, nums)
}

func TestTileNumsClampRows(t *testing.T) {
	p := WebMercator{}
	b := orb.Bound{Min: orb.Point{1, -89.9}, Max: orb.Point{2, 89.9}}
	nums := TileNums(p, b, 2)
	require.Len(t, nums, 4)
	for i, n := range nums {
		assert.Equal(t, i, n.Y)
		assert.Equal(t, 2, n.X)
		assert.True(t, n.Valid())
	}
}

func TestTileCoordBounds(t *testing.T) {
	half := Circumference / 2
	b := TileCoordBounds(tile.Num{X: 0, Y: 0, Z: 0})
	assert.InDelta(t, -half, b.Min.X(), 1e-6)
	assert.InDelta(t, -half, b.Min.Y(), 1e-6)
	assert.InDelta(t, half, b.Max.X(), 1e-6)
	assert.InDelta(t, half, b.Max.Y(), 1e-6)

	// top-left tile of zoom 1, one world to the east
	b = TileCoordBounds(tile.Num{X: 0, Y: 0, Z: 1, Offset: 1})
	assert.InDelta(t, half, b.Min.X(), 1e-6)
	assert.InDelta(t, Circumference, b.Max.X(), 1e-6)
	assert.InDelta(t, 0, b.Min.Y(), 1e-6)
	assert.InDelta(t, half, b.Max.Y(), 1e-6)
}

func TestTileGridCount(t *testing.T) {
	p := WebMercator{}
	g := TileGrid(p, orb.Bound{Min: orb.Point{-190, 10}, Max: orb.Point{-170, 20}}, 1)
	assert.Equal(t, 2, g.Count())
	assert.Equal(t, -1, g.MinCol)
	assert.Equal(t, tile.Num{X: 1, Y: 0, Z: 1, Offset: -1}, g.Num(-1, 0))
	assert.Equal(t, 0, Grid{MinCol: 1, MaxCol: 0}.Count())
}

func TestNearestTileNums(t *testing.T) {
	p := WebMercator{}
	world := orb.Bound{Min: orb.Point{-179.9, -85}, Max: orb.Point{179.9, 85}}

	center := p.Project(orb.Point{-100, 40})
	nums := NearestTileNums(p, world, 2, center, 3)
	require.Len(t, nums, 3)
	first := TileCoordBounds(nums[0])
	assert.True(t, first.Contains(center), "nearest tile holds the center")

	all := NearestTileNums(p, world, 2, center, 0)
	assert.Len(t, all, 16)
	assert.Equal(t, nums, all[:3])

	// a limit larger than the block returns all of it
	assert.Len(t, NearestTileNums(p, world, 2, center, 100), 16)
}

func TestNearestTileNumsLongStrip(t *testing.T) {
	p := WebMercator{}
	// a strip one tile high and many tiles wide, centered at its west end
	strip := orb.Bound{Min: orb.Point{-179, 1}, Max: orb.Point{179, 2}}
	center := p.Project(orb.Point{-178, 1.5})
	nums := NearestTileNums(p, strip, 6, center, 10)
	require.Len(t, nums, 10)
	for i, n := range nums {
		assert.Equal(t, i, n.X, "tiles ordered eastwards from the center")
	}
}

package simplemap

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplemap/internal/camera"
	"simplemap/internal/render"
	"simplemap/internal/source"
	"simplemap/internal/tile"
)

func solidFetcher(t *testing.T, c color.RGBA) source.Fetcher {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	data := buf.Bytes()
	return source.FetcherFunc(func(ctx context.Context, num tile.Num) ([]byte, error) {
		return data, nil
	})
}

func makeLayer(t *testing.T, f source.Fetcher, opts LayerOptions) *RasterTileLayer {
	src, err := source.New[source.Raster](source.NewRasterSource(f, ""), source.Options{Name: opts.Name})
	require.NoError(t, err)
	l, err := NewRasterTileLayer(src, opts)
	require.NoError(t, err)
	return l
}

func makeMap(t *testing.T, opts Options) *SimpleMap {
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func TestNewDefaults(t *testing.T) {
	m := makeMap(t, Options{})
	assert.Equal(t, orb.Point{0, 0}, m.Center())
	assert.Equal(t, 1.0, m.Zoom())
	w, h := m.Camera().ViewSize()
	assert.Equal(t, 800.0, w)
	assert.Equal(t, 600.0, h)

	_, err := New(Options{Projection: "EPSG:4326"})
	assert.Error(t, err)
	_, err = New(Options{Width: 10})
	assert.Error(t, err)
}

func TestSettersClamp(t *testing.T) {
	m := makeMap(t, Options{Width: 64, Height: 48})
	assert.Equal(t, MaxPitch, m.SetPitch(100))
	assert.Equal(t, MinPitch, m.SetPitch(-5))
	assert.Equal(t, MaxZoom, m.SetZoom(40))
	assert.Equal(t, MinZoom, m.SetZoom(0))
	assert.InDelta(t, 10, m.SetRotation(370), 1e-9)
	assert.InDelta(t, 350, m.SetRotation(-10), 1e-9)
}

func TestSetZoomRefreshesTransform(t *testing.T) {
	m := makeMap(t, Options{Width: 64, Height: 48, Zoom: 3})
	m.SetZoom(6)
	cam := m.Camera()
	assert.Equal(t, 6.0, cam.Zoom())
	assert.InDelta(t, cam.Altitude(), cam.Transform().Position.Z, 1e-6)
}

func TestSetCenterMovesTarget(t *testing.T) {
	m := makeMap(t, Options{Width: 64, Height: 48, Zoom: 5})
	m.SetCenter(orb.Point{10, 20})
	b, ok := m.Bounds()
	require.True(t, ok)
	assert.InDelta(t, 10, b.Center().X(), 1e-6)
	assert.True(t, b.Contains(orb.Point{10, 20}))
}

func TestPan(t *testing.T) {
	m := makeMap(t, Options{Width: 64, Height: 48, Zoom: 5, Center: orb.Point{10, 10}})
	m.Pan(32, 0)
	assert.Greater(t, m.Center().X(), 10.0)
	assert.InDelta(t, 10, m.Center().Y(), 1e-9)

	m.Pan(0, -24)
	assert.Greater(t, m.Center().Y(), 10.0)
}

func TestLayerOptions(t *testing.T) {
	src, err := source.New[source.Raster](source.NewRasterSource(source.SyntheticFetcher{}, ""), source.Options{})
	require.NoError(t, err)

	l, err := NewRasterTileLayer(src, LayerOptions{})
	require.NoError(t, err)
	min, max := l.Zooms()
	assert.Equal(t, DefaultLayerMinZoom, min)
	assert.Equal(t, DefaultLayerMaxZoom, max)
	assert.Equal(t, DefaultZIndex, l.ZIndex())
	assert.Equal(t, DefaultMaxTiles, l.MaxTiles())

	assert.Equal(t, 3, l.TileZoom(2.6))
	assert.Equal(t, 2, l.TileZoom(0.5))
	assert.Equal(t, 22, l.TileZoom(30))

	_, err = NewRasterTileLayer(src, LayerOptions{MinZoom: 5, MaxZoom: 3})
	assert.Error(t, err)
	_, err = NewRasterTileLayer(nil, LayerOptions{})
	assert.Error(t, err)
}

func TestLayerMaxTilesFitsCache(t *testing.T) {
	src, err := source.New[source.Raster](source.NewRasterSource(source.SyntheticFetcher{}, ""), source.Options{CacheSize: 100})
	require.NoError(t, err)

	_, err = NewRasterTileLayer(src, LayerOptions{})
	assert.Error(t, err, "default maxTiles exceeds the cache")
	_, err = NewRasterTileLayer(src, LayerOptions{MaxTiles: 101})
	assert.Error(t, err)
	_, err = NewRasterTileLayer(src, LayerOptions{MaxTiles: -1})
	assert.Error(t, err)

	l, err := NewRasterTileLayer(src, LayerOptions{MaxTiles: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, l.MaxTiles())
}

func TestRenderFrameSynthetic(t *testing.T) {
	center := orb.Point{10, 10}
	m := makeMap(t, Options{Width: 64, Height: 48, Zoom: 4, Center: center})
	layer := makeLayer(t, source.SyntheticFetcher{Size: 16, Cells: 4}, LayerOptions{Name: "synthetic"})
	m.AddLayer(layer)

	var seen int
	frame, stats, err := m.RenderFrame(context.Background(), func(l *RasterTileLayer, tl *tile.Tile[source.Raster]) {
		assert.Same(t, layer, l)
		seen++
	})
	require.NoError(t, err)
	require.Len(t, stats.Layers, 1)
	ls := stats.Layers[0]
	assert.Equal(t, 4, ls.Zoom)
	assert.Greater(t, ls.Loaded, 0)
	assert.Equal(t, ls.Loaded, ls.Fresh)
	assert.Equal(t, ls.Loaded, seen)
	assert.Equal(t, 64*48, ls.Pixels, "tiles cover the view exactly once")
	assert.Equal(t, camera.CaseAllBelow, stats.Case)

	// the center pixel shows the tile under the center
	mt := maptile.At(center, 4)
	under := source.SyntheticColor(tile.Num{X: int(mt.X), Y: int(mt.Y), Z: 4})
	got := frame.RGBAAt(32, 24)
	assert.Contains(t, []color.RGBA{under, {0xff, 0xff, 0xff, 0xff}}, got)

	// the second frame is served from the cache
	_, again, err := m.RenderFrame(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ls.Loaded, again.Layers[0].Loaded)
	assert.Zero(t, again.Layers[0].Fresh)
	assert.EqualValues(t, ls.Loaded, layer.Source().Stats().Hits)
}

func TestRenderFrameZIndex(t *testing.T) {
	red := color.RGBA{0xff, 0, 0, 0xff}
	blue := color.RGBA{0, 0, 0xff, 0xff}
	m := makeMap(t, Options{Width: 32, Height: 32, Zoom: 3, Center: orb.Point{5, 5}})
	// added first, drawn last
	m.AddLayer(makeLayer(t, solidFetcher(t, red), LayerOptions{Name: "top", ZIndex: 2}))
	m.AddLayer(makeLayer(t, solidFetcher(t, blue), LayerOptions{Name: "bottom", ZIndex: 1}))

	layers := m.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, "bottom", layers[0].Name())

	frame, stats, err := m.RenderFrame(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bottom", stats.Layers[0].Name)
	assert.Equal(t, red, frame.RGBAAt(16, 16))
}

func TestRenderFrameMaxTiles(t *testing.T) {
	m := makeMap(t, Options{Width: 256, Height: 256, Zoom: 6, Pitch: 70})
	m.AddLayer(makeLayer(t, source.SyntheticFetcher{Size: 4, Cells: 2}, LayerOptions{MaxTiles: 4}))

	p := m.Plan()
	require.Len(t, p.Layers, 1)
	assert.Len(t, p.Layers[0].Nums, 4)
	assert.Equal(t, 4, p.Tiles())

	_, stats, err := m.RenderPlan(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Layers[0].Requested)
	assert.Equal(t, 4, stats.Layers[0].Loaded)
}

func TestRenderFrameSteepPitch(t *testing.T) {
	m := makeMap(t, Options{Width: 40, Height: 30, Zoom: 8, Pitch: 80})
	m.AddLayer(makeLayer(t, source.SyntheticFetcher{Size: 4, Cells: 2}, LayerOptions{MaxTiles: 64}))

	frame, stats, err := m.RenderFrame(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, camera.CaseTwoAbove, stats.Case)
	assert.Equal(t, render.Background, frame.RGBAAt(20, 0), "sky above the horizon")
	assert.NotEqual(t, render.Background, frame.RGBAAt(20, 29))
}

func TestRenderFrameResize(t *testing.T) {
	m := makeMap(t, Options{Width: 32, Height: 32, Zoom: 3})
	require.NoError(t, m.Resize(48, 24))
	frame, _, err := m.RenderFrame(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 24), frame.Bounds())
	assert.Error(t, m.Resize(0, 24))
}

func TestRenderFrameCancelled(t *testing.T) {
	m := makeMap(t, Options{Width: 32, Height: 32, Zoom: 3})
	m.AddLayer(makeLayer(t, source.SyntheticFetcher{Delay: time.Hour}, LayerOptions{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frame, stats, err := m.RenderFrame(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, frame)
	assert.Zero(t, stats.Loaded())
}

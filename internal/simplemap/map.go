// Package simplemap ties camera, tile sources and renderer into a map that renders frames.
package simplemap

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"simplemap/internal/camera"
	"simplemap/internal/projection"
	"simplemap/internal/render"
	"simplemap/internal/source"
	"simplemap/internal/tile"
)

// View limits.
const (
	MinZoom  = 1.0
	MaxZoom  = 25.0
	MinPitch = 0.0
	MaxPitch = 80.0
)

// Options is the initial view. Zero values take the defaults: center [0, 0], zoom 1, no
// pitch or rotation, 800×600 pixels, EPSG:3857.
type Options struct {
	Center     orb.Point
	Zoom       float64
	Pitch      float64
	Rotation   float64
	Width      int
	Height     int
	Projection string
	Fov        float64
}

// SimpleMap keeps the view state and renders frames of its layers. Setters may be called
// while a frame renders; the frame uses the view as it was when it started.
type SimpleMap struct {
	mu          sync.Mutex
	center      orb.Point
	centerCoord orb.Point
	zoom        float64
	pitch       float64
	rotation    float64
	proj        projection.Projection
	cam         *camera.PerspectiveCamera
	layers      []*RasterTileLayer

	renderMu sync.Mutex
	renderer *render.Renderer
}

// New validates opts and builds the camera and renderer.
func New(opts Options) (*SimpleMap, error) {
	if opts.Width == 0 && opts.Height == 0 {
		opts.Width, opts.Height = 800, 600
	}
	if opts.Zoom == 0 {
		opts.Zoom = MinZoom
	}
	code := opts.Projection
	if code == "" {
		code = "EPSG:3857"
	}
	proj, err := projection.Lookup(code)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}

	m := &SimpleMap{
		center:   opts.Center,
		zoom:     clampFloat(opts.Zoom, MinZoom, MaxZoom),
		pitch:    clampFloat(opts.Pitch, MinPitch, MaxPitch),
		rotation: normalizeRotation(opts.Rotation),
		proj:     proj,
		renderer: renderer,
	}
	m.centerCoord = proj.Project(m.center)
	m.cam, err = camera.New(camera.Options{
		Width:      float64(opts.Width),
		Height:     float64(opts.Height),
		Target:     m.centerCoord,
		Zoom:       m.zoom,
		Pitch:      m.pitch,
		Rotation:   m.rotation,
		Fov:        opts.Fov,
		Projection: proj,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetCenter moves the view to a lng/lat point.
func (m *SimpleMap) SetCenter(center orb.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	m.centerCoord = m.proj.Project(center)
	m.cam.UpdateTransform(m.centerCoord, m.rotation, m.pitch)
}

// SetZoom clamps zoom to [MinZoom, MaxZoom] and returns the value applied.
func (m *SimpleMap) SetZoom(zoom float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom = m.cam.UpdateZoom(clampFloat(zoom, MinZoom, MaxZoom))
	// the altitude moved with the zoom
	m.cam.UpdateTransform(m.centerCoord, m.rotation, m.pitch)
	return m.zoom
}

// SetPitch clamps pitch to [MinPitch, MaxPitch] degrees and returns the value applied.
func (m *SimpleMap) SetPitch(pitch float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pitch = clampFloat(pitch, MinPitch, MaxPitch)
	m.cam.UpdateTransform(m.centerCoord, m.rotation, m.pitch)
	return m.pitch
}

// SetRotation sets the bearing in degrees, normalized to [0, 360).
func (m *SimpleMap) SetRotation(rotation float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotation = normalizeRotation(rotation)
	m.cam.UpdateTransform(m.centerCoord, m.rotation, m.pitch)
	return m.rotation
}

// Resize changes the viewport; the renderer follows on the next frame.
func (m *SimpleMap) Resize(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam.SetViewSize(float64(width), float64(height))
}

// Pan moves the center by a screen offset in pixels.
func (m *SimpleMap) Pan(dx, dy float64) {
	m.mu.Lock()
	res := m.proj.Resolution(m.zoom)
	tr := m.cam.Transform()
	// screen right and screen up projected onto the ground
	rx, ry := groundDir(tr.Right.X, tr.Right.Y)
	ux, uy := groundDir(tr.Up.X, tr.Up.Y)
	coord := orb.Point{
		m.centerCoord.X() + (dx*rx-dy*ux)*res,
		m.centerCoord.Y() + (dx*ry-dy*uy)*res,
	}
	m.mu.Unlock()
	m.SetCenter(m.proj.Unproject(coord))
}

func (m *SimpleMap) Center() orb.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *SimpleMap) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *SimpleMap) Pitch() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pitch
}

func (m *SimpleMap) Rotation() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation
}

// Camera returns a snapshot of the camera.
func (m *SimpleMap) Camera() *camera.PerspectiveCamera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam.Clone()
}

// Bounds is the lng/lat box of the visible ground, ok false when none is visible.
func (m *SimpleMap) Bounds() (orb.Bound, bool) {
	return m.Camera().Bounds()
}

// AddLayer adds l; layers draw in ascending zIndex, ties in insertion order.
func (m *SimpleMap) AddLayer(l *RasterTileLayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers = append(m.layers, l)
	sort.SliceStable(m.layers, func(i, j int) bool {
		return m.layers[i].zIndex < m.layers[j].zIndex
	})
}

// Layers returns the layers in draw order.
func (m *SimpleMap) Layers() []*RasterTileLayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RasterTileLayer(nil), m.layers...)
}

// LayerPlan is the set of tiles one layer requests for a frame.
type LayerPlan struct {
	Layer *RasterTileLayer
	Zoom  int
	Nums  []tile.Num
}

// Plan is the footprint of a frame and the tiles each layer needs for it.
type Plan struct {
	Camera    *camera.PerspectiveCamera
	Footprint camera.Footprint
	Layers    []LayerPlan
}

// Tiles counts the tile numbers of every layer.
func (p Plan) Tiles() int {
	n := 0
	for _, lp := range p.Layers {
		n += len(lp.Nums)
	}
	return n
}

// Plan snapshots the view and lists the visible tiles of every layer, nearest to the center
// first and capped at each layer's MaxTiles.
func (m *SimpleMap) Plan() Plan {
	m.mu.Lock()
	cam := m.cam.Clone()
	zoom := m.zoom
	center := m.centerCoord
	layers := append([]*RasterTileLayer(nil), m.layers...)
	m.mu.Unlock()

	p := Plan{Camera: cam, Footprint: cam.Footprint()}
	if p.Footprint.Empty() {
		return p
	}
	for _, l := range layers {
		z := l.TileZoom(zoom)
		p.Layers = append(p.Layers, LayerPlan{
			Layer: l,
			Zoom:  z,
			Nums:  projection.NearestTileNums(m.proj, p.Footprint.Bound, z, center, l.maxTiles),
		})
	}
	return p
}

// LayerStats summarizes one layer of a frame.
type LayerStats struct {
	Name      string
	Zoom      int
	Requested int
	Loaded    int
	Fresh     int
	Pixels    int
}

// FrameStats summarizes a rendered frame.
type FrameStats struct {
	Case    camera.Case
	Bounds  orb.Bound
	Planar  orb.Bound
	Layers  []LayerStats
	Elapsed time.Duration
}

// Loaded counts the tiles drawn over all layers.
func (s FrameStats) Loaded() int {
	n := 0
	for _, l := range s.Layers {
		n += l.Loaded
	}
	return n
}

func (s FrameStats) String() string {
	return fmt.Sprintf("case=%s layers=%d tiles=%d elapsed=%s", s.Case, len(s.Layers), s.Loaded(), s.Elapsed)
}

// TileFunc observes every tile drawn into a frame.
type TileFunc func(l *RasterTileLayer, t *tile.Tile[source.Raster])

// RenderFrame plans and draws one frame. Each layer streams its tiles from its source and
// draws them as they arrive, layers in zIndex order. onTile may be nil. The returned image is
// reused by the next frame. A cancelled ctx stops loading; the partial frame is returned with
// the context error.
func (m *SimpleMap) RenderFrame(ctx context.Context, onTile TileFunc) (*image.RGBA, FrameStats, error) {
	return m.RenderPlan(ctx, m.Plan(), onTile)
}

// RenderPlan draws a frame from a plan made by Plan.
func (m *SimpleMap) RenderPlan(ctx context.Context, p Plan, onTile TileFunc) (*image.RGBA, FrameStats, error) {
	start := time.Now()
	m.renderMu.Lock()
	defer m.renderMu.Unlock()

	w, h := p.Camera.ViewSize()
	if rw, rh := m.renderer.Size(); rw != int(w) || rh != int(h) {
		if err := m.renderer.Resize(int(w), int(h)); err != nil {
			return nil, FrameStats{}, err
		}
	}
	if err := m.renderer.Begin(p.Camera); err != nil {
		return nil, FrameStats{}, err
	}

	stats := FrameStats{
		Case:   p.Footprint.Case,
		Bounds: p.Footprint.Bound,
		Planar: p.Footprint.Planar,
	}
	for _, lp := range p.Layers {
		ls := LayerStats{Name: lp.Layer.name, Zoom: lp.Zoom, Requested: len(lp.Nums)}

		// one cache entry serves every world copy of a tile
		offsets := make(map[string][]int, len(lp.Nums))
		for _, n := range lp.Nums {
			offsets[n.Key()] = append(offsets[n.Key()], n.Offset)
		}
		for t := range lp.Layer.source.LoadTiles(ctx, lp.Nums) {
			ls.Loaded++
			if t.Fresh() {
				ls.Fresh++
			}
			for _, off := range offsets[t.Num.Key()] {
				ls.Pixels += m.renderer.DrawTile(t, off)
			}
			if onTile != nil {
				onTile(lp.Layer, t)
			}
		}
		stats.Layers = append(stats.Layers, ls)
		log.WithFields(log.Fields{
			"layer":     ls.Name,
			"zoom":      ls.Zoom,
			"requested": ls.Requested,
			"loaded":    ls.Loaded,
			"fresh":     ls.Fresh,
		}).Debug("layer drawn")
	}
	stats.Elapsed = time.Since(start)
	return m.renderer.Frame(), stats, ctx.Err()
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func groundDir(x, y float64) (float64, float64) {
	n := math.Hypot(x, y)
	if n == 0 {
		return 0, 0
	}
	return x / n, y / n
}

func normalizeRotation(r float64) float64 {
	r = math.Mod(r, 360)
	if r < 0 {
		r += 360
	}
	return r
}

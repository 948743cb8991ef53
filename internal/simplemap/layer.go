package simplemap

import (
	"errors"
	"fmt"
	"math"

	"simplemap/internal/source"
)

// Layer defaults of the web client.
const (
	DefaultLayerMinZoom = 2
	DefaultLayerMaxZoom = 22
	DefaultZIndex       = 1
	// DefaultMaxTiles caps the tiles requested per frame; steep pitches see far past the
	// horizon of useful detail.
	DefaultMaxTiles = 256
)

// LayerOptions configures a RasterTileLayer. Zero values take the defaults.
type LayerOptions struct {
	Name     string
	MinZoom  int
	MaxZoom  int
	ZIndex   int
	MaxTiles int
}

// RasterTileLayer draws the raster tiles of one source.
type RasterTileLayer struct {
	name     string
	minZoom  int
	maxZoom  int
	zIndex   int
	maxTiles int
	source   *source.Source[source.Raster]
}

// NewRasterTileLayer binds src to a layer.
func NewRasterTileLayer(src *source.Source[source.Raster], opts LayerOptions) (*RasterTileLayer, error) {
	if src == nil {
		return nil, errors.New("layer needs a source")
	}
	l := &RasterTileLayer{
		name:     opts.Name,
		minZoom:  opts.MinZoom,
		maxZoom:  opts.MaxZoom,
		zIndex:   opts.ZIndex,
		maxTiles: opts.MaxTiles,
		source:   src,
	}
	if l.name == "" {
		l.name = "raster"
	}
	if l.minZoom == 0 && l.maxZoom == 0 {
		l.minZoom, l.maxZoom = DefaultLayerMinZoom, DefaultLayerMaxZoom
	}
	if l.zIndex == 0 {
		l.zIndex = DefaultZIndex
	}
	if l.maxTiles == 0 {
		l.maxTiles = DefaultMaxTiles
	}
	if l.minZoom < 0 || l.maxZoom < l.minZoom || l.maxZoom > 30 {
		return nil, fmt.Errorf("invalid layer zooms [%d, %d]", l.minZoom, l.maxZoom)
	}
	// a frame larger than the cache evicts its own pending tiles
	if capacity := src.Cache().Capacity(); l.maxTiles < 0 || l.maxTiles > capacity {
		return nil, fmt.Errorf("layer %s: maxTiles %d must be in [1, %d], the cache size of its source", l.name, l.maxTiles, capacity)
	}
	return l, nil
}

func (l *RasterTileLayer) Name() string { return l.name }

func (l *RasterTileLayer) ZIndex() int { return l.zIndex }

func (l *RasterTileLayer) MaxTiles() int { return l.maxTiles }

func (l *RasterTileLayer) Source() *source.Source[source.Raster] { return l.source }

// Zooms is the tile zoom range of the layer.
func (l *RasterTileLayer) Zooms() (min, max int) {
	return l.minZoom, l.maxZoom
}

// TileZoom is the tile level drawn at map zoom: the nearest level, kept inside the layer range.
func (l *RasterTileLayer) TileZoom(zoom float64) int {
	z := int(math.Round(zoom))
	if z < l.minZoom {
		return l.minZoom
	}
	if z > l.maxZoom {
		return l.maxZoom
	}
	return z
}

package main

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"simplemap/internal/simplemap"
	"simplemap/internal/source"
)

// Tile map kinds
const (
	KindHTTP      = "http"
	KindMBTiles   = "mbtiles"
	KindDir       = "dir"
	KindSynthetic = "synthetic"
)

// TileMap 瓦片地图类型
type TileMap struct {
	Name   string
	Kind   string
	Schema string //no types,maybe "xyz" or "tms"
	Format string
	URL    string
	// File is the mbtiles file or the tile directory.
	File string
}

// newFetcher opens the tile store of tm. The returned close func is never nil.
func (tm *TileMap) newFetcher(timeout time.Duration) (source.Fetcher, func(), error) {
	nop := func() {}
	switch tm.Kind {
	case KindHTTP:
		f, err := source.NewHTTPFetcher(tm.URL, tm.Schema, timeout)
		if err != nil {
			return nil, nop, err
		}
		return f, nop, nil
	case KindMBTiles:
		f, err := source.OpenMBTiles(tm.File)
		if err != nil {
			return nil, nop, err
		}
		if tm.Format == "" {
			meta, err := f.Metadata()
			if err != nil {
				log.Warnf("read %s metadata error, details: %s", tm.File, err)
			}
			tm.Format = meta["format"]
		}
		return f, func() { f.Close() }, nil
	case KindDir:
		f, err := source.NewDirFetcher(tm.File, tm.Format, tm.Schema)
		if err != nil {
			return nil, nop, err
		}
		return f, nop, nil
	case KindSynthetic:
		return source.SyntheticFetcher{}, nop, nil
	}
	return nil, nop, fmt.Errorf("unknown tile map kind %q", tm.Kind)
}

// newSimpleMap builds the map, its tile source and its single raster layer from conf.
func newSimpleMap(conf *Conf) (*simplemap.SimpleMap, func(), error) {
	fetcher, closer, err := conf.Tm.newFetcher(conf.Task.Timeout)
	if err != nil {
		return nil, nil, err
	}
	src, err := source.New[source.Raster](source.NewRasterSource(fetcher, conf.Tm.Format), source.Options{
		Name:      conf.Tm.Name,
		CacheSize: conf.Task.CacheSize,
		Workers:   conf.Task.Workers,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	layer, err := simplemap.NewRasterTileLayer(src, simplemap.LayerOptions{
		Name:     conf.Tm.Name,
		MinZoom:  conf.Layer.Min,
		MaxZoom:  conf.Layer.Max,
		ZIndex:   conf.Layer.ZIndex,
		MaxTiles: conf.Layer.MaxTiles,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}

	var center orb.Point
	if len(conf.Map.Center) == 2 {
		center = orb.Point{conf.Map.Center[0], conf.Map.Center[1]}
	}
	m, err := simplemap.New(simplemap.Options{
		Center:     center,
		Zoom:       conf.Map.Zoom,
		Pitch:      conf.Map.Pitch,
		Rotation:   conf.Map.Rotation,
		Width:      conf.Map.Width,
		Height:     conf.Map.Height,
		Projection: conf.Map.Projection,
		Fov:        conf.Map.Fov,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	m.AddLayer(layer)
	log.Infof("map %s: %s tiles, center %v zoom %.2f pitch %.1f rotation %.1f",
		conf.App.Title, conf.Tm.describe(), center, m.Zoom(), m.Pitch(), m.Rotation())
	return m, closer, nil
}

func (tm *TileMap) describe() string {
	if tm.Kind == KindHTTP {
		return tm.URL
	}
	if tm.File != "" {
		return tm.Kind + ":" + tm.File
	}
	return tm.Kind
}

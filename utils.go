package main

import (
	"encoding/json"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"simplemap/internal/camera"
	"simplemap/internal/projection"
)

func savePNG(name string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(name), os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func saveGeoJSON(name string, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}

// footprintFeature is the visible ground as a lng/lat polygon, nil when none is visible.
func footprintFeature(fp camera.Footprint, p projection.Projection) *geojson.Feature {
	if fp.Empty() {
		return nil
	}
	// the footprint is convex; order its vertices around the centroid
	var cx, cy float64
	for _, pt := range fp.Points {
		cx += pt.X()
		cy += pt.Y()
	}
	cx /= float64(len(fp.Points))
	cy /= float64(len(fp.Points))
	pts := append([]orb.Point(nil), fp.Points...)
	sort.Slice(pts, func(i, j int) bool {
		return math.Atan2(pts[i].Y()-cy, pts[i].X()-cx) < math.Atan2(pts[j].Y()-cy, pts[j].X()-cx)
	})

	ring := make(orb.Ring, 0, len(pts)+1)
	for _, pt := range pts {
		ring = append(ring, p.Unproject(pt))
	}
	ring = append(ring, ring[0])

	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties = geojson.Properties{
		"name":   "footprint",
		"case":   fp.Case.String(),
		"stroke": "#FF0000",
		"fill":   "#FF0000",
		"fill-opacity": "0.2",
	}
	return f
}

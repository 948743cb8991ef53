// Package projection maps geographic coordinates onto the planar world the camera moves in,
// and numbers the tiles covering a geographic region.
package projection

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// R is the sphere radius of EPSG:3857.
	R = orb.EarthRadius
	// Circumference is the planar width of the world at any zoom.
	Circumference = 2 * math.Pi * R

	DegreeToRadian = math.Pi / 180
	RadianToDegree = 180 / math.Pi

	// MaxLatitude is the latitude at which the Web-Mercator square ends.
	MaxLatitude = 85.0511287798066
)

// Projection converts lng/lat degrees to planar meters and back.
type Projection interface {
	Code() string
	Project(lnglat orb.Point) orb.Point
	Unproject(coord orb.Point) orb.Point
	// Resolution is the planar size of one screen pixel at zoom.
	Resolution(zoom float64) float64
}

// WebMercator is the spherical pseudo-Mercator projection used by web maps.
type WebMercator struct{}

func (WebMercator) Code() string { return "EPSG:3857" }

func (WebMercator) Project(lnglat orb.Point) orb.Point {
	return project.WGS84.ToMercator(lnglat)
}

func (WebMercator) Unproject(coord orb.Point) orb.Point {
	return project.Mercator.ToWGS84(coord)
}

// Resolution ignores the latitude scale factor; the map plane is flat.
func (WebMercator) Resolution(zoom float64) float64 {
	return Circumference / math.Pow(2, zoom) / 256
}

var registry = map[string]Projection{
	"EPSG:3857": WebMercator{},
}

// Lookup returns the projection registered under an EPSG code.
func Lookup(code string) (Projection, error) {
	p, ok := registry[code]
	if !ok {
		return nil, fmt.Errorf("unknown projection %q", code)
	}
	return p, nil
}

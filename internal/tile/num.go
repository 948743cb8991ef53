package tile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize 默认瓦片大小
const TileSize = 256

// ZoomMin 最小级别
const ZoomMin = 0

// ZoomMax 最大级别
const ZoomMax = 22

// Num addresses one tile of the XYZ grid. Offset is the horizontal world copy the tile is
// drawn in when the view spans the antimeridian; it never takes part in identity.
type Num struct {
	X      int
	Y      int
	Z      int
	Offset int
}

// Key is the cache key of the tile, offset excluded.
func (n Num) Key() string {
	return fmt.Sprintf("%d-%d-%d", n.X, n.Y, n.Z)
}

// Same reports whether both numbers address the same tile.
func (n Num) Same(o Num) bool {
	return n.X == o.X && n.Y == o.Y && n.Z == o.Z
}

func (n Num) String() string {
	if n.Offset != 0 {
		return fmt.Sprintf("%d/%d/%d@%d", n.Z, n.X, n.Y, n.Offset)
	}
	return fmt.Sprintf("%d/%d/%d", n.Z, n.X, n.Y)
}

// Valid reports whether x and y fall inside the grid of zoom z.
func (n Num) Valid() bool {
	if n.Z < ZoomMin || n.Z > ZoomMax {
		return false
	}
	size := 1 << uint(n.Z)
	return n.X >= 0 && n.X < size && n.Y >= 0 && n.Y < size
}

// MapTile converts to the orb tile type.
func (n Num) MapTile() maptile.Tile {
	return maptile.New(uint32(n.X), uint32(n.Y), maptile.Zoom(n.Z))
}

// FlipY returns the TMS row of the tile.
func (n Num) FlipY() int {
	return (1 << uint(n.Z)) - 1 - n.Y
}

// Bound is the lng/lat extent of the tile, ignoring offset.
func (n Num) Bound() orb.Bound {
	return n.MapTile().Bound()
}

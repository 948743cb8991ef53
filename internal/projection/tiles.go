package projection

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"simplemap/internal/tile"
)

// TileSpan is the planar width of one tile at zoom z.
func TileSpan(z int) float64 {
	return Circumference / math.Pow(2, float64(z))
}

// Grid is a block of XYZ tiles at one zoom. Rows are clamped to the world; columns are
// unwrapped and may run past either side of it.
type Grid struct {
	Z              int
	MinCol, MaxCol int
	MinRow, MaxRow int
}

// TileGrid covers a lng/lat bound at zoom z.
func TileGrid(p Projection, bound orb.Bound, z int) Grid {
	min := p.Project(bound.Min)
	max := p.Project(bound.Max)
	n := 1 << uint(z)
	span := TileSpan(z)
	half := Circumference / 2

	// x starts at -180°, y at the top edge of the world
	return Grid{
		Z:      z,
		MinCol: int(math.Floor((min.X() + half) / span)),
		MaxCol: int(math.Floor((max.X() + half) / span)),
		MinRow: clamp(int(math.Floor((half-max.Y())/span)), 0, n-1),
		MaxRow: clamp(int(math.Floor((half-min.Y())/span)), 0, n-1),
	}
}

// Count is the number of tiles in the grid.
func (g Grid) Count() int {
	if g.MaxCol < g.MinCol || g.MaxRow < g.MinRow {
		return 0
	}
	return (g.MaxCol - g.MinCol + 1) * (g.MaxRow - g.MinRow + 1)
}

// Num wraps an unwrapped column into the world and records the copy in Offset.
func (g Grid) Num(col, row int) tile.Num {
	x, offset := wrap(col, 1<<uint(g.Z))
	return tile.Num{X: x, Y: row, Z: g.Z, Offset: offset}
}

// Nums lists the grid column by column.
func (g Grid) Nums() []tile.Num {
	nums := make([]tile.Num, 0, g.Count())
	for col := g.MinCol; col <= g.MaxCol; col++ {
		for row := g.MinRow; row <= g.MaxRow; row++ {
			nums = append(nums, g.Num(col, row))
		}
	}
	return nums
}

// TileNums lists the XYZ tiles covering a lng/lat bound at zoom z. Rows are clamped to the
// world; columns past the antimeridian wrap around and carry the world copy in Offset.
func TileNums(p Projection, bound orb.Bound, z int) []tile.Num {
	return TileGrid(p, bound, z).Nums()
}

// NearestTileNums lists at most limit tiles of the bound, the ones whose centers are closest
// to the planar point center first. limit <= 0 lists all of them in that order.
func NearestTileNums(p Projection, bound orb.Bound, z int, center orb.Point, limit int) []tile.Num {
	g := TileGrid(p, bound, z)
	span := TileSpan(z)
	half := Circumference / 2
	cc := (center.X() + half) / span
	cr := (half - center.Y()) / span

	// the limit nearest tiles of a block holding the center lie within limit rings of it
	if limit > 0 {
		col, row := int(math.Floor(cc)), int(math.Floor(cr))
		g.MinCol = max(g.MinCol, col-limit)
		g.MaxCol = min(g.MaxCol, col+limit)
		g.MinRow = max(g.MinRow, row-limit)
		g.MaxRow = min(g.MaxRow, row+limit)
	}

	type ranked struct {
		col, row int
		dist     float64
	}
	cells := make([]ranked, 0, g.Count())
	for col := g.MinCol; col <= g.MaxCol; col++ {
		for row := g.MinRow; row <= g.MaxRow; row++ {
			dx := float64(col) + 0.5 - cc
			dy := float64(row) + 0.5 - cr
			cells = append(cells, ranked{col, row, dx*dx + dy*dy})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].dist < cells[j].dist
	})
	if limit > 0 && len(cells) > limit {
		cells = cells[:limit]
	}
	nums := make([]tile.Num, len(cells))
	for i, c := range cells {
		nums[i] = g.Num(c.col, c.row)
	}
	return nums
}

// TileCoordBounds is the planar extent of num, shifted into its world copy.
func TileCoordBounds(num tile.Num) orb.Bound {
	span := TileSpan(num.Z)
	half := Circumference / 2
	shift := float64(num.Offset) * Circumference

	minX := span*float64(num.X) - half + shift
	maxX := span*float64(num.X+1) - half + shift
	maxY := half - span*float64(num.Y)
	minY := half - span*float64(num.Y+1)
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

func wrap(col, n int) (x, offset int) {
	offset = col / n
	x = col % n
	if x < 0 {
		x += n
		offset--
	}
	return x, offset
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

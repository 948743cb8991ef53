package camera

import (
	"math/bits"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFootprintPitchZero(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 1, 0, 0)
	fp := c.Footprint()
	require.False(t, fp.Empty())
	assert.Equal(t, CaseAllBelow, fp.Case)
	assert.Len(t, fp.Points, 4)

	// the ground rectangle keeps the screen aspect
	w := fp.Planar.Max.X() - fp.Planar.Min.X()
	h := fp.Planar.Max.Y() - fp.Planar.Min.Y()
	assert.InEpsilon(t, 800.0/600.0, w/h, 1e-9)
	res := c.Projection().Resolution(1)
	assert.InEpsilon(t, 800*res, w, 1e-9)
	assert.InEpsilon(t, 600*res, h, 1e-9)

	// centered on the target
	center := fp.Bound.Center()
	assert.InDelta(t, 0, center.X(), 1e-9)
	assert.InDelta(t, 0, center.Y(), 1e-9)
	assert.InDelta(t, -fp.Bound.Min.X(), fp.Bound.Max.X(), 1e-9)
	assert.InDelta(t, -fp.Bound.Min.Y(), fp.Bound.Max.Y(), 1e-9)
}

func TestFootprintPitchZeroOffOrigin(t *testing.T) {
	c := makeCamera(t, orb.Point{126.97, 37.56}, 12, 0, 0)
	fp := c.Footprint()
	center := fp.Planar.Center()
	assert.InDelta(t, c.Target().X(), center.X(), 1e-6)
	assert.InDelta(t, c.Target().Y(), center.Y(), 1e-6)
	assert.InDelta(t, 126.97, fp.Bound.Center().X(), 1e-9)
}

func TestFootprintCases(t *testing.T) {
	for _, tc := range []struct {
		name            string
		pitch, rotation float64
		want            Case
	}{
		{"top down", 0, 0, CaseAllBelow},
		{"pitched", 45, 0, CaseAllBelow},
		{"horizon", 80, 0, CaseTwoAbove},
		{"horizon rotated", 80, 90, CaseTwoAbove},
		{"corner over horizon", 70, 45, CaseOneAbove},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := makeCamera(t, orb.Point{0, 0}, 4, tc.pitch, tc.rotation)
			fp := c.Footprint()
			assert.Equal(t, tc.want, fp.Case, fp.Pattern)
			assert.False(t, fp.Empty())
		})
	}
}

func TestFootprintHorizonPattern(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 4, 80, 0)
	fp := c.Footprint()
	assert.Equal(t, AboveRT|AboveLT, fp.Pattern)
	assert.Len(t, fp.Points, 4)
	// the near edge is closer to the target than the far edge
	assert.Less(t, c.Target().Y()-fp.Planar.Min.Y(), fp.Planar.Max.Y()-c.Target().Y())
}

func TestFootprintLookingUp(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 4, 150, 0)
	fp := c.Footprint()
	assert.Equal(t, CaseNone, fp.Case)
	assert.True(t, fp.Empty())

	b, ok := c.Bounds()
	assert.False(t, ok)
	assert.Equal(t, b.Min, b.Max)
}

func TestFootprintContainsTarget(t *testing.T) {
	seen := map[Case]bool{}
	for pitch := 0.0; pitch <= 85; pitch += 5 {
		for rotation := 0.0; rotation < 360; rotation += 15 {
			c := makeCamera(t, orb.Point{10, 45}, 8, pitch, rotation)
			fp := c.Footprint()
			seen[fp.Case] = true
			require.NotEqual(t, CaseDegenerate, fp.Case, "pitch %v rotation %v", pitch, rotation)
			require.False(t, fp.Empty(), "pitch %v rotation %v", pitch, rotation)
			assert.True(t, fp.Planar.Pad(1e-3).Contains(c.Target()), "pitch %v rotation %v", pitch, rotation)
		}
	}
	assert.True(t, seen[CaseAllBelow])
	assert.True(t, seen[CaseOneAbove])
	assert.True(t, seen[CaseTwoAbove])
}

func TestFootprintRules(t *testing.T) {
	sides := map[int]Pattern{
		planeLeft:   AboveLB | AboveLT,
		planeRight:  AboveRB | AboveRT,
		planeTop:    AboveRT | AboveLT,
		planeBottom: AboveLB | AboveRB,
	}
	for p := Pattern(0); p < 16; p++ {
		rule := footprintRules[p]
		diagonal := p == AboveLB|AboveRT || p == AboveRB|AboveLT

		switch n := bits.OnesCount8(uint8(p)); {
		case n == 0:
			assert.Equal(t, CaseAllBelow, rule.kind)
		case n == 4:
			assert.Equal(t, CaseNone, rule.kind)
			assert.Empty(t, rule.cycle)
			continue
		case diagonal:
			assert.Equal(t, CaseDegenerate, rule.kind)
			continue
		default:
			assert.Equal(t, CaseNone+Case(n)+1, rule.kind, "pattern %04b", p)
		}

		has := map[int]bool{}
		for _, l := range rule.cycle {
			has[l] = true
		}
		assert.Equal(t, p != 0, has[planeFar], "pattern %04b far", p)
		for side, corners := range sides {
			assert.Equal(t, p&corners != corners, has[side], "pattern %04b side %d", p, side)
		}
	}
}

func TestIntersect(t *testing.T) {
	// x = 1 and y = 2
	p, ok := intersect(line{A: 1, D: -1}, line{B: 1, D: -2})
	require.True(t, ok)
	assert.InDelta(t, 1, p.X(), 1e-12)
	assert.InDelta(t, 2, p.Y(), 1e-12)

	// parallel
	_, ok = intersect(line{A: 1, D: -1}, line{A: 1, D: -3})
	assert.False(t, ok)

	// same line
	_, ok = intersect(line{A: 1, D: -1}, line{A: 1, D: -1})
	assert.False(t, ok)

	// small determinant, nearly anti-parallel
	_, ok = intersect(line{A: 1, B: 0}, line{A: -1, B: 0.05, D: 1})
	assert.False(t, ok)

	// small determinant, nearly parallel is still solved
	p, ok = intersect(line{A: 1, B: 0}, line{A: 1, B: 0.05, D: -0.05})
	require.True(t, ok)
	assert.InDelta(t, 0, p.X(), 1e-9)
	assert.InDelta(t, 1, p.Y(), 1e-9)
}

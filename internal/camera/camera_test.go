package camera

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"simplemap/internal/projection"
)

func makeCamera(t *testing.T, target orb.Point, zoom, pitch, rotation float64) *PerspectiveCamera {
	c, err := New(Options{
		Width:      800,
		Height:     600,
		Target:     projection.WebMercator{}.Project(target),
		Zoom:       zoom,
		Pitch:      pitch,
		Rotation:   rotation,
		Projection: projection.WebMercator{},
	})
	require.NoError(t, err)
	return c
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Width: 0, Height: 600, Projection: projection.WebMercator{}})
	assert.Error(t, err)
	_, err = New(Options{Width: 800, Height: 600})
	assert.Error(t, err)
	_, err = New(Options{Width: 800, Height: 600, Fov: 180, Projection: projection.WebMercator{}})
	assert.Error(t, err)
}

func TestUpdateZoomIntrinsics(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 3, 0, 0)
	res := projection.WebMercator{}.Resolution(3)

	assert.InDelta(t, 600*res/(2*math.Tan(30*math.Pi/180)), c.Altitude(), 1e-6)
	assert.InDelta(t, c.Altitude()*0.1, c.Near(), 1e-9)
	assert.InDelta(t, 500, c.Far()/c.Near(), 1e-9)
	w, h := c.NearPlaneSize()
	assert.InDelta(t, 800*res*0.1, w, 1e-6)
	assert.InDelta(t, 600*res*0.1, h, 1e-6)
	assert.InDelta(t, 800.0/600.0, c.Aspect(), 1e-12)
}

func TestZoomMonotonicity(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 0, 0, 0)
	p := c.Projection()
	prevW, prevH := c.NearPlaneSize()
	prevRes := p.Resolution(0)
	for z := 0.5; z <= 20; z += 0.5 {
		c.UpdateZoom(z)
		w, h := c.NearPlaneSize()
		assert.Less(t, p.Resolution(z), prevRes)
		assert.Less(t, w, prevW)
		assert.Less(t, h, prevH)
		prevW, prevH, prevRes = w, h, p.Resolution(z)
	}
}

func TestTransformOrthonormal(t *testing.T) {
	c := makeCamera(t, orb.Point{10, 20}, 5, 0, 0)
	for pitch := 0.0; pitch <= 80; pitch += 10 {
		for rotation := -180.0; rotation <= 360; rotation += 45 {
			tr := c.UpdateTransform(c.Target(), rotation, pitch)
			assert.InDelta(t, 1, r3.Norm(tr.Right), 1e-12)
			assert.InDelta(t, 1, r3.Norm(tr.Up), 1e-12)
			assert.InDelta(t, 1, r3.Norm(tr.Forward), 1e-12)
			assert.InDelta(t, 0, r3.Dot(tr.Right, tr.Up), 1e-12)
			assert.InDelta(t, 0, r3.Dot(tr.Up, tr.Forward), 1e-12)
			assert.InDelta(t, 0, r3.Dot(tr.Forward, tr.Right), 1e-12)

			// right handed
			cross := r3.Cross(tr.Right, tr.Up)
			assert.InDelta(t, 0, r3.Norm(r3.Sub(cross, tr.Forward)), 1e-12)

			// lifted from the target along forward
			lift := r3.Sub(tr.Position, r3.Vec{X: c.Target().X(), Y: c.Target().Y()})
			assert.InDelta(t, c.Altitude(), r3.Norm(lift), 1e-6)
			assert.InDelta(t, 1, r3.Dot(r3.Unit(lift), tr.Forward), 1e-9)
		}
	}
}

func TestTransformPitchZero(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 2, 0, 0)
	tr := c.Transform()
	assert.InDelta(t, 0, tr.Position.X, 1e-9)
	assert.InDelta(t, 0, tr.Position.Y, 1e-9)
	assert.InDelta(t, c.Altitude(), tr.Position.Z, 1e-9)
}

func TestProjectionMatrixMatchesFov(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 4, 30, 0)
	m := c.ProjectionMatrix()
	f := 1 / math.Tan(c.Fov()/2)
	assert.InDelta(t, f, m.At(1, 1), 1e-9)
	assert.InDelta(t, f/c.Aspect(), m.At(0, 0), 1e-9)
}

func TestInverseVPMatrix(t *testing.T) {
	c := makeCamera(t, orb.Point{126.97, 37.56}, 6, 40, 30)
	var id mat.Dense
	id.Mul(c.VPMatrix(), c.InverseVPMatrix())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, id.At(i, j), 1e-6, "(%d,%d)", i, j)
		}
	}
}

func TestTargetAtScreenCenter(t *testing.T) {
	for _, tc := range []struct{ pitch, rotation float64 }{{0, 0}, {45, 0}, {60, 90}, {80, -30}} {
		c := makeCamera(t, orb.Point{2.35, 48.85}, 10, tc.pitch, tc.rotation)
		sx, sy, ok := c.Project(c.Target())
		require.True(t, ok)
		assert.InDelta(t, 400, sx, 1e-6)
		assert.InDelta(t, 300, sy, 1e-6)

		g, ok := c.Pick(400, 300)
		require.True(t, ok)
		assert.InDelta(t, c.Target().X(), g.X(), 1e-3)
		assert.InDelta(t, c.Target().Y(), g.Y(), 1e-3)
	}
}

func TestPickSky(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 10, 80, 0)
	_, ok := c.Pick(400, 0)
	assert.False(t, ok, "top of a steep view looks past the far plane")
	_, ok = c.Pick(400, 599)
	assert.True(t, ok)
}

func TestSetViewSize(t *testing.T) {
	c := makeCamera(t, orb.Point{0, 0}, 3, 0, 0)
	alt := c.Altitude()
	require.NoError(t, c.SetViewSize(1600, 1200))
	assert.InDelta(t, 2*alt, c.Altitude(), 1e-6)
	assert.InDelta(t, 2*alt, c.Transform().Position.Z, 1e-6)
	assert.Error(t, c.SetViewSize(0, 10))
}

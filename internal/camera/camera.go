// Package camera implements the perspective camera looking down on the z=0 map plane.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"simplemap/internal/projection"
)

const (
	// DefaultFov is the vertical field of view in degrees.
	DefaultFov = 60.0

	nearFactor = 0.1
	farFactor  = 50.0
)

// canonical axes before pitch and rotation are applied
var (
	axisRight   = r3.Vec{X: 1}
	axisUp      = r3.Vec{Y: 1}
	axisForward = r3.Vec{Z: 1}
)

// Transform is the camera frame in planar world space. Forward points from the target to
// the camera; the camera looks along -Forward. Right × Up = Forward.
type Transform struct {
	Position r3.Vec
	Forward  r3.Vec
	Up       r3.Vec
	Right    r3.Vec
}

// Options configures a new camera. Target is planar, angles are degrees.
type Options struct {
	Width, Height float64
	Target        orb.Point
	Zoom          float64
	Pitch         float64
	Rotation      float64
	Fov           float64
	Projection    projection.Projection
}

// PerspectiveCamera derives every transform and intrinsic from target, zoom, pitch, rotation
// and viewport size. Each mutator recomputes its dependent state in full.
type PerspectiveCamera struct {
	width, height float64

	zoom     float64
	target   orb.Point
	pitch    float64
	rotation float64

	fov             float64
	near, far       float64
	aspect          float64
	nearPlaneWidth  float64
	nearPlaneHeight float64
	altitude        float64

	transform  Transform
	projection projection.Projection
}

// New validates opts and builds a camera.
func New(opts Options) (*PerspectiveCamera, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid view size %gx%g", opts.Width, opts.Height)
	}
	if opts.Projection == nil {
		return nil, errors.New("camera needs a projection")
	}
	fov := opts.Fov
	if fov == 0 {
		fov = DefaultFov
	}
	if fov <= 0 || fov >= 180 {
		return nil, fmt.Errorf("invalid field of view %g°", fov)
	}
	c := &PerspectiveCamera{
		width:      opts.Width,
		height:     opts.Height,
		fov:        fov * projection.DegreeToRadian,
		projection: opts.Projection,
	}
	c.UpdateZoom(opts.Zoom)
	c.UpdateTransform(opts.Target, opts.Rotation, opts.Pitch)
	if !(c.near > 0 && c.near < c.far) {
		return nil, fmt.Errorf("invalid clip planes near=%g far=%g", c.near, c.far)
	}
	return c, nil
}

// UpdateZoom recomputes altitude, clip planes and near plane size for zoom. The transform is
// left alone; call UpdateTransform afterwards since the altitude moved.
func (c *PerspectiveCamera) UpdateZoom(zoom float64) float64 {
	resolution := c.projection.Resolution(zoom)
	viewWidth := c.width * resolution
	viewHeight := c.height * resolution

	// the ground plane, not the near plane, spans viewHeight
	altitude := viewHeight / (2 * math.Tan(c.fov/2))

	c.zoom = zoom
	c.altitude = altitude
	c.near = altitude * nearFactor
	c.far = altitude * farFactor
	c.nearPlaneWidth = viewWidth * nearFactor
	c.nearPlaneHeight = viewHeight * nearFactor
	c.aspect = viewWidth / viewHeight
	return zoom
}

// UpdateTransform rebuilds the camera frame: pitch about the lateral axis, then rotation
// about the pitched forward axis. Position is the target lifted along forward by the altitude.
func (c *PerspectiveCamera) UpdateTransform(target orb.Point, rotation, pitch float64) Transform {
	pitchRad := pitch * projection.DegreeToRadian
	rotationRad := rotation * projection.DegreeToRadian

	pitchRot := r3.NewRotation(pitchRad, axisRight)
	forward := pitchRot.Rotate(axisForward)
	up := pitchRot.Rotate(axisUp)
	right := axisRight

	position := r3.Add(r3.Vec{X: target.X(), Y: target.Y()}, r3.Scale(c.altitude, forward))

	roll := r3.NewRotation(rotationRad, forward)
	up = roll.Rotate(up)
	right = roll.Rotate(right)

	c.target = target
	c.pitch = pitch
	c.rotation = rotation
	c.transform = Transform{
		Position: position,
		Forward:  forward,
		Up:       up,
		Right:    right,
	}
	return c.transform
}

// SetViewSize resizes the viewport and refreshes all derived state.
func (c *PerspectiveCamera) SetViewSize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid view size %gx%g", width, height)
	}
	c.width, c.height = width, height
	c.UpdateZoom(c.zoom)
	c.UpdateTransform(c.target, c.rotation, c.pitch)
	return nil
}

// Clone returns an independent copy, safe to read while the original keeps moving.
func (c *PerspectiveCamera) Clone() *PerspectiveCamera {
	cp := *c
	return &cp
}

func (c *PerspectiveCamera) Transform() Transform { return c.transform }

func (c *PerspectiveCamera) Projection() projection.Projection { return c.projection }

func (c *PerspectiveCamera) Zoom() float64 { return c.zoom }

func (c *PerspectiveCamera) Target() orb.Point { return c.target }

func (c *PerspectiveCamera) Pitch() float64 { return c.pitch }

func (c *PerspectiveCamera) Rotation() float64 { return c.rotation }

func (c *PerspectiveCamera) Near() float64 { return c.near }

func (c *PerspectiveCamera) Far() float64 { return c.far }

func (c *PerspectiveCamera) Aspect() float64 { return c.aspect }

// Fov is the vertical field of view in radians.
func (c *PerspectiveCamera) Fov() float64 { return c.fov }

func (c *PerspectiveCamera) Altitude() float64 { return c.altitude }

// NearPlaneSize is the planar width and height of the near clip rectangle.
func (c *PerspectiveCamera) NearPlaneSize() (width, height float64) {
	return c.nearPlaneWidth, c.nearPlaneHeight
}

// ViewSize is the viewport in pixels.
func (c *PerspectiveCamera) ViewSize() (width, height float64) {
	return c.width, c.height
}

// ViewMatrix moves the world so the camera sits at the origin looking down -z.
func (c *PerspectiveCamera) ViewMatrix() *mat.Dense {
	P, F, U, R := c.transform.Position, c.transform.Forward, c.transform.Up, c.transform.Right
	translate := mat.NewDense(4, 4, []float64{
		1, 0, 0, -P.X,
		0, 1, 0, -P.Y,
		0, 0, 1, -P.Z,
		0, 0, 0, 1,
	})
	rotate := mat.NewDense(4, 4, []float64{
		R.X, R.Y, R.Z, 0,
		U.X, U.Y, U.Z, 0,
		F.X, F.Y, F.Z, 0,
		0, 0, 0, 1,
	})
	var view mat.Dense
	view.Mul(rotate, translate)
	return &view
}

// ProjectionMatrix is built from the near plane extents; it equals the fov/aspect form.
func (c *PerspectiveCamera) ProjectionMatrix() *mat.Dense {
	n, f := c.near, c.far
	return mat.NewDense(4, 4, []float64{
		n / (c.nearPlaneWidth / 2), 0, 0, 0,
		0, n / (c.nearPlaneHeight / 2), 0, 0,
		0, 0, -(f + n) / (f - n), -2 * f * n / (f - n),
		0, 0, -1, 0,
	})
}

// VPMatrix maps planar world points to clip space.
func (c *PerspectiveCamera) VPMatrix() *mat.Dense {
	var vp mat.Dense
	vp.Mul(c.ProjectionMatrix(), c.ViewMatrix())
	return &vp
}

// InverseVPMatrix maps clip space back to the world. It is assembled from the closed-form
// inverses of both factors, which keeps precision at planar magnitudes of 1e7.
func (c *PerspectiveCamera) InverseVPMatrix() *mat.Dense {
	P, F, U, R := c.transform.Position, c.transform.Forward, c.transform.Up, c.transform.Right
	invView := mat.NewDense(4, 4, []float64{
		R.X, U.X, F.X, P.X,
		R.Y, U.Y, F.Y, P.Y,
		R.Z, U.Z, F.Z, P.Z,
		0, 0, 0, 1,
	})

	proj := c.ProjectionMatrix()
	a, b := proj.At(0, 0), proj.At(1, 1)
	m22, m23 := proj.At(2, 2), proj.At(2, 3)
	invProj := mat.NewDense(4, 4, []float64{
		1 / a, 0, 0, 0,
		0, 1 / b, 0, 0,
		0, 0, 0, -1,
		0, 0, 1 / m23, m22 / m23,
	})

	var inv mat.Dense
	inv.Mul(invView, invProj)
	return &inv
}

// transformPoint applies m to (x, y, z, w) and returns the homogeneous result.
func transformPoint(m mat.Matrix, x, y, z, w float64) [4]float64 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(4, []float64{x, y, z, w}))
	return [4]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2), out.AtVec(3)}
}

// Project returns the screen pixel of a planar ground point, false if it is behind the camera.
func (c *PerspectiveCamera) Project(p orb.Point) (sx, sy float64, ok bool) {
	clip := transformPoint(c.VPMatrix(), p.X(), p.Y(), 0, 1)
	if clip[3] <= 0 {
		return 0, 0, false
	}
	ndcX, ndcY := clip[0]/clip[3], clip[1]/clip[3]
	sx = (ndcX + 1) / 2 * c.width
	sy = (1 - ndcY) / 2 * c.height
	return sx, sy, true
}

// Picker intersects screen rays with the ground plane.
type Picker struct {
	inv           *mat.Dense
	width, height float64
}

// Picker snapshots the current inverse view-projection.
func (c *PerspectiveCamera) Picker() *Picker {
	return &Picker{inv: c.InverseVPMatrix(), width: c.width, height: c.height}
}

// Pick returns the planar ground point seen through screen position (sx, sy), false when the
// ray meets the sky or passes the far plane first.
func (p *Picker) Pick(sx, sy float64) (orb.Point, bool) {
	ndcX := 2*sx/p.width - 1
	ndcY := 1 - 2*sy/p.height

	n := transformPoint(p.inv, ndcX, ndcY, -1, 1)
	f := transformPoint(p.inv, ndcX, ndcY, 1, 1)
	n0 := r3.Vec{X: n[0] / n[3], Y: n[1] / n[3], Z: n[2] / n[3]}
	f0 := r3.Vec{X: f[0] / f[3], Y: f[1] / f[3], Z: f[2] / f[3]}

	dz := n0.Z - f0.Z
	if dz == 0 {
		return orb.Point{}, false
	}
	t := n0.Z / dz
	if t < 0 || t > 1 {
		return orb.Point{}, false
	}
	g := r3.Add(n0, r3.Scale(t, r3.Sub(f0, n0)))
	return orb.Point{g.X, g.Y}, true
}

// Pick is a one-off ground lookup; use Picker for many.
func (c *PerspectiveCamera) Pick(sx, sy float64) (orb.Point, bool) {
	return c.Picker().Pick(sx, sy)
}

package camera

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// epsilonDet rejects line pairs whose 2x2 system is numerically singular.
	epsilonDet = 1e-4
	// epsilonNearParallel is the determinant below which the angle test runs.
	epsilonNearParallel = 0.1
	// epsilonRadian is how close to anti-parallel two lines may get before being skipped.
	epsilonRadian = 20 * math.Pi / 180
)

// frustum corner indices: near plane then far plane, each LB, RB, RT, LT as seen on screen
const (
	nearLB = iota
	nearRB
	nearRT
	nearLT
	farLB
	farRB
	farRT
	farLT
)

// frustum plane indices
const (
	planeLeft = iota
	planeRight
	planeTop
	planeBottom
	planeNear
	planeFar
)

var ndcCorners = [8][3]float64{
	nearLB: {-1, -1, -1},
	nearRB: {1, -1, -1},
	nearRT: {1, 1, -1},
	nearLT: {-1, 1, -1},
	farLB:  {-1, -1, 1},
	farRB:  {1, -1, 1},
	farRT:  {1, 1, 1},
	farLT:  {-1, 1, 1},
}

var planeCorners = [6][3]int{
	planeLeft:   {nearLB, nearLT, farLB},
	planeRight:  {nearRB, farRB, nearRT},
	planeTop:    {nearLT, nearRT, farLT},
	planeBottom: {nearLB, farLB, nearRB},
	planeNear:   {nearLB, nearRB, nearRT},
	planeFar:    {farLB, farRB, farRT},
}

// Case names how the ground plane cuts the far end of the frustum.
type Case int

const (
	// CaseNone: every far corner is above the ground, nothing of the map is visible.
	CaseNone Case = iota
	// CaseAllBelow: every far corner is below the ground, the four sides bound the footprint.
	CaseAllBelow
	// CaseOneAbove: the far plane clips one corner of the footprint.
	CaseOneAbove
	// CaseTwoAbove: the far plane replaces one side of the footprint.
	CaseTwoAbove
	// CaseThreeAbove: the footprint is a triangle of two sides and the far plane.
	CaseThreeAbove
	// CaseDegenerate: diagonal far corners above ground, which a plane cannot produce.
	CaseDegenerate
)

func (c Case) String() string {
	switch c {
	case CaseNone:
		return "none"
	case CaseAllBelow:
		return "all-below"
	case CaseOneAbove:
		return "one-above"
	case CaseTwoAbove:
		return "two-above"
	case CaseThreeAbove:
		return "three-above"
	case CaseDegenerate:
		return "degenerate"
	}
	return "unknown"
}

// Pattern has bit i set when far corner i (LB, RB, RT, LT) is on or above the ground.
type Pattern uint8

const (
	AboveLB Pattern = 1 << iota
	AboveRB
	AboveRT
	AboveLT
)

type footprintRule struct {
	kind  Case
	cycle []int
}

// footprintRules lists, for each far-corner pattern, the ordered cycle of ground lines whose
// consecutive intersections are the footprint vertices.
var footprintRules = [16]footprintRule{
	0:                                     {CaseAllBelow, []int{planeLeft, planeTop, planeRight, planeBottom}},
	AboveLB:                               {CaseOneAbove, []int{planeLeft, planeTop, planeRight, planeBottom, planeFar}},
	AboveRB:                               {CaseOneAbove, []int{planeLeft, planeTop, planeRight, planeFar, planeBottom}},
	AboveRT:                               {CaseOneAbove, []int{planeLeft, planeTop, planeFar, planeRight, planeBottom}},
	AboveLT:                               {CaseOneAbove, []int{planeLeft, planeFar, planeTop, planeRight, planeBottom}},
	AboveLB | AboveRB:                     {CaseTwoAbove, []int{planeLeft, planeTop, planeRight, planeFar}},
	AboveRB | AboveRT:                     {CaseTwoAbove, []int{planeLeft, planeTop, planeFar, planeBottom}},
	AboveRT | AboveLT:                     {CaseTwoAbove, []int{planeLeft, planeFar, planeRight, planeBottom}},
	AboveLT | AboveLB:                     {CaseTwoAbove, []int{planeFar, planeTop, planeRight, planeBottom}},
	AboveLB | AboveRB | AboveRT:           {CaseThreeAbove, []int{planeLeft, planeTop, planeFar}},
	AboveRB | AboveRT | AboveLT:           {CaseThreeAbove, []int{planeLeft, planeFar, planeBottom}},
	AboveRT | AboveLT | AboveLB:           {CaseThreeAbove, []int{planeRight, planeBottom, planeFar}},
	AboveLT | AboveLB | AboveRB:           {CaseThreeAbove, []int{planeTop, planeRight, planeFar}},
	AboveLB | AboveRT:                     {CaseDegenerate, []int{planeLeft, planeTop, planeRight, planeBottom}},
	AboveRB | AboveLT:                     {CaseDegenerate, []int{planeLeft, planeTop, planeRight, planeBottom}},
	AboveLB | AboveRB | AboveRT | AboveLT: {CaseNone, nil},
}

// Footprint is the part of the ground plane inside the view frustum.
type Footprint struct {
	Case    Case
	Pattern Pattern
	// Corners are the frustum corners in planar world space.
	Corners [8]r3.Vec
	// Points are the footprint vertices in planar space.
	Points []orb.Point
	// Planar is the bounding box of Points.
	Planar orb.Bound
	// Bound is Planar unprojected to lng/lat.
	Bound orb.Bound
}

// Empty reports whether no ground is visible.
func (f Footprint) Empty() bool {
	return len(f.Points) == 0
}

// line is A·x + B·y + D = 0 on the ground plane.
type line struct {
	A, B, D float64
}

// Footprint intersects the frustum with the z=0 ground plane.
func (c *PerspectiveCamera) Footprint() Footprint {
	inv := c.InverseVPMatrix()

	var fp Footprint
	var centroid r3.Vec
	for i, ndc := range ndcCorners {
		h := transformPoint(inv, ndc[0], ndc[1], ndc[2], 1)
		p := r3.Vec{X: h[0] / h[3], Y: h[1] / h[3], Z: h[2] / h[3]}
		fp.Corners[i] = p
		centroid = r3.Add(centroid, p)
	}
	centroid = r3.Scale(1.0/8, centroid)

	var lines [6]line
	for i, tri := range planeCorners {
		a, b, cc := fp.Corners[tri[0]], fp.Corners[tri[1]], fp.Corners[tri[2]]
		normal := r3.Unit(r3.Cross(r3.Sub(b, a), r3.Sub(cc, a)))
		d := -r3.Dot(normal, a)
		// inward normals: the frustum centroid lies on the positive side
		if r3.Dot(normal, centroid)+d < 0 {
			normal = r3.Scale(-1, normal)
			d = -d
		}
		// on z=0 the C·z term vanishes
		lines[i] = line{A: normal.X, B: normal.Y, D: d}
	}

	fp.Pattern = classify(fp.Corners)
	rule := footprintRules[fp.Pattern]
	fp.Case = rule.kind

	for i := range rule.cycle {
		l1 := lines[rule.cycle[i]]
		l2 := lines[rule.cycle[(i+1)%len(rule.cycle)]]
		if p, ok := intersect(l1, l2); ok {
			fp.Points = append(fp.Points, p)
		}
	}

	proj := c.projection
	if len(fp.Points) == 0 {
		fp.Planar = orb.Bound{Min: c.target, Max: c.target}
		ll := proj.Unproject(c.target)
		fp.Bound = orb.Bound{Min: ll, Max: ll}
		return fp
	}

	fp.Planar = orb.MultiPoint(fp.Points).Bound()
	fp.Bound = orb.Bound{
		Min: proj.Unproject(fp.Planar.Min),
		Max: proj.Unproject(fp.Planar.Max),
	}
	return fp
}

// Bounds is the lng/lat box of the visible ground. ok is false when no ground is visible,
// in which case the box is empty and sits at the target.
func (c *PerspectiveCamera) Bounds() (orb.Bound, bool) {
	fp := c.Footprint()
	return fp.Bound, !fp.Empty()
}

func classify(corners [8]r3.Vec) Pattern {
	var p Pattern
	for bit, idx := range []int{farLB, farRB, farRT, farLT} {
		if corners[idx].Z >= 0 {
			p |= 1 << uint(bit)
		}
	}
	return p
}

// intersect solves the 2x2 system of two ground lines. Near-singular systems and nearly
// anti-parallel lines yield no point.
func intersect(l1, l2 line) (orb.Point, bool) {
	if l1 == l2 {
		return orb.Point{}, false
	}
	det := l1.A*l2.B - l1.B*l2.A
	absDet := math.Abs(det)
	if absDet < epsilonDet {
		return orb.Point{}, false
	}
	if absDet < epsilonNearParallel {
		n1 := math.Hypot(l1.A, l1.B)
		n2 := math.Hypot(l2.A, l2.B)
		cos := (l1.A*l2.A + l1.B*l2.B) / (n1 * n2)
		cos = math.Max(-1, math.Min(1, cos))
		if math.Pi-math.Acos(cos) < epsilonRadian {
			return orb.Point{}, false
		}
	}
	x := (-l1.D*l2.B + l2.D*l1.B) / det
	y := (-l2.D*l1.A + l1.D*l2.A) / det
	return orb.Point{x, y}, true
}

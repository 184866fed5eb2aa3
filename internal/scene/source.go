package scene

import (
	"fmt"
	"math"

	"github.com/roach88/bakeflow/internal/geometry"
)

// Source derives geometry for scene objects on demand, keyed by the same
// slug scheme the geometry store uses. Implementations are expected to be
// deterministic for a given (slug, frame) pair: the export scheduler
// relies on re-derivation producing identical payloads.
type Source interface {
	// StaticMesh returns the object's untransformed basis mesh.
	StaticMesh(slug string) (*geometry.Mesh, error)

	// MeshAt returns the object's full mesh at one frame (animated export).
	MeshAt(slug string, frame int) (*geometry.Mesh, error)

	// StaticCurve returns the object's untransformed curve sampling.
	StaticCurve(slug string) (*geometry.Curve, error)

	// CurveAt returns the object's curve sampling at one frame.
	CurveAt(slug string, frame int) (*geometry.Curve, error)

	// TransformAt returns the object's world transform at one frame.
	TransformAt(slug string, frame int) (geometry.Mat4, error)

	// CentroidAt returns the object's world centroid at one frame.
	CentroidAt(slug string, frame int) (geometry.Vec3, error)

	// AxisAt returns the object's local axis basis at one frame.
	AxisAt(slug string, frame int) (geometry.AxisBasis, error)
}

// Procedural is a deterministic Source synthesizing geometry from the
// slug and frame alone. It backs scene files that carry no external
// geometry data and doubles as the test fixture source.
//
// Meshes are unit cubes; the per-frame variants translate along X by one
// unit per frame so consecutive frames differ. Curves are three-point
// polylines. All outputs are pure functions of (slug, frame).
type Procedural struct{}

// seed derives a stable small float from the slug so different objects
// get distinguishable geometry.
func (Procedural) seed(slug string) float32 {
	var h uint32
	for _, c := range []byte(slug) {
		h = h*31 + uint32(c)
	}
	return float32(h%1000) / 1000
}

// StaticMesh implements Source.
func (p Procedural) StaticMesh(slug string) (*geometry.Mesh, error) {
	return p.MeshAt(slug, 0)
}

// MeshAt implements Source.
func (p Procedural) MeshAt(slug string, frame int) (*geometry.Mesh, error) {
	s := p.seed(slug)
	dx := float32(frame)
	return &geometry.Mesh{
		Vertices: []geometry.Vec3{
			{X: dx + s, Y: 0, Z: 0},
			{X: dx + s + 1, Y: 0, Z: 0},
			{X: dx + s + 1, Y: 1, Z: 0},
			{X: dx + s, Y: 1, Z: 0},
			{X: dx + s, Y: 0, Z: 1},
			{X: dx + s + 1, Y: 0, Z: 1},
			{X: dx + s + 1, Y: 1, Z: 1},
			{X: dx + s, Y: 1, Z: 1},
		},
		Triangles: [][3]int32{
			{0, 1, 2}, {0, 2, 3},
			{4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4},
			{2, 3, 7}, {2, 7, 6},
			{1, 2, 6}, {1, 6, 5},
			{0, 3, 7}, {0, 7, 4},
		},
	}, nil
}

// StaticCurve implements Source.
func (p Procedural) StaticCurve(slug string) (*geometry.Curve, error) {
	return p.CurveAt(slug, 0)
}

// CurveAt implements Source.
func (p Procedural) CurveAt(slug string, frame int) (*geometry.Curve, error) {
	s := p.seed(slug)
	f := float32(frame)
	return &geometry.Curve{
		Points: []geometry.Vec3{
			{X: f, Y: s, Z: 0},
			{X: f + 1, Y: s + 0.5, Z: 0.5},
			{X: f + 2, Y: s, Z: 1},
		},
	}, nil
}

// TransformAt implements Source. The transform translates along X by one
// unit per frame.
func (p Procedural) TransformAt(slug string, frame int) (geometry.Mat4, error) {
	m := geometry.Identity()
	m[3] = float32(frame)
	m[7] = p.seed(slug)
	return m, nil
}

// CentroidAt implements Source.
func (p Procedural) CentroidAt(slug string, frame int) (geometry.Vec3, error) {
	return geometry.Vec3{
		X: float32(frame) + 0.5,
		Y: p.seed(slug) + 0.5,
		Z: 0.5,
	}, nil
}

// AxisAt implements Source. The basis rotates about Z with frame so axis
// exports vary per frame.
func (p Procedural) AxisAt(slug string, frame int) (geometry.AxisBasis, error) {
	angle := float64(frame) * 0.1
	c := float32(math.Cos(angle))
	s := float32(math.Sin(angle))
	return geometry.AxisBasis{
		{X: c, Y: s, Z: 0},
		{X: -s, Y: c, Z: 0},
		{X: 0, Y: 0, Z: 1},
	}, nil
}

// Verify interface compliance at compile time.
var _ Source = Procedural{}

// ErrUnknownSlug is wrapped by sources that keep an explicit object set.
var ErrUnknownSlug = fmt.Errorf("unknown object slug")

package sim

import (
	"fmt"

	"github.com/roach88/bakeflow/internal/geometry"
)

// ForceField is a closed set of field shapes. Each variant carries only
// the geometry its shape needs; consumers switch on the concrete type
// and treat any other implementation as a programming error.
type ForceField interface {
	fieldSlug() string
}

// PointForce attracts or repels from a single position.
type PointForce struct {
	Slug     string
	Position geometry.Vec3
	Strength float64
	Falloff  float64
}

// SurfaceForce acts along the surface of a mesh.
type SurfaceForce struct {
	Slug     string
	Mesh     *geometry.Mesh
	Strength float64
}

// VolumeForce acts throughout the interior of a closed mesh.
type VolumeForce struct {
	Slug     string
	Mesh     *geometry.Mesh
	Strength float64
}

// CurveForce acts along a polyline.
type CurveForce struct {
	Slug     string
	Curve    *geometry.Curve
	Strength float64
}

func (f PointForce) fieldSlug() string   { return f.Slug }
func (f SurfaceForce) fieldSlug() string { return f.Slug }
func (f VolumeForce) fieldSlug() string  { return f.Slug }
func (f CurveForce) fieldSlug() string   { return f.Slug }

// FieldKind names the variant for logging and debug output.
func FieldKind(f ForceField) string {
	switch f.(type) {
	case PointForce:
		return "point"
	case SurfaceForce:
		return "surface"
	case VolumeForce:
		return "volume"
	case CurveForce:
		return "curve"
	default:
		panic(fmt.Sprintf("sim: unknown force field type %T", f))
	}
}

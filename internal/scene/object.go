package scene

import "fmt"

// Role is the simulation role an object plays in the bake.
type Role int

const (
	RoleFluid Role = iota + 1
	RoleInflow
	RoleOutflow
	RoleObstacle
	RoleForceField
)

// String returns the lowercase scene-file form of the role.
func (r Role) String() string {
	switch r {
	case RoleFluid:
		return "fluid"
	case RoleInflow:
		return "inflow"
	case RoleOutflow:
		return "outflow"
	case RoleObstacle:
		return "obstacle"
	case RoleForceField:
		return "force_field"
	default:
		return "unknown"
	}
}

// ParseRole parses the scene-file form of a role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "fluid":
		return RoleFluid, nil
	case "inflow":
		return RoleInflow, nil
	case "outflow":
		return RoleOutflow, nil
	case "obstacle":
		return RoleObstacle, nil
	case "force_field":
		return RoleForceField, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Shape is the underlying geometric representation of an object.
type Shape int

const (
	ShapeMesh Shape = iota + 1
	ShapeCurve
	ShapePoint
)

// String returns the lowercase scene-file form of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeMesh:
		return "mesh"
	case ShapeCurve:
		return "curve"
	case ShapePoint:
		return "point"
	default:
		return "unknown"
	}
}

// ParseShape parses the scene-file form of a shape.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "mesh":
		return ShapeMesh, nil
	case "curve":
		return ShapeCurve, nil
	case "point":
		return ShapePoint, nil
	default:
		return 0, fmt.Errorf("unknown shape %q", s)
	}
}

// RotationMode selects which rotation representation is active on an
// object. Only keyframes on the active representation make the object
// keyframed.
type RotationMode int

const (
	RotationEuler RotationMode = iota + 1
	RotationQuaternion
	RotationAxisAngle
)

// ParseRotationMode parses the scene-file form of a rotation mode.
// An empty string defaults to euler.
func ParseRotationMode(s string) (RotationMode, error) {
	switch s {
	case "", "euler":
		return RotationEuler, nil
	case "quaternion":
		return RotationQuaternion, nil
	case "axis_angle":
		return RotationAxisAngle, nil
	default:
		return 0, fmt.Errorf("unknown rotation mode %q", s)
	}
}

// TransformCurves records which transform-affecting properties carry
// per-frame keyframe curves.
type TransformCurves struct {
	Location           bool
	Scale              bool
	RotationEuler      bool
	RotationQuaternion bool
	RotationAxisAngle  bool
}

// Any reports whether any curve on the active rotation representation,
// or on location or scale, is keyframed.
func (c TransformCurves) Any(mode RotationMode) bool {
	if c.Location || c.Scale {
		return true
	}
	switch mode {
	case RotationEuler:
		return c.RotationEuler
	case RotationQuaternion:
		return c.RotationQuaternion
	case RotationAxisAngle:
		return c.RotationAxisAngle
	default:
		return false
	}
}

// EmitterTrigger controls when a fluid or inflow object starts emitting.
// Exactly one interpretation applies: an absolute simulator frame, or a
// scene-timeline frame evaluated against the current timeline mapping.
type EmitterTrigger struct {
	Frame    int
	Timeline bool // interpret Frame on the scene timeline, not the simulator counter
}

// Object is one scene object participating in the bake.
type Object struct {
	Name          string
	Role          Role
	Shape         Shape
	FrameStart    int
	FrameEnd      int
	ForceAnimated bool // explicit "force animated export" flag, wins over keyframe detection
	RotationMode  RotationMode
	Curves        TransformCurves

	// Target names another object used as a velocity or attraction
	// target. Targets are exported independently with centroid only.
	Target string

	// ClosedVolume marks a mesh force field as acting throughout the
	// mesh interior rather than along its surface.
	ClosedVolume bool

	// Trigger applies to fluid and inflow roles.
	Trigger EmitterTrigger
}

// Slug returns the object's stable identifier.
func (o *Object) Slug() string {
	return Slug(o.Name)
}

// Scene is the full set of objects for one bake invocation.
type Scene struct {
	Objects []Object

	// MeshingVolume optionally names an object whose mesh bounds the
	// meshed output region. It is exported like any other mesh object
	// and merged with any same-named simulation object.
	MeshingVolume string
}

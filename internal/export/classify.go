package export

import (
	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
)

// Classify determines an object's motion export type. Rules in priority
// order:
//
//  1. an explicit force-animated flag on the object wins
//  2. any transform-affecting keyframe curve on the active rotation
//     representation, or on location or scale, makes it keyframed
//  3. otherwise static
func Classify(o *scene.Object) geometry.Motion {
	if o.ForceAnimated {
		return geometry.MotionAnimated
	}
	if o.Curves.Any(o.RotationMode) {
		return geometry.MotionKeyframed
	}
	return geometry.MotionStatic
}

// RequestedKinds determines which geometry kinds an object's role and
// shape require:
//
//   - mesh shape requests MESH, curve shape requests CURVE, point-like
//     shapes request CENTROID
//   - fluid, inflow, and force-field roles additionally always request
//     AXIS (velocity-along-local-axis features need the basis)
func RequestedKinds(role scene.Role, shape scene.Shape) geometry.KindSet {
	kinds := make(geometry.KindSet, 2)
	switch shape {
	case scene.ShapeMesh:
		kinds[geometry.KindMesh] = true
	case scene.ShapeCurve:
		kinds[geometry.KindCurve] = true
	case scene.ShapePoint:
		kinds[geometry.KindCentroid] = true
	}

	switch role {
	case scene.RoleFluid, scene.RoleInflow, scene.RoleForceField:
		kinds[geometry.KindAxis] = true
	}
	return kinds
}

// TargetKinds is the kind set for velocity/attraction target objects:
// centroid only, never mesh. Targets are classified independently of the
// object that references them.
func TargetKinds() geometry.KindSet {
	return geometry.NewKindSet(geometry.KindCentroid)
}

package geometry

// Vec3 is a 3-component float vector.
type Vec3 struct {
	X, Y, Z float32
}

// Mat4 is a 4x4 transform in row-major order.
type Mat4 [16]float32

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Apply transforms a point by the matrix, including translation.
func (m Mat4) Apply(v Vec3) Vec3 {
	return Vec3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z + m[3],
		Y: m[4]*v.X + m[5]*v.Y + m[6]*v.Z + m[7],
		Z: m[8]*v.X + m[9]*v.Y + m[10]*v.Z + m[11],
	}
}

// AxisBasis holds three local basis vectors (X, Y, Z axes in world space).
type AxisBasis [3]Vec3

// Mesh is a triangle mesh. Vertices are positions; Triangles index into
// Vertices, three indices per triangle.
type Mesh struct {
	Vertices  []Vec3
	Triangles [][3]int32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Curve is an ordered polyline sampling of a curve object.
type Curve struct {
	Points []Vec3
}

// Kind identifies which derived representation of an object is cached.
type Kind int

const (
	KindMesh Kind = iota + 1
	KindVertices
	KindCentroid
	KindAxis
	KindCurve
)

// String returns the lowercase table-name form of the kind.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindVertices:
		return "vertices"
	case KindCentroid:
		return "centroid"
	case KindAxis:
		return "axis"
	case KindCurve:
		return "curve"
	default:
		return "unknown"
	}
}

// Motion classifies how an object's geometry varies over time.
//
// The numeric order is meaningful: when the same object is requested with
// two different motion types, the higher-ranked one wins the merge
// (STATIC < KEYFRAMED < ANIMATED).
type Motion int

const (
	MotionStatic Motion = iota + 1
	MotionKeyframed
	MotionAnimated
)

// String returns the lowercase table-name form of the motion type.
func (m Motion) String() string {
	switch m {
	case MotionStatic:
		return "static"
	case MotionKeyframed:
		return "keyframed"
	case MotionAnimated:
		return "animated"
	default:
		return "unknown"
	}
}

// KindSet is the set of geometry kinds requested for one object.
// Insertion order is irrelevant.
type KindSet map[Kind]bool

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// Union returns a new set containing every kind in either set.
func (s KindSet) Union(other KindSet) KindSet {
	out := make(KindSet, len(s)+len(other))
	for k := range s {
		if s[k] {
			out[k] = true
		}
	}
	for k := range other {
		if other[k] {
			out[k] = true
		}
	}
	return out
}

// Sorted returns the kinds in ascending enum order for deterministic
// iteration.
func (s KindSet) Sorted() []Kind {
	out := make([]Kind, 0, len(s))
	for _, k := range []Kind{KindMesh, KindVertices, KindCentroid, KindAxis, KindCurve} {
		if s[k] {
			out = append(out, k)
		}
	}
	return out
}

package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMesh_RoundTrip(t *testing.T) {
	m := &Mesh{
		Vertices: []Vec3{
			{0, 0, 0},
			{1, 0, 0},
			{0, 1, 0},
			{0.5, 0.5, 1.25},
		},
		Triangles: [][3]int32{
			{0, 1, 2},
			{1, 2, 3},
		},
	}

	data := EncodeMesh(m)
	got, err := DecodeMesh(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEncodeMesh_Empty(t *testing.T) {
	data := EncodeMesh(&Mesh{})
	got, err := DecodeMesh(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.VertexCount())
	assert.Equal(t, 0, got.TriangleCount())
	assert.True(t, got.IsEmpty())
}

func TestMeshCounts_HeaderOnly(t *testing.T) {
	m := &Mesh{
		Vertices:  make([]Vec3, 800),
		Triangles: make([][3]int32, 1596),
	}

	nv, nt, err := MeshCounts(EncodeMesh(m))
	require.NoError(t, err)
	assert.Equal(t, 800, nv)
	assert.Equal(t, 1596, nt)
}

func TestMeshCounts_InvalidMagic(t *testing.T) {
	_, _, err := MeshCounts([]byte("XXXX12345678"))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecodeMesh_Truncated(t *testing.T) {
	data := EncodeMesh(&Mesh{Vertices: []Vec3{{1, 2, 3}}})
	_, err := DecodeMesh(data[:len(data)-4])
	assert.ErrorIs(t, err, ErrBlobTruncated)
}

func TestEncodeCurve_RoundTrip(t *testing.T) {
	c := &Curve{Points: []Vec3{{0, 0, 0}, {1, 1, 1}, {2, 0.5, -3}}}

	got, err := DecodeCurve(EncodeCurve(c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeCurve_RejectsMeshBlob(t *testing.T) {
	data := EncodeMesh(&Mesh{Vertices: []Vec3{{1, 2, 3}}})
	_, err := DecodeCurve(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestEncodeMat4_RoundTrip(t *testing.T) {
	m := Identity()
	m[3] = 4.5  // translation x
	m[7] = -2.0 // translation y

	got, err := DecodeMat4(EncodeMat4(m))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeMat4_WrongSize(t *testing.T) {
	_, err := DecodeMat4(make([]byte, 63))
	assert.Error(t, err)
}

func TestKindSet_Union(t *testing.T) {
	a := NewKindSet(KindMesh, KindAxis)
	b := NewKindSet(KindCentroid, KindAxis)

	u := a.Union(b)
	assert.Equal(t, []Kind{KindMesh, KindCentroid, KindAxis}, u.Sorted())

	// Inputs unchanged.
	assert.Equal(t, []Kind{KindMesh, KindAxis}, a.Sorted())
	assert.Equal(t, []Kind{KindCentroid, KindAxis}, b.Sorted())
}

func TestMotion_Ordering(t *testing.T) {
	assert.Less(t, MotionStatic, MotionKeyframed)
	assert.Less(t, MotionKeyframed, MotionAnimated)
}

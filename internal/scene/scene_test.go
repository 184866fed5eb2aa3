package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug_Stable(t *testing.T) {
	a := Slug("Cube")
	b := Slug("Cube")
	assert.Equal(t, a, b)
	assert.Len(t, a, SlugLen)
}

func TestSlug_DistinctNames(t *testing.T) {
	assert.NotEqual(t, Slug("Cube"), Slug("Cube.001"))
}

func TestSlug_NFCNormalization(t *testing.T) {
	// "é" as a single code point vs "e" + combining acute accent.
	composed := "Café"
	decomposed := "Café"
	assert.Equal(t, Slug(composed), Slug(decomposed))
}

func TestParse_FullScene(t *testing.T) {
	src := `
objects:
  - name: Fluid
    role: fluid
    shape: mesh
    frame_start: 1
    frame_end: 100
    trigger_frame: 1
  - name: Paddle
    role: obstacle
    shape: mesh
    frame_start: 1
    frame_end: 100
    rotation_mode: euler
    keyframes: [location, rotation_euler]
  - name: Drain
    role: outflow
    shape: mesh
    frame_start: 1
    frame_end: 100
  - name: Wind
    role: force_field
    shape: point
    frame_start: 1
    frame_end: 100
    target: Paddle
  - name: Vortex
    role: force_field
    shape: mesh
    frame_start: 1
    frame_end: 100
    closed_volume: true
meshing_volume: Fluid
`
	sc, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, sc.Objects, 5)
	assert.Equal(t, "Fluid", sc.MeshingVolume)

	paddle := sc.Objects[1]
	assert.Equal(t, RoleObstacle, paddle.Role)
	assert.Equal(t, ShapeMesh, paddle.Shape)
	assert.True(t, paddle.Curves.Location)
	assert.True(t, paddle.Curves.RotationEuler)
	assert.False(t, paddle.Curves.Scale)

	wind := sc.Objects[3]
	assert.Equal(t, RoleForceField, wind.Role)
	assert.Equal(t, ShapePoint, wind.Shape)
	assert.Equal(t, "Paddle", wind.Target)

	vortex := sc.Objects[4]
	assert.Equal(t, RoleForceField, vortex.Role)
	assert.True(t, vortex.ClosedVolume)
	assert.False(t, wind.ClosedVolume)
}

func TestParse_RejectsDuplicateNames(t *testing.T) {
	src := `
objects:
  - {name: Cube, role: obstacle, shape: mesh, frame_start: 1, frame_end: 2}
  - {name: Cube, role: fluid, shape: mesh, frame_start: 1, frame_end: 2}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate object name")
}

func TestParse_RejectsBadRole(t *testing.T) {
	src := `
objects:
  - {name: Cube, role: decoration, shape: mesh, frame_start: 1, frame_end: 2}
`
	_, err := Parse([]byte(src))
	assert.Error(t, err)
}

func TestParse_RejectsInvertedFrameRange(t *testing.T) {
	src := `
objects:
  - {name: Cube, role: obstacle, shape: mesh, frame_start: 10, frame_end: 5}
`
	_, err := Parse([]byte(src))
	assert.Error(t, err)
}

func TestTransformCurves_ActiveRotationOnly(t *testing.T) {
	c := TransformCurves{RotationQuaternion: true}

	// Quaternion keyframes only count when quaternion is the active mode.
	assert.True(t, c.Any(RotationQuaternion))
	assert.False(t, c.Any(RotationEuler))
	assert.False(t, c.Any(RotationAxisAngle))
}

func TestProcedural_Deterministic(t *testing.T) {
	var p Procedural

	m1, err := p.MeshAt("abcd", 7)
	require.NoError(t, err)
	m2, err := p.MeshAt("abcd", 7)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	m3, err := p.MeshAt("abcd", 8)
	require.NoError(t, err)
	assert.NotEqual(t, m1.Vertices[0], m3.Vertices[0])
}

func TestProcedural_TransformVariesByFrame(t *testing.T) {
	var p Procedural

	t1, err := p.TransformAt("abcd", 1)
	require.NoError(t, err)
	t2, err := p.TransformAt("abcd", 2)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

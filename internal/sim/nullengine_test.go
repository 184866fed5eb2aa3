package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/fsguard"
	"github.com/roach88/bakeflow/internal/geometry"
)

func TestNullEngine_EmitsAndIntegrates(t *testing.T) {
	e := NewNullEngine()
	require.NoError(t, e.Initialize())
	require.NoError(t, e.SetVector("gravity", geometry.Vec3{Y: -10}))
	require.NoError(t, e.AddEmitter(Emitter{
		Slug: "src",
		Mesh: &geometry.Mesh{Vertices: []geometry.Vec3{{}, {X: 1}}},
	}))

	require.NoError(t, e.Update(0.1))
	marker, diffuse := e.Counts()
	assert.Equal(t, 2, marker)
	assert.Zero(t, diffuse)
	assert.InDelta(t, -0.1, e.positions[0].Y, 1e-6, "seeded particle fell one step")

	require.NoError(t, e.Update(0.1))
	marker, _ = e.Counts()
	assert.Equal(t, 4, marker, "emitter seeds every frame")

	out, err := e.FrameOutput()
	require.NoError(t, err)
	assert.Equal(t, 4, out.Stats.MarkerParticles)
	assert.Less(t, out.BoundsMin.Y, out.BoundsMax.Y)
}

func TestNullEngine_CheckpointRoundTrip(t *testing.T) {
	src := NewNullEngine()
	require.NoError(t, src.Initialize())
	require.NoError(t, src.SetVector("gravity", geometry.Vec3{Y: -9.81}))
	require.NoError(t, src.AddEmitter(Emitter{
		Slug: "src",
		Mesh: &geometry.Mesh{Vertices: []geometry.Vec3{{}, {X: 1}, {Y: 1}}},
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, src.Update(1.0/30))
	}

	dir := t.TempDir()
	guard := fsguard.New([]string{dir}, fsguard.DefaultExtensions)
	m := checkpoint.NewManager(dir, guard, nil, checkpoint.Options{ChunkElems: 4})
	require.NoError(t, m.Save(src, 1, 10, 4))

	dst := NewNullEngine()
	man, err := m.Load(dst, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, man.FrameID)
	assert.Equal(t, src.positions, dst.positions)
	assert.Equal(t, src.velocities, dst.velocities)
}

package sim

import (
	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/geometry"
)

// Engine is the boundary to the external fluid solver. The stepper owns
// exactly one engine at a time and never shares it across goroutines.
// Engines also implement the checkpoint transfer interfaces so state can
// be streamed out and back in chunks of any size.
type Engine interface {
	// Version reports the engine build the binary was linked against.
	Version() (major, minor, patch int)

	// Initialize allocates the grid and seeds initial particles. It must
	// be called after all bodies and parameters are bound and before the
	// first Update.
	Initialize() error

	// Update advances the simulation by dt seconds.
	Update(dt float64) error

	// SetFrame moves the engine's internal frame cursor. Used when
	// resuming from a checkpoint.
	SetFrame(frame int)

	// SetScalar and SetVector bind named solver parameters. Unknown
	// names are an error.
	SetScalar(name string, v float64) error
	SetVector(name string, v geometry.Vec3) error

	// AddBody registers an obstacle, inflow or outflow. AddEmitter
	// registers a fluid source; emitters may be added after Initialize,
	// when their trigger frame is reached.
	AddBody(b Body) error
	AddEmitter(e Emitter) error
	AddForceField(f ForceField) error

	// SetBodyTransform and SetBodyMesh push per-frame geometry for
	// keyframed and animated bodies respectively.
	SetBodyTransform(slug string, m geometry.Mat4) error
	SetBodyMesh(slug string, mesh *geometry.Mesh) error

	// FrameOutput returns the renderable results of the last Update.
	FrameOutput() (FrameOutput, error)

	checkpoint.Source
	checkpoint.Sink
}

// Body is a non-fluid scene object bound into the solver.
type Body struct {
	Slug     string
	Role     string
	Mesh     *geometry.Mesh
	Centroid geometry.Vec3
	Axis     geometry.AxisBasis
}

// Emitter is a fluid source with a static emission mesh.
type Emitter struct {
	Slug string
	Mesh *geometry.Mesh
}

// FrameOutput carries everything the engine produced for one frame.
// Whitewater slices are nil when the feature is disabled.
type FrameOutput struct {
	BoundsMin geometry.Vec3
	BoundsMax geometry.Vec3
	Surface   *geometry.Mesh
	Foam      []geometry.Vec3
	Bubble    []geometry.Vec3
	Spray     []geometry.Vec3
	Stats     FrameStats
}

// FrameStats is the per-frame line of the stats aggregate document.
type FrameStats struct {
	Frame            int     `json:"frame"`
	MarkerParticles  int     `json:"marker_particles"`
	DiffuseParticles int     `json:"diffuse_particles"`
	SurfaceVertices  int     `json:"surface_vertices"`
	UpdateSeconds    float64 `json:"update_seconds"`
}

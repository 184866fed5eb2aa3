package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/geometry"
)

// Engine version this binary is built against. A loaded engine
// reporting a different triple is rejected before any frame runs.
const (
	VersionMajor = 1
	VersionMinor = 8
	VersionPatch = 2
)

// NullEngine is the built-in reference solver: emitters seed particles
// from their mesh vertices and everything falls ballistically under
// gravity. It exists so the whole pipeline, including savestates and
// frame outputs, can run without an external engine. Deterministic for
// a given scene and frame range.
type NullEngine struct {
	frame       int
	initialized bool

	scalars map[string]float64
	gravity geometry.Vec3

	bodies   int
	emitters []Emitter

	positions  []geometry.Vec3
	velocities []geometry.Vec3
}

func NewNullEngine() *NullEngine {
	return &NullEngine{scalars: make(map[string]float64)}
}

func (e *NullEngine) Version() (int, int, int) {
	return VersionMajor, VersionMinor, VersionPatch
}

func (e *NullEngine) Initialize() error {
	e.initialized = true
	return nil
}

func (e *NullEngine) SetFrame(frame int) { e.frame = frame }

func (e *NullEngine) SetScalar(name string, v float64) error {
	e.scalars[name] = v
	return nil
}

func (e *NullEngine) SetVector(name string, v geometry.Vec3) error {
	if name == "gravity" {
		e.gravity = v
	}
	return nil
}

func (e *NullEngine) AddBody(Body) error { e.bodies++; return nil }

func (e *NullEngine) AddEmitter(em Emitter) error {
	if em.Mesh == nil {
		return fmt.Errorf("emitter %s has no mesh", em.Slug)
	}
	e.emitters = append(e.emitters, em)
	return nil
}

func (e *NullEngine) AddForceField(ForceField) error { return nil }

func (e *NullEngine) SetBodyTransform(string, geometry.Mat4) error { return nil }
func (e *NullEngine) SetBodyMesh(string, *geometry.Mesh) error     { return nil }

// Update seeds one particle per emitter vertex, then integrates every
// particle ballistically.
func (e *NullEngine) Update(dt float64) error {
	if !e.initialized {
		return fmt.Errorf("update before initialize")
	}
	for _, em := range e.emitters {
		for _, v := range em.Mesh.Vertices {
			e.positions = append(e.positions, v)
			e.velocities = append(e.velocities, geometry.Vec3{})
		}
	}
	g := e.gravity
	fdt := float32(dt)
	for i := range e.positions {
		e.velocities[i].X += g.X * fdt
		e.velocities[i].Y += g.Y * fdt
		e.velocities[i].Z += g.Z * fdt
		e.positions[i].X += e.velocities[i].X * fdt
		e.positions[i].Y += e.velocities[i].Y * fdt
		e.positions[i].Z += e.velocities[i].Z * fdt
	}
	e.frame++
	return nil
}

func (e *NullEngine) FrameOutput() (FrameOutput, error) {
	out := FrameOutput{
		Stats: FrameStats{MarkerParticles: len(e.positions)},
	}
	if len(e.positions) == 0 {
		return out, nil
	}
	min := e.positions[0]
	max := e.positions[0]
	for _, p := range e.positions[1:] {
		min.X = minf(min.X, p.X)
		min.Y = minf(min.Y, p.Y)
		min.Z = minf(min.Z, p.Z)
		max.X = maxf(max.X, p.X)
		max.Y = maxf(max.Y, p.Y)
		max.Z = maxf(max.Z, p.Z)
	}
	out.BoundsMin, out.BoundsMax = min, max
	return out, nil
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func (e *NullEngine) Counts() (int, int)            { return len(e.positions), 0 }
func (e *NullEngine) Features() checkpoint.Features { return checkpoint.Features{} }
func (e *NullEngine) GridDims() (int, int, int)     { return 64, 64, 64 }

func (e *NullEngine) ReadAttr(attr checkpoint.Attr, start, count int, dst []byte) error {
	var src []geometry.Vec3
	switch attr {
	case checkpoint.AttrMarkerPosition:
		src = e.positions
	case checkpoint.AttrMarkerVelocity:
		src = e.velocities
	default:
		// Diffuse arrays are always requested but empty here.
		return nil
	}
	for i := 0; i < count; i++ {
		putVec3(dst[i*12:], src[start+i])
	}
	return nil
}

func (e *NullEngine) Begin(m *checkpoint.Manifest) error {
	e.positions = make([]geometry.Vec3, m.NumMarkerParticles)
	e.velocities = make([]geometry.Vec3, m.NumMarkerParticles)
	e.frame = m.FrameID + 1
	return nil
}

func (e *NullEngine) WriteAttr(attr checkpoint.Attr, start, count int, data []byte) error {
	var dst []geometry.Vec3
	switch attr {
	case checkpoint.AttrMarkerPosition:
		dst = e.positions
	case checkpoint.AttrMarkerVelocity:
		dst = e.velocities
	default:
		return nil
	}
	for i := 0; i < count; i++ {
		dst[start+i] = getVec3(data[i*12:])
	}
	return nil
}

func putVec3(b []byte, v geometry.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}

func getVec3(b []byte) geometry.Vec3 {
	return geometry.Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}

var _ Engine = (*NullEngine)(nil)

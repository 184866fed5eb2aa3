package sim

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/export"
	"github.com/roach88/bakeflow/internal/fsguard"
	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
	"github.com/roach88/bakeflow/internal/store"
)

// fakeEngine records every binding call and synthesizes deterministic
// particle state so checkpoint round trips can be verified byte for
// byte.
type fakeEngine struct {
	frame       int
	initialized bool
	updates     int

	scalarCalls int
	vectorCalls int
	scalars     map[string]float64
	vectors     map[string]geometry.Vec3

	bodies     []Body
	emitters   []Emitter
	fields     []ForceField
	transforms []string
	meshPushes []string

	marker, diffuse int
	data            map[checkpoint.Attr][]byte
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		scalars: make(map[string]float64),
		vectors: make(map[string]geometry.Vec3),
		data:    make(map[checkpoint.Attr][]byte),
	}
}

func (e *fakeEngine) Version() (int, int, int) { return 1, 8, 2 }
func (e *fakeEngine) Initialize() error        { e.initialized = true; return nil }
func (e *fakeEngine) SetFrame(frame int)       { e.frame = frame }

func (e *fakeEngine) Update(dt float64) error {
	e.updates++
	// Three marker particles whose position bytes depend on the frame,
	// so saved state distinguishes frames.
	e.marker = 3
	e.diffuse = 0
	pos := make([]byte, e.marker*12)
	for i := range pos {
		pos[i] = byte((i + e.frame) % 251)
	}
	e.data[checkpoint.AttrMarkerPosition] = pos
	e.data[checkpoint.AttrMarkerVelocity] = make([]byte, e.marker*12)
	e.frame++
	return nil
}

func (e *fakeEngine) SetScalar(name string, v float64) error {
	e.scalarCalls++
	e.scalars[name] = v
	return nil
}

func (e *fakeEngine) SetVector(name string, v geometry.Vec3) error {
	e.vectorCalls++
	e.vectors[name] = v
	return nil
}

func (e *fakeEngine) AddBody(b Body) error { e.bodies = append(e.bodies, b); return nil }

func (e *fakeEngine) AddEmitter(em Emitter) error {
	e.emitters = append(e.emitters, em)
	return nil
}

func (e *fakeEngine) AddForceField(f ForceField) error {
	e.fields = append(e.fields, f)
	return nil
}

func (e *fakeEngine) SetBodyTransform(slug string, m geometry.Mat4) error {
	e.transforms = append(e.transforms, slug)
	return nil
}

func (e *fakeEngine) SetBodyMesh(slug string, mesh *geometry.Mesh) error {
	e.meshPushes = append(e.meshPushes, slug)
	return nil
}

func (e *fakeEngine) FrameOutput() (FrameOutput, error) {
	return FrameOutput{
		BoundsMin: geometry.Vec3{X: -1, Y: -1, Z: -1},
		BoundsMax: geometry.Vec3{X: 1, Y: 1, Z: 1},
		Surface: &geometry.Mesh{
			Vertices:  []geometry.Vec3{{}, {X: 1}, {Y: 1}},
			Triangles: [][3]int32{{0, 1, 2}},
		},
		Stats: FrameStats{MarkerParticles: e.marker, SurfaceVertices: 3},
	}, nil
}

func (e *fakeEngine) Counts() (int, int)            { return e.marker, e.diffuse }
func (e *fakeEngine) Features() checkpoint.Features { return checkpoint.Features{} }
func (e *fakeEngine) GridDims() (int, int, int)     { return 32, 16, 32 }

func (e *fakeEngine) ReadAttr(attr checkpoint.Attr, start, count int, dst []byte) error {
	elem := attr.ElemSize()
	copy(dst, e.data[attr][start*elem:(start+count)*elem])
	return nil
}

func (e *fakeEngine) Begin(m *checkpoint.Manifest) error {
	e.marker = m.NumMarkerParticles
	e.diffuse = m.NumDiffuseParticles
	e.data = make(map[checkpoint.Attr][]byte)
	for _, attr := range []checkpoint.Attr{
		checkpoint.AttrMarkerPosition, checkpoint.AttrMarkerVelocity,
	} {
		e.data[attr] = make([]byte, e.marker*attr.ElemSize())
	}
	return nil
}

func (e *fakeEngine) WriteAttr(attr checkpoint.Attr, start, count int, data []byte) error {
	elem := attr.ElemSize()
	copy(e.data[attr][start*elem:(start+count)*elem], data)
	return nil
}

var _ Engine = (*fakeEngine)(nil)

// fixture wires a store, guard, output writer and checkpoint manager in
// one temp directory, with one fluid emitter and one static obstacle
// already exported.
type fixture struct {
	st      *store.Store
	guard   *fsguard.Guard
	out     *OutputWriter
	ckpt    *checkpoint.Manager
	sc      *scene.Scene
	objects map[string]*export.Object
	outDir  string
	ckptDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard := fsguard.New([]string{root}, fsguard.DefaultExtensions)
	outDir := filepath.Join(root, "frames")
	out, err := NewOutputWriter(outDir, guard, false)
	require.NoError(t, err)

	ckptDir := filepath.Join(root, "savestates")
	require.NoError(t, os.MkdirAll(ckptDir, 0o755))
	guard.AddDir(ckptDir)
	ckpt := checkpoint.NewManager(ckptDir, guard, nil, checkpoint.Options{})

	f := &fixture{
		st: st, guard: guard, out: out, ckpt: ckpt,
		outDir: outDir, ckptDir: ckptDir,
		sc:      &scene.Scene{},
		objects: make(map[string]*export.Object),
	}
	f.addObject(t, "water", scene.RoleFluid, 1)
	f.addObject(t, "wall", scene.RoleObstacle, 0)
	return f
}

// addObject exports a static mesh object into the store and registers
// it in both the scene and the export set.
func (f *fixture) addObject(t *testing.T, name string, role scene.Role, triggerFrame int) {
	t.Helper()
	ctx := context.Background()
	slug := scene.Slug(name)
	kinds := geometry.NewKindSet(geometry.KindMesh)
	id, err := f.st.AddObject(ctx, name, slug, geometry.MotionStatic, kinds)
	require.NoError(t, err)

	mesh := &geometry.Mesh{
		Vertices:  []geometry.Vec3{{}, {X: 1}, {Y: 1}, {Z: 1}},
		Triangles: [][3]int32{{0, 1, 2}, {0, 2, 3}},
	}
	require.NoError(t, f.st.PutStaticBlob(ctx, geometry.KindMesh, id, geometry.EncodeMesh(mesh)))

	f.sc.Objects = append(f.sc.Objects, scene.Object{
		Name:    name,
		Role:    role,
		Shape:   scene.ShapeMesh,
		Trigger: scene.EmitterTrigger{Frame: triggerFrame},
	})
	f.objects[slug] = &export.Object{
		Name:           name,
		Slug:           slug,
		Motion:         geometry.MotionStatic,
		Kinds:          kinds,
		StoreID:        id,
		ExportedFrames: make(map[geometry.Kind]map[int]bool),
	}
}

func (f *fixture) stepper(eng Engine, status *Status, cfg Config) *Stepper {
	return NewStepper(eng, f.st, f.ckpt, f.out, status, NewParameters(),
		log.New(io.Discard), f.sc, f.objects, cfg)
}

func TestStepper_RunWritesOutputsAndSavestate(t *testing.T) {
	f := newFixture(t)
	eng := newFakeEngine()
	status := NewStatus()
	st := f.stepper(eng, status, Config{FrameStart: 1, FrameEnd: 3, DT: 1.0 / 30})

	ctx := context.Background()
	require.NoError(t, st.Initialize(ctx))
	assert.True(t, eng.initialized)
	assert.Len(t, eng.bodies, 1, "obstacle bound as body")
	assert.Len(t, eng.emitters, 1, "frame-1 emitter bound at init")

	require.NoError(t, st.Run(ctx))
	assert.Equal(t, StateFinished, st.State())
	assert.Equal(t, 3, eng.updates)
	assert.EqualValues(t, 3, status.CompletedFrames())
	assert.InDelta(t, 1.0, status.Progress(), 1e-9)
	assert.True(t, status.SafeToExit())

	for frame := 1; frame <= 3; frame++ {
		_, err := os.Stat(filepath.Join(f.outDir, frameFile("surface", frame, ".bobj")))
		assert.NoError(t, err, "frame %d surface", frame)
		_, err = os.Stat(filepath.Join(f.outDir, frameFile("bounds", frame, ".bbox")))
		assert.NoError(t, err, "frame %d bounds", frame)
	}
	doc, err := f.out.readStatsDoc()
	require.NoError(t, err)
	assert.Len(t, doc, 3)
	assert.Equal(t, 3, doc["2"].MarkerParticles)

	sink := newFakeEngine()
	man, err := f.ckpt.Load(sink, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, man.FrameID, "last committed frame")
}

func TestStepper_ResumeContinuesFromCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	engA := newFakeEngine()
	stA := f.stepper(engA, NewStatus(), Config{FrameStart: 1, FrameEnd: 2, DT: 1.0 / 30})
	require.NoError(t, stA.Initialize(ctx))
	require.NoError(t, stA.Run(ctx))

	engB := newFakeEngine()
	stB := f.stepper(engB, NewStatus(), Config{
		FrameStart: 1, FrameEnd: 4, DT: 1.0 / 30,
		Resume: true, SavestateID: -1,
	})
	require.NoError(t, stB.Initialize(ctx))
	assert.Equal(t, 3, stB.Frame(), "resumes one past the committed frame")
	assert.Equal(t, engA.data[checkpoint.AttrMarkerPosition],
		engB.data[checkpoint.AttrMarkerPosition], "particle state restored")

	require.NoError(t, stB.Run(ctx))
	assert.Equal(t, StateFinished, stB.State())
	assert.Equal(t, 2, engB.updates, "only frames 3 and 4 run")

	doc, err := f.out.readStatsDoc()
	require.NoError(t, err)
	assert.Len(t, doc, 4)
}

func TestStepper_ResumePrunesFutureSavestates(t *testing.T) {
	f := newFixture(t)
	f.ckpt = checkpoint.NewManager(f.ckptDir, f.guard, nil, checkpoint.Options{
		KeepSavestates: true, Interval: 1,
	})
	ctx := context.Background()

	engA := newFakeEngine()
	stA := f.stepper(engA, NewStatus(), Config{FrameStart: 1, FrameEnd: 4, DT: 1.0 / 30})
	require.NoError(t, stA.Initialize(ctx))
	require.NoError(t, stA.Run(ctx))

	slots, err := f.ckpt.ListSlots()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, slots)

	engB := newFakeEngine()
	stB := f.stepper(engB, NewStatus(), Config{
		FrameStart: 1, FrameEnd: 4, DT: 1.0 / 30,
		Resume: true, SavestateID: 2,
	})
	require.NoError(t, stB.Initialize(ctx))
	assert.Equal(t, 3, stB.Frame())

	slots, err = f.ckpt.ListSlots()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, slots, "slots past the resume frame removed")
}

func TestStepper_ResumeWithoutSavestateStartsFresh(t *testing.T) {
	f := newFixture(t)
	eng := newFakeEngine()
	st := f.stepper(eng, NewStatus(), Config{
		FrameStart: 1, FrameEnd: 2, DT: 1.0 / 30,
		Resume: true, SavestateID: 42,
	})

	ctx := context.Background()
	require.NoError(t, st.Initialize(ctx), "missing savestate is not an error")
	assert.Equal(t, 1, st.Frame())
	require.NoError(t, st.Run(ctx))
	assert.Equal(t, StateFinished, st.State())
}

func TestStepper_CancelStopsAtFrameBoundary(t *testing.T) {
	f := newFixture(t)
	eng := newFakeEngine()
	status := NewStatus()
	st := f.stepper(eng, status, Config{FrameStart: 1, FrameEnd: 10, DT: 1.0 / 30})

	ctx := context.Background()
	require.NoError(t, st.Initialize(ctx))

	done, err := st.Step(ctx)
	require.NoError(t, err)
	require.False(t, done)

	status.Cancel()
	done, err = st.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, StateCancelled, st.State())
	assert.Equal(t, 1, eng.updates, "no engine work after cancel")
	assert.True(t, status.SafeToExit())

	// The completed frame's savestate survived the cancel.
	sink := newFakeEngine()
	man, err := f.ckpt.Load(sink, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, man.FrameID)
}

func TestStepper_CancelBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	eng := newFakeEngine()
	status := NewStatus()
	status.Cancel()
	st := f.stepper(eng, status, Config{FrameStart: 1, FrameEnd: 3, DT: 1.0 / 30})

	require.NoError(t, st.Initialize(context.Background()))
	assert.Equal(t, StateCancelled, st.State())
	assert.False(t, eng.initialized, "engine untouched")
}

func TestStepper_ClosedVolumeFieldBindsAsVolume(t *testing.T) {
	f := newFixture(t)
	f.addObject(t, "fan", scene.RoleForceField, 0)
	f.addObject(t, "vortex", scene.RoleForceField, 0)
	for i := range f.sc.Objects {
		if f.sc.Objects[i].Name == "vortex" {
			f.sc.Objects[i].ClosedVolume = true
		}
	}
	eng := newFakeEngine()
	st := f.stepper(eng, NewStatus(), Config{FrameStart: 1, FrameEnd: 1, DT: 1.0 / 30})

	require.NoError(t, st.Initialize(context.Background()))
	require.Len(t, eng.fields, 2)
	kinds := map[string]string{}
	for _, fld := range eng.fields {
		kinds[fld.fieldSlug()] = FieldKind(fld)
	}
	assert.Equal(t, "surface", kinds[scene.Slug("fan")])
	assert.Equal(t, "volume", kinds[scene.Slug("vortex")])
}

func TestStepper_TimelineTriggerUsesMapping(t *testing.T) {
	f := newFixture(t)
	// Rewrite the fluid trigger to fire on scene-timeline frame 12 with
	// a +10 mapping: simulator frame 2.
	for i := range f.sc.Objects {
		if f.sc.Objects[i].Role == scene.RoleFluid {
			f.sc.Objects[i].Trigger = scene.EmitterTrigger{Frame: 12, Timeline: true}
		}
	}
	eng := newFakeEngine()
	st := f.stepper(eng, NewStatus(), Config{
		FrameStart: 1, FrameEnd: 3, DT: 1.0 / 30, TimelineOffset: 10,
	})

	ctx := context.Background()
	require.NoError(t, st.Initialize(ctx))
	assert.Empty(t, eng.emitters, "not triggered at frame 1")

	done, err := st.Step(ctx)
	require.NoError(t, err)
	require.False(t, done)
	assert.Empty(t, eng.emitters, "still not triggered during frame 1")

	_, err = st.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, eng.emitters, 1, "triggered at frame 2")
}

func TestParameters_RefreshPushesOnlyChanges(t *testing.T) {
	eng := newFakeEngine()
	p := NewParameters()
	p.SetScalar("viscosity", Constant(0.5))
	p.SetScalar("surface_tension", PerFrame([]float64{0.1, 0.1, 0.3}))
	p.SetVector("gravity", Constant(geometry.Vec3{Y: -9.81}))

	pushed, err := p.Refresh(0, eng)
	require.NoError(t, err)
	assert.Equal(t, 3, pushed, "first refresh pushes everything")
	assert.Equal(t, 0.5, eng.scalars["viscosity"])
	assert.Equal(t, float32(-9.81), eng.vectors["gravity"].Y)

	pushed, err = p.Refresh(1, eng)
	require.NoError(t, err)
	assert.Zero(t, pushed, "no value changed at offset 1")

	pushed, err = p.Refresh(2, eng)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed, "only the per-frame scalar changed")
	assert.Equal(t, 0.3, eng.scalars["surface_tension"])

	pushed, err = p.Refresh(5, eng)
	require.NoError(t, err)
	assert.Zero(t, pushed, "per-frame values clamp at the last sample")
}

func TestParameter_AtClampsAndAnimated(t *testing.T) {
	c := Constant(2.5)
	assert.False(t, c.Animated())
	assert.Equal(t, 2.5, c.At(99))

	pf := PerFrame([]float64{1, 2, 3})
	assert.True(t, pf.Animated())
	assert.Equal(t, 1.0, pf.At(-4))
	assert.Equal(t, 2.0, pf.At(1))
	assert.Equal(t, 3.0, pf.At(10))
}

func TestFieldKind(t *testing.T) {
	assert.Equal(t, "point", FieldKind(PointForce{}))
	assert.Equal(t, "surface", FieldKind(SurfaceForce{}))
	assert.Equal(t, "volume", FieldKind(VolumeForce{}))
	assert.Equal(t, "curve", FieldKind(CurveForce{}))
}

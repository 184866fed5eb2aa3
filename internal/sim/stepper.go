package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/export"
	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
	"github.com/roach88/bakeflow/internal/store"
)

// Config drives one stepper lifetime.
type Config struct {
	FrameStart int
	FrameEnd   int
	DT         float64

	// TimelineOffset maps simulator frames onto the scene timeline:
	// timeline frame = simulator frame + offset.
	TimelineOffset int

	// Resume asks Initialize to restore from a savestate. SavestateID
	// selects a numbered slot; -1 selects the default slot.
	Resume      bool
	SavestateID int
}

// Stepper runs the simulation one frame per Step call. It is not safe
// for concurrent use; the shared Status record is the only part other
// goroutines may touch.
type Stepper struct {
	eng     Engine
	st      *store.Store
	ckpt    *checkpoint.Manager // nil disables savestates
	out     *OutputWriter
	status  *Status
	params  *Parameters
	log     *log.Logger
	cfg     Config
	sc      *scene.Scene
	objects map[string]*export.Object // by slug

	frame int
	added map[string]bool // emitter slugs already bound
	state State
}

func NewStepper(eng Engine, st *store.Store, ckpt *checkpoint.Manager, out *OutputWriter,
	status *Status, params *Parameters, logger *log.Logger,
	sc *scene.Scene, objects map[string]*export.Object, cfg Config) *Stepper {
	return &Stepper{
		eng:     eng,
		st:      st,
		ckpt:    ckpt,
		out:     out,
		status:  status,
		params:  params,
		log:     logger,
		cfg:     cfg,
		sc:      sc,
		objects: objects,
		added:   make(map[string]bool),
		state:   StateUninitialized,
	}
}

// Frame returns the next frame the stepper will run.
func (s *Stepper) Frame() int { return s.frame }

// State returns the stepper's lifecycle state.
func (s *Stepper) State() State { return s.state }

func (s *Stepper) setState(st State) {
	s.state = st
	s.status.SetState(st)
}

func (s *Stepper) fail(err error) error {
	s.setState(StateFailed)
	s.status.SetError(err.Error())
	return err
}

// Initialize restores or seeds engine state, binds every body, force
// field, parameter and already-triggered emitter, and readies the engine
// for the first Step. A cancel observed before any engine work leaves
// the stepper cancelled without touching the engine.
func (s *Stepper) Initialize(ctx context.Context) error {
	if s.state != StateUninitialized {
		return fmt.Errorf("initialize: stepper is %s", s.state)
	}
	if s.status.Cancelled() {
		s.setState(StateCancelled)
		return nil
	}

	s.frame = s.cfg.FrameStart
	if s.cfg.Resume && s.ckpt != nil {
		man, err := s.ckpt.Load(s.eng, s.cfg.SavestateID)
		switch {
		case errors.Is(err, checkpoint.ErrNoSavestate):
			s.log.Warn("no savestate found, starting fresh",
				"savestate_id", s.cfg.SavestateID, "frame", s.frame)
		case err != nil:
			return s.fail(fmt.Errorf("load savestate: %w", err))
		default:
			s.frame = man.FrameID + 1
			s.log.Info("resuming from savestate",
				"frame_id", man.FrameID, "frame", s.frame)
			if err := s.out.PruneBeyond(man.FrameID); err != nil {
				return s.fail(fmt.Errorf("prune stale outputs: %w", err))
			}
			if err := s.ckpt.PruneBeyond(man.FrameID); err != nil {
				return s.fail(fmt.Errorf("prune stale savestates: %w", err))
			}
		}
	}
	s.eng.SetFrame(s.frame)

	if _, err := s.params.Refresh(s.frame-s.cfg.FrameStart, s.eng); err != nil {
		return s.fail(fmt.Errorf("bind parameters: %w", err))
	}
	if err := s.bindScene(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.addTriggeredEmitters(ctx, s.frame); err != nil {
		return s.fail(err)
	}
	if err := s.eng.Initialize(); err != nil {
		return s.fail(fmt.Errorf("engine initialize: %w", err))
	}
	s.setState(StateInitialized)
	return nil
}

// bindScene registers obstacles, outflows and force fields with the
// engine, resolving their geometry from the store cache.
func (s *Stepper) bindScene(ctx context.Context) error {
	for i := range s.sc.Objects {
		o := &s.sc.Objects[i]
		switch o.Role {
		case scene.RoleObstacle, scene.RoleOutflow:
			b, err := s.resolveBody(ctx, o)
			if err != nil {
				return err
			}
			if err := s.eng.AddBody(b); err != nil {
				return fmt.Errorf("add body %q: %w", o.Name, err)
			}
		case scene.RoleForceField:
			f, err := s.resolveForceField(ctx, o)
			if err != nil {
				return err
			}
			if err := s.eng.AddForceField(f); err != nil {
				return fmt.Errorf("add force field %q: %w", o.Name, err)
			}
		}
	}
	return nil
}

func (s *Stepper) exported(o *scene.Object) (*export.Object, error) {
	eo := s.objects[o.Slug()]
	if eo == nil {
		return nil, fmt.Errorf("object %q was not exported", o.Name)
	}
	return eo, nil
}

func (s *Stepper) resolveBody(ctx context.Context, o *scene.Object) (Body, error) {
	eo, err := s.exported(o)
	if err != nil {
		return Body{}, err
	}
	b := Body{Slug: eo.Slug, Role: o.Role.String()}
	if o.Shape == scene.ShapeMesh {
		m, err := s.cachedMesh(ctx, eo, s.frame)
		if err != nil {
			return Body{}, fmt.Errorf("object %q: %w", o.Name, err)
		}
		b.Mesh = m
	}
	if eo.Kinds[geometry.KindCentroid] {
		c, ok, err := s.st.GetCentroid(ctx, eo.Motion, eo.StoreID, s.motionFrame(eo))
		if err != nil {
			return Body{}, err
		}
		if ok {
			b.Centroid = c
		}
	}
	if eo.Kinds[geometry.KindAxis] {
		a, ok, err := s.st.GetAxis(ctx, eo.Motion, eo.StoreID, s.motionFrame(eo))
		if err != nil {
			return Body{}, err
		}
		if ok {
			b.Axis = a
		}
	}
	return b, nil
}

func (s *Stepper) resolveForceField(ctx context.Context, o *scene.Object) (ForceField, error) {
	eo, err := s.exported(o)
	if err != nil {
		return nil, err
	}
	switch o.Shape {
	case scene.ShapePoint:
		c, ok, err := s.st.GetCentroid(ctx, eo.Motion, eo.StoreID, s.motionFrame(eo))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("force field %q: centroid not cached", o.Name)
		}
		return PointForce{Slug: eo.Slug, Position: c, Strength: 1, Falloff: 2}, nil
	case scene.ShapeMesh:
		m, err := s.cachedMesh(ctx, eo, s.frame)
		if err != nil {
			return nil, fmt.Errorf("force field %q: %w", o.Name, err)
		}
		if o.ClosedVolume {
			return VolumeForce{Slug: eo.Slug, Mesh: m, Strength: 1}, nil
		}
		return SurfaceForce{Slug: eo.Slug, Mesh: m, Strength: 1}, nil
	case scene.ShapeCurve:
		blob, ok, err := s.st.GetStaticBlob(ctx, geometry.KindCurve, eo.StoreID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("force field %q: curve not cached", o.Name)
		}
		c, err := geometry.DecodeCurve(blob)
		if err != nil {
			return nil, err
		}
		return CurveForce{Slug: eo.Slug, Curve: c, Strength: 1}, nil
	default:
		return nil, fmt.Errorf("force field %q: unsupported shape %s", o.Name, o.Shape)
	}
}

// motionFrame is the frame to use for per-motion table lookups: static
// rows are keyed at frame 0, moving rows at the current frame.
func (s *Stepper) motionFrame(eo *export.Object) int {
	if eo.Motion == geometry.MotionStatic {
		return 0
	}
	return s.frame
}

// cachedMesh resolves an object's mesh for one frame. Static and
// keyframed objects use the cached basis mesh; animated objects use the
// per-frame blob.
func (s *Stepper) cachedMesh(ctx context.Context, eo *export.Object, frame int) (*geometry.Mesh, error) {
	var (
		blob []byte
		ok   bool
		err  error
	)
	if eo.Motion == geometry.MotionAnimated {
		blob, ok, err = s.st.GetAnimatedBlob(ctx, geometry.KindMesh, eo.StoreID, frame)
	} else {
		blob, ok, err = s.st.GetStaticBlob(ctx, geometry.KindMesh, eo.StoreID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("mesh not cached for %s frame %d", eo.Slug, frame)
	}
	return geometry.DecodeMesh(blob)
}

// addTriggeredEmitters binds every fluid and inflow emitter whose
// trigger frame has been reached and that is not yet bound. Triggers on
// the scene timeline are compared against the mapped frame.
func (s *Stepper) addTriggeredEmitters(ctx context.Context, frame int) error {
	for i := range s.sc.Objects {
		o := &s.sc.Objects[i]
		if o.Role != scene.RoleFluid && o.Role != scene.RoleInflow {
			continue
		}
		slug := o.Slug()
		if s.added[slug] {
			continue
		}
		effective := frame
		if o.Trigger.Timeline {
			effective = frame + s.cfg.TimelineOffset
		}
		if o.Trigger.Frame > effective {
			continue
		}
		eo, err := s.exported(o)
		if err != nil {
			return err
		}
		m, err := s.cachedMesh(ctx, eo, frame)
		if err != nil {
			return fmt.Errorf("emitter %q: %w", o.Name, err)
		}
		if err := s.eng.AddEmitter(Emitter{Slug: slug, Mesh: m}); err != nil {
			return fmt.Errorf("add emitter %q: %w", o.Name, err)
		}
		s.added[slug] = true
		s.log.Debug("emitter triggered", "object", o.Name, "frame", frame)
	}
	return nil
}

// pushFrameGeometry feeds per-frame transforms and meshes for moving
// bodies. Missing rows are skipped: an object whose animated export was
// halted simply reuses its last geometry.
func (s *Stepper) pushFrameGeometry(ctx context.Context, frame int) error {
	for i := range s.sc.Objects {
		o := &s.sc.Objects[i]
		if o.Role == scene.RoleForceField || o.Shape != scene.ShapeMesh {
			continue
		}
		eo, err := s.exported(o)
		if err != nil {
			return err
		}
		switch eo.Motion {
		case geometry.MotionKeyframed:
			m, ok, err := s.st.GetKeyframedTransform(ctx, geometry.KindMesh, eo.StoreID, frame)
			if err != nil {
				return err
			}
			if ok {
				if err := s.eng.SetBodyTransform(eo.Slug, m); err != nil {
					return err
				}
			}
		case geometry.MotionAnimated:
			blob, ok, err := s.st.GetAnimatedBlob(ctx, geometry.KindMesh, eo.StoreID, frame)
			if err != nil {
				return err
			}
			if ok {
				mesh, err := geometry.DecodeMesh(blob)
				if err != nil {
					return err
				}
				if err := s.eng.SetBodyMesh(eo.Slug, mesh); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Step runs exactly one frame: bind changed parameters, feed geometry,
// advance the engine, write outputs, commit the savestate. done reports
// that the final frame has completed. Cancellation is honored at frame
// boundaries only; a cancel observed mid-frame finishes the current
// writes first.
func (s *Stepper) Step(ctx context.Context) (done bool, err error) {
	switch s.state {
	case StateInitialized:
		s.setState(StateRunning)
	case StateRunning:
	default:
		return false, fmt.Errorf("step: stepper is %s", s.state)
	}

	if s.cancelRequested(ctx) {
		s.setState(StateCancelled)
		return true, nil
	}
	if s.frame > s.cfg.FrameEnd {
		s.setState(StateFinished)
		return true, nil
	}

	offset := s.frame - s.cfg.FrameStart
	if _, err := s.params.Refresh(offset, s.eng); err != nil {
		return false, s.fail(fmt.Errorf("frame %d: bind parameters: %w", s.frame, err))
	}
	if err := s.addTriggeredEmitters(ctx, s.frame); err != nil {
		return false, s.fail(fmt.Errorf("frame %d: %w", s.frame, err))
	}
	if err := s.pushFrameGeometry(ctx, s.frame); err != nil {
		return false, s.fail(fmt.Errorf("frame %d: %w", s.frame, err))
	}

	began := time.Now()
	if err := s.eng.Update(s.cfg.DT); err != nil {
		return false, s.fail(fmt.Errorf("frame %d: engine update: %w", s.frame, err))
	}
	elapsed := time.Since(began).Seconds()

	if s.cancelRequested(ctx) {
		s.setState(StateCancelled)
		return true, nil
	}

	out, err := s.eng.FrameOutput()
	if err != nil {
		return false, s.fail(fmt.Errorf("frame %d: read outputs: %w", s.frame, err))
	}
	out.Stats.UpdateSeconds = elapsed

	// Nothing below this point may be skipped by cancellation: outputs
	// and the savestate for a finished frame always commit together.
	s.status.SetSafeToExit(false)
	if err := s.out.WriteFrame(s.frame, out); err != nil {
		s.status.SetSafeToExit(true)
		return false, s.fail(fmt.Errorf("frame %d: write outputs: %w", s.frame, err))
	}
	if s.ckpt != nil {
		if err := s.ckpt.Save(s.eng, s.cfg.FrameStart, s.cfg.FrameEnd, s.frame+1); err != nil {
			s.status.SetSafeToExit(true)
			return false, s.fail(fmt.Errorf("frame %d: save state: %w", s.frame, err))
		}
	}
	s.status.SetSafeToExit(true)

	s.status.CompleteFrame()
	total := s.cfg.FrameEnd - s.cfg.FrameStart + 1
	s.status.SetProgress(float64(offset+1) / float64(total))
	s.log.Info("frame complete",
		"frame", s.frame,
		"marker_particles", out.Stats.MarkerParticles,
		"update_seconds", fmt.Sprintf("%.3f", elapsed))

	s.frame++
	if s.cancelRequested(ctx) {
		s.setState(StateCancelled)
		return true, nil
	}
	if s.frame > s.cfg.FrameEnd {
		s.setState(StateFinished)
		return true, nil
	}
	return false, nil
}

func (s *Stepper) cancelRequested(ctx context.Context) bool {
	return s.status.Cancelled() || ctx.Err() != nil
}

// Run steps until the bake finishes, is cancelled, or fails.
func (s *Stepper) Run(ctx context.Context) error {
	for {
		done, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

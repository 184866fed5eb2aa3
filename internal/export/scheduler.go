package export

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
	"github.com/roach88/bakeflow/internal/store"
)

// Progress is the result of one Drain call.
type Progress int

const (
	// ProgressContinuing means the time budget elapsed with items left.
	ProgressContinuing Progress = iota + 1
	// ProgressDone means the queue is fully drained.
	ProgressDone
	// ProgressErrored means the scheduler accumulated a fatal error;
	// poll Err for it.
	ProgressErrored
)

// String returns a short progress label.
func (p Progress) String() string {
	switch p {
	case ProgressContinuing:
		return "continuing"
	case ProgressDone:
		return "done"
	case ProgressErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Options configure a Scheduler.
type Options struct {
	// SkipReexport trusts previously cached geometry instead of
	// re-deriving it.
	SkipReexport bool

	// ForceReexport overrides SkipReexport and re-derives everything.
	ForceReexport bool

	// StrictTopology makes an animated mesh topology change fatal.
	StrictTopology bool

	// SuppressTopologyWarnings drops topology warnings from the record
	// (the affected object still stops exporting).
	SuppressTopologyWarnings bool
}

// Scheduler populates the geometry store from a scene, cooperatively.
//
// Call Plan once to classify and merge the scene's objects and build the
// work queue, then call Drain repeatedly with a time budget until it
// returns ProgressDone. Errors accumulate and are polled via Err; Drain
// never panics across the yield boundary.
type Scheduler struct {
	store  *store.Store
	source scene.Source
	log    *log.Logger
	opts   Options

	objects map[string]*Object // by slug
	order   []string           // slug insertion order for deterministic queue build
	q       queue

	planned   bool
	processed int
	err       error
	warnings  []*TopologyError
}

// New creates a scheduler. The store and source must outlive it.
func New(st *store.Store, src scene.Source, logger *log.Logger, opts Options) *Scheduler {
	return &Scheduler{
		store:   st,
		source:  src,
		log:     logger,
		opts:    opts,
		objects: make(map[string]*Object),
	}
}

// Err returns the accumulated fatal error, if any.
func (s *Scheduler) Err() error {
	return s.err
}

// Warnings returns the recorded topology warnings in detection order.
func (s *Scheduler) Warnings() []*TopologyError {
	return s.warnings
}

// Remaining returns the number of queued items not yet processed.
func (s *Scheduler) Remaining() int {
	return s.q.len()
}

// Processed returns the number of items completed so far.
func (s *Scheduler) Processed() int {
	return s.processed
}

// Objects returns the merged export objects by slug. Valid after Plan.
func (s *Scheduler) Objects() map[string]*Object {
	return s.objects
}

// Plan classifies and merges the scene's objects, registers them with
// the store, seeds the exported-frame state from the cache, and builds
// the work queue. It must be called exactly once before Drain.
func (s *Scheduler) Plan(ctx context.Context, sc *scene.Scene) error {
	if s.planned {
		return fmt.Errorf("plan: already planned")
	}
	s.planned = true

	byName := make(map[string]*scene.Object, len(sc.Objects))
	for i := range sc.Objects {
		byName[sc.Objects[i].Name] = &sc.Objects[i]
	}

	add := func(eo *Object) {
		if existing := s.objects[eo.Slug]; existing != nil {
			existing.Merge(eo)
			return
		}
		s.objects[eo.Slug] = eo
		s.order = append(s.order, eo.Slug)
	}

	for i := range sc.Objects {
		add(NewObject(&sc.Objects[i], s.opts.SkipReexport, s.opts.ForceReexport))
	}

	// Velocity/attraction targets export independently, centroid only.
	for i := range sc.Objects {
		target := sc.Objects[i].Target
		if target == "" {
			continue
		}
		to, ok := byName[target]
		if !ok {
			return fmt.Errorf("plan: object %q targets unknown object %q", sc.Objects[i].Name, target)
		}
		add(NewTargetObject(to, s.opts.SkipReexport, s.opts.ForceReexport))
	}

	// The meshing volume exports its mesh like any simulation object and
	// merges with a same-named one.
	if sc.MeshingVolume != "" {
		mo, ok := byName[sc.MeshingVolume]
		if !ok {
			return fmt.Errorf("plan: meshing volume %q not in scene", sc.MeshingVolume)
		}
		eo := NewObject(mo, s.opts.SkipReexport, s.opts.ForceReexport)
		eo.Kinds = geometry.NewKindSet(geometry.KindMesh)
		add(eo)
	}

	if err := s.register(ctx); err != nil {
		return err
	}
	return s.buildQueue(ctx)
}

// register assigns store ids and seeds exported-frame state. The id is
// cached on each object so the drain loop never does a slug lookup.
func (s *Scheduler) register(ctx context.Context) error {
	for _, slug := range s.order {
		o := s.objects[slug]
		id, err := s.store.AddObject(ctx, o.Name, o.Slug, o.Motion, o.Kinds)
		if err != nil {
			return fmt.Errorf("plan: register %q: %w", o.Name, err)
		}
		o.StoreID = id

		if o.Motion == geometry.MotionStatic {
			continue
		}
		for _, kind := range o.Kinds.Sorted() {
			frames, err := s.store.ListExportedFrames(ctx, id, o.Motion, kind)
			if err != nil {
				return fmt.Errorf("plan: exported frames for %q: %w", o.Name, err)
			}
			for _, f := range frames {
				o.MarkExported(kind, f)
			}
		}
	}
	return nil
}

// buildQueue expands objects into the four sub-queues. Sub-queues are
// pushed static-first and reversed, so pop-from-end drains animated
// items first and preserves original order within each sub-queue.
func (s *Scheduler) buildQueue(ctx context.Context) error {
	var static, basis, keyframed, animated []Item

	for _, slug := range s.order {
		o := s.objects[slug]
		switch o.Motion {
		case geometry.MotionStatic:
			for _, kind := range o.Kinds.Sorted() {
				skip, err := s.staticCached(ctx, o, kind)
				if err != nil {
					return err
				}
				if skip {
					continue
				}
				static = append(static, Item{Object: o, Kind: kind, Frame: o.FrameStart, ApplyTransforms: true})
			}

		case geometry.MotionKeyframed:
			for _, kind := range o.Kinds.Sorted() {
				if blobKind(kind) {
					skip, err := s.basisCached(ctx, o, kind)
					if err != nil {
						return err
					}
					if !skip {
						basis = append(basis, Item{Object: o, Kind: kind, Frame: o.FrameStart, ApplyTransforms: false})
					}
				}
				for f := o.FrameStart; f <= o.FrameEnd; f++ {
					if o.shouldSkipFrame(kind, f) {
						continue
					}
					keyframed = append(keyframed, Item{Object: o, Kind: kind, Frame: f, ApplyTransforms: true})
				}
			}

		case geometry.MotionAnimated:
			for _, kind := range o.Kinds.Sorted() {
				for f := o.FrameStart; f <= o.FrameEnd; f++ {
					if o.shouldSkipFrame(kind, f) {
						continue
					}
					animated = append(animated, Item{Object: o, Kind: kind, Frame: f, ApplyTransforms: true})
				}
			}
		}
	}

	s.q.pushReversed(static)
	s.q.pushReversed(basis)
	s.q.pushReversed(keyframed)
	s.q.pushReversed(animated)

	if s.log != nil {
		s.log.Debug("export queue built",
			"objects", len(s.objects),
			"static", len(static),
			"basis", len(basis),
			"keyframed", len(keyframed),
			"animated", len(animated))
	}
	return nil
}

// staticCached applies the skip-reexport rule for static items.
func (s *Scheduler) staticCached(ctx context.Context, o *Object, kind geometry.Kind) (bool, error) {
	if !o.SkipReexport || o.ForceReexport {
		return false, nil
	}
	ok, err := s.store.Exists(ctx, o.StoreID, geometry.MotionStatic, kind, 0)
	if err != nil {
		return false, fmt.Errorf("plan: exists check for %q: %w", o.Name, err)
	}
	return ok, nil
}

// basisCached applies the skip-reexport rule for the keyframed basis
// payload, which lives in the static tables.
func (s *Scheduler) basisCached(ctx context.Context, o *Object, kind geometry.Kind) (bool, error) {
	return s.staticCached(ctx, o, kind)
}

// Drain processes queued items until the queue empties or the wall-time
// budget elapses, whichever comes first. A non-positive budget drains
// the whole queue. Every Drain call is one store batch transaction: a
// failing item rolls the batch back and marks the scheduler errored.
func (s *Scheduler) Drain(ctx context.Context, budget time.Duration) Progress {
	if s.err != nil {
		return ProgressErrored
	}
	if !s.planned {
		s.err = fmt.Errorf("drain: Plan not called")
		return ProgressErrored
	}
	if s.q.len() == 0 {
		return ProgressDone
	}

	start := time.Now()
	if err := s.store.Begin(ctx); err != nil {
		s.err = err
		return ProgressErrored
	}

	for {
		if err := ctx.Err(); err != nil {
			s.store.Rollback()
			s.err = fmt.Errorf("drain cancelled: %w", err)
			return ProgressErrored
		}

		it, ok := s.q.pop()
		if !ok {
			break
		}
		if it.Object.animationHalted {
			continue
		}

		if err := s.processItem(ctx, it); err != nil {
			s.store.Rollback()
			s.err = err
			return ProgressErrored
		}
		s.processed++

		if budget > 0 && time.Since(start) > budget {
			break
		}
	}

	if err := s.store.Commit(); err != nil {
		s.err = err
		return ProgressErrored
	}
	if s.q.len() == 0 {
		return ProgressDone
	}
	return ProgressContinuing
}

func (s *Scheduler) processItem(ctx context.Context, it Item) error {
	switch {
	case it.Object.Motion == geometry.MotionStatic,
		it.Object.Motion == geometry.MotionKeyframed && !it.ApplyTransforms:
		return s.processStatic(ctx, it)
	case it.Object.Motion == geometry.MotionKeyframed:
		return s.processKeyframed(ctx, it)
	default:
		return s.processAnimated(ctx, it)
	}
}

// processStatic derives and writes a single static payload. Basis items
// for keyframed objects keep local space (ApplyTransforms false); plain
// static items bake world space at the object's first frame.
func (s *Scheduler) processStatic(ctx context.Context, it Item) error {
	o := it.Object
	switch it.Kind {
	case geometry.KindMesh, geometry.KindVertices:
		m, err := s.source.StaticMesh(o.Slug)
		if err != nil {
			return fmt.Errorf("static mesh for %q: %w", o.Name, err)
		}
		if it.ApplyTransforms {
			m = s.transformMesh(o, m, it.Frame)
			if m == nil {
				return fmt.Errorf("static mesh for %q: transform lookup failed", o.Name)
			}
		}
		if it.Kind == geometry.KindVertices {
			m = &geometry.Mesh{Vertices: m.Vertices}
		}
		return s.store.PutStaticBlob(ctx, it.Kind, o.StoreID, geometry.EncodeMesh(m))

	case geometry.KindCurve:
		c, err := s.source.StaticCurve(o.Slug)
		if err != nil {
			return fmt.Errorf("static curve for %q: %w", o.Name, err)
		}
		if it.ApplyTransforms {
			tm, err := s.source.TransformAt(o.Slug, it.Frame)
			if err != nil {
				return fmt.Errorf("static curve transform for %q: %w", o.Name, err)
			}
			out := &geometry.Curve{Points: make([]geometry.Vec3, len(c.Points))}
			for i, p := range c.Points {
				out.Points[i] = tm.Apply(p)
			}
			c = out
		}
		return s.store.PutStaticBlob(ctx, it.Kind, o.StoreID, geometry.EncodeCurve(c))

	case geometry.KindCentroid:
		v, err := s.source.CentroidAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("static centroid for %q: %w", o.Name, err)
		}
		return s.store.PutCentroid(ctx, geometry.MotionStatic, o.StoreID, 0, v)

	case geometry.KindAxis:
		b, err := s.source.AxisAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("static axis for %q: %w", o.Name, err)
		}
		return s.store.PutAxis(ctx, geometry.MotionStatic, o.StoreID, 0, b)

	default:
		return fmt.Errorf("static item for %q: unsupported kind %v", o.Name, it.Kind)
	}
}

func (s *Scheduler) transformMesh(o *Object, m *geometry.Mesh, frame int) *geometry.Mesh {
	tm, err := s.source.TransformAt(o.Slug, frame)
	if err != nil {
		return nil
	}
	out := &geometry.Mesh{
		Vertices:  make([]geometry.Vec3, len(m.Vertices)),
		Triangles: m.Triangles,
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = tm.Apply(v)
	}
	return out
}

// processKeyframed writes one per-frame sample for a keyframed object:
// a transform for blob kinds, a centroid or axis sample otherwise.
func (s *Scheduler) processKeyframed(ctx context.Context, it Item) error {
	o := it.Object
	switch it.Kind {
	case geometry.KindMesh, geometry.KindVertices, geometry.KindCurve:
		tm, err := s.source.TransformAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("keyframed transform for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutKeyframedTransform(ctx, it.Kind, o.StoreID, it.Frame, tm); err != nil {
			return err
		}

	case geometry.KindCentroid:
		v, err := s.source.CentroidAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("keyframed centroid for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutCentroid(ctx, geometry.MotionKeyframed, o.StoreID, it.Frame, v); err != nil {
			return err
		}

	case geometry.KindAxis:
		b, err := s.source.AxisAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("keyframed axis for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutAxis(ctx, geometry.MotionKeyframed, o.StoreID, it.Frame, b); err != nil {
			return err
		}

	default:
		return fmt.Errorf("keyframed item for %q: unsupported kind %v", o.Name, it.Kind)
	}

	o.MarkExported(it.Kind, it.Frame)
	return nil
}

// processAnimated writes one full per-frame payload for an animated
// object. Animated meshes additionally run topology-change detection
// against the previous frame after the write.
func (s *Scheduler) processAnimated(ctx context.Context, it Item) error {
	o := it.Object
	switch it.Kind {
	case geometry.KindMesh, geometry.KindVertices:
		m, err := s.source.MeshAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("animated mesh for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if it.Kind == geometry.KindVertices {
			m = &geometry.Mesh{Vertices: m.Vertices}
		}
		blob := geometry.EncodeMesh(m)

		var prev []byte
		if it.Kind == geometry.KindMesh {
			var ok bool
			prev, ok, err = s.store.GetAnimatedBlob(ctx, it.Kind, o.StoreID, it.Frame-1)
			if err != nil {
				return err
			}
			if !ok {
				prev = nil
			}
		}

		if err := s.store.PutAnimatedBlob(ctx, it.Kind, o.StoreID, it.Frame, blob); err != nil {
			return err
		}
		if prev != nil {
			if err := s.checkTopology(o, it.Frame, prev, blob); err != nil {
				return err
			}
		}

	case geometry.KindCurve:
		c, err := s.source.CurveAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("animated curve for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutAnimatedBlob(ctx, it.Kind, o.StoreID, it.Frame, geometry.EncodeCurve(c)); err != nil {
			return err
		}

	case geometry.KindCentroid:
		v, err := s.source.CentroidAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("animated centroid for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutCentroid(ctx, geometry.MotionAnimated, o.StoreID, it.Frame, v); err != nil {
			return err
		}

	case geometry.KindAxis:
		b, err := s.source.AxisAt(o.Slug, it.Frame)
		if err != nil {
			return fmt.Errorf("animated axis for %q frame %d: %w", o.Name, it.Frame, err)
		}
		if err := s.store.PutAxis(ctx, geometry.MotionAnimated, o.StoreID, it.Frame, b); err != nil {
			return err
		}

	default:
		return fmt.Errorf("animated item for %q: unsupported kind %v", o.Name, it.Kind)
	}

	o.MarkExported(it.Kind, it.Frame)
	return nil
}

// checkTopology compares a freshly written animated mesh frame against
// the previous one. A byte-length mismatch is only suspicious; the
// header counts decide. A genuine change stops further export for the
// object and is fatal only in strict mode.
func (s *Scheduler) checkTopology(o *Object, frame int, prev, curr []byte) error {
	if len(prev) == len(curr) {
		return nil
	}
	pv, pt, err := geometry.MeshCounts(prev)
	if err != nil {
		return fmt.Errorf("topology check for %q frame %d: %w", o.Name, frame-1, err)
	}
	cv, ct, err := geometry.MeshCounts(curr)
	if err != nil {
		return fmt.Errorf("topology check for %q frame %d: %w", o.Name, frame, err)
	}
	if pv == cv && pt == ct {
		return nil
	}

	terr := &TopologyError{
		Object: o.Name,
		FrameA: frame - 1, FrameB: frame,
		VertsA: pv, VertsB: cv,
		TrisA: pt, TrisB: ct,
	}
	if s.opts.StrictTopology {
		return terr
	}
	o.animationHalted = true
	if !s.opts.SuppressTopologyWarnings {
		s.warnings = append(s.warnings, terr)
		if s.log != nil {
			s.log.Warn("animated mesh topology changed",
				"object", o.Name,
				"frames", fmt.Sprintf("%d/%d", terr.FrameA, terr.FrameB),
				"vertices", fmt.Sprintf("%d/%d", pv, cv),
				"triangles", fmt.Sprintf("%d/%d", pt, ct))
		}
	}
	return nil
}

// blobKind reports whether the kind's payload is a raw blob (and so has
// a static basis for keyframed objects).
func blobKind(kind geometry.Kind) bool {
	switch kind {
	case geometry.KindMesh, geometry.KindVertices, geometry.KindCurve:
		return true
	default:
		return false
	}
}

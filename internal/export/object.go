package export

import (
	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
)

// Object is the per-invocation export state for one scene object. It is
// derived from scene state at the start of a bake, mutated as frames
// complete, and discarded at the end - never persisted.
type Object struct {
	Name   string
	Slug   string
	Motion geometry.Motion
	Kinds  geometry.KindSet

	FrameStart int
	FrameEnd   int

	// ExportedFrames tracks which frames are already cached, per kind.
	ExportedFrames map[geometry.Kind]map[int]bool

	SkipReexport  bool
	ForceReexport bool

	// StoreID is the geometry store row id, assigned once during Plan and
	// cached here so the drain loop never does a slug lookup per item.
	StoreID int64

	// animationHalted stops further animated scheduling for this object
	// after a topology change was detected.
	animationHalted bool
}

// NewObject derives an export object from a scene object.
func NewObject(o *scene.Object, skipReexport, forceReexport bool) *Object {
	return &Object{
		Name:           o.Name,
		Slug:           o.Slug(),
		Motion:         Classify(o),
		Kinds:          RequestedKinds(o.Role, o.Shape),
		FrameStart:     o.FrameStart,
		FrameEnd:       o.FrameEnd,
		ExportedFrames: make(map[geometry.Kind]map[int]bool),
		SkipReexport:   skipReexport,
		ForceReexport:  forceReexport,
	}
}

// NewTargetObject derives an export object for a velocity/attraction
// target. Targets request centroid only; motion is classified from the
// target's own scene state.
func NewTargetObject(o *scene.Object, skipReexport, forceReexport bool) *Object {
	t := NewObject(o, skipReexport, forceReexport)
	t.Kinds = TargetKinds()
	return t
}

// Merge folds another export request for the same slug into this one.
// The higher-ranked motion type wins and the kind sets union. When the
// other request upgrades the motion type, its frame range is adopted too.
func (o *Object) Merge(other *Object) {
	o.Kinds = o.Kinds.Union(other.Kinds)
	if other.Motion > o.Motion {
		o.Motion = other.Motion
		o.FrameStart = other.FrameStart
		o.FrameEnd = other.FrameEnd
	}
	o.SkipReexport = o.SkipReexport && other.SkipReexport
	o.ForceReexport = o.ForceReexport || other.ForceReexport
}

// MarkExported records that a frame of one kind is cached.
func (o *Object) MarkExported(kind geometry.Kind, frame int) {
	m := o.ExportedFrames[kind]
	if m == nil {
		m = make(map[int]bool)
		o.ExportedFrames[kind] = m
	}
	m[frame] = true
}

// IsExported reports whether a frame of one kind is cached.
func (o *Object) IsExported(kind geometry.Kind, frame int) bool {
	return o.ExportedFrames[kind][frame]
}

// shouldSkipFrame applies the skip-reexport rule for per-frame items.
func (o *Object) shouldSkipFrame(kind geometry.Kind, frame int) bool {
	return o.SkipReexport && !o.ForceReexport && o.IsExported(kind, frame)
}

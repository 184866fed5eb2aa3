package sim

import (
	"math"
	"sort"

	"github.com/roach88/bakeflow/internal/geometry"
)

// paramEpsilon is the threshold below which a parameter is considered
// unchanged and not re-pushed to the engine.
const paramEpsilon = 1e-9

// Parameter is a solver setting that is either constant for the whole
// bake or sampled per frame. Per-frame values are indexed from the bake's
// first frame and clamp at both ends.
type Parameter[T any] struct {
	constant T
	perFrame []T
}

// Constant wraps a fixed value.
func Constant[T any](v T) Parameter[T] {
	return Parameter[T]{constant: v}
}

// PerFrame wraps a per-frame sample list. An empty list behaves like the
// zero constant.
func PerFrame[T any](vals []T) Parameter[T] {
	return Parameter[T]{perFrame: vals}
}

// Animated reports whether the parameter varies over time.
func (p Parameter[T]) Animated() bool { return len(p.perFrame) > 0 }

// At returns the value for the given offset from the bake's first frame.
func (p Parameter[T]) At(offset int) T {
	if len(p.perFrame) == 0 {
		return p.constant
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(p.perFrame) {
		offset = len(p.perFrame) - 1
	}
	return p.perFrame[offset]
}

func scalarChanged(a, b float64) bool {
	return math.Abs(a-b) > paramEpsilon
}

func vectorChanged(a, b geometry.Vec3) bool {
	return scalarChanged(float64(a.X), float64(b.X)) ||
		scalarChanged(float64(a.Y), float64(b.Y)) ||
		scalarChanged(float64(a.Z), float64(b.Z))
}

// Parameters tracks the last value pushed for every named parameter and
// re-binds only the ones that actually changed since the previous frame.
type Parameters struct {
	scalars map[string]Parameter[float64]
	vectors map[string]Parameter[geometry.Vec3]

	lastScalars map[string]float64
	lastVectors map[string]geometry.Vec3
}

func NewParameters() *Parameters {
	return &Parameters{
		scalars:     make(map[string]Parameter[float64]),
		vectors:     make(map[string]Parameter[geometry.Vec3]),
		lastScalars: make(map[string]float64),
		lastVectors: make(map[string]geometry.Vec3),
	}
}

func (p *Parameters) SetScalar(name string, param Parameter[float64]) {
	p.scalars[name] = param
}

func (p *Parameters) SetVector(name string, param Parameter[geometry.Vec3]) {
	p.vectors[name] = param
}

// Refresh pushes every parameter whose value at the given frame offset
// differs from what the engine last saw. The first call pushes
// everything. Returns the number of parameters bound.
func (p *Parameters) Refresh(offset int, eng Engine) (int, error) {
	pushed := 0
	for _, name := range sortedKeys(p.scalars) {
		v := p.scalars[name].At(offset)
		last, seen := p.lastScalars[name]
		if seen && !scalarChanged(v, last) {
			continue
		}
		if err := eng.SetScalar(name, v); err != nil {
			return pushed, err
		}
		p.lastScalars[name] = v
		pushed++
	}
	for _, name := range sortedKeys(p.vectors) {
		v := p.vectors[name].At(offset)
		last, seen := p.lastVectors[name]
		if seen && !vectorChanged(v, last) {
			continue
		}
		if err := eng.SetVector(name, v); err != nil {
			return pushed, err
		}
		p.lastVectors[name] = v
		pushed++
	}
	return pushed, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package export

import (
	"github.com/roach88/bakeflow/internal/geometry"
)

// Item is one unit of export work: derive one payload for one object,
// kind, and frame, and write it to the store. Items are consumed exactly
// once by the drain loop.
type Item struct {
	Object *Object
	Kind   geometry.Kind

	// Frame is meaningful for keyframed and animated items. Static items
	// use the object's FrameStart for frame-dependent derivation.
	Frame int

	// ApplyTransforms is false for the static basis payload of keyframed
	// objects: the basis must stay untransformed so the per-frame
	// transforms apply against it. Plain static items bake world space.
	ApplyTransforms bool
}

// queue holds work items ordered for pop-from-end draining.
type queue struct {
	items []Item
}

// push appends an item.
func (q *queue) push(it Item) {
	q.items = append(q.items, it)
}

// pop removes and returns the last item.
func (q *queue) pop() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[len(q.items)-1]
	// Nil out the slot so the Object pointer does not outlive the item.
	q.items[len(q.items)-1] = Item{}
	q.items = q.items[:len(q.items)-1]
	return it, true
}

// pushReversed appends a sub-queue in reverse so popping from the end
// yields the sub-queue's original order.
func (q *queue) pushReversed(items []Item) {
	for i := len(items) - 1; i >= 0; i-- {
		q.push(items[i])
	}
}

// len returns the number of remaining items.
func (q *queue) len() int {
	return len(q.items)
}

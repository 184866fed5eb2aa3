package export

import "fmt"

// TopologyError records a vertex/triangle count change between two
// consecutive animated mesh frames. It is a data-quality warning, not a
// crash: unless strict mode is configured the scheduler records it and
// stops scheduling further animated work for the object.
type TopologyError struct {
	Object    string
	FrameA    int
	FrameB    int
	VertsA    int
	VertsB    int
	TrisA     int
	TrisB     int
}

// Error implements the error interface.
func (e *TopologyError) Error() string {
	return fmt.Sprintf(
		"animated mesh topology changed for %q between frames %d and %d: vertices %d -> %d, triangles %d -> %d",
		e.Object, e.FrameA, e.FrameB, e.VertsA, e.VertsB, e.TrisA, e.TrisB,
	)
}

// Package export builds and drains the prioritized work queue that
// populates the geometry store before and during a bake.
//
// Each scene object is classified by motion type (static, keyframed,
// animated) and by the geometry kinds its role requires. Classification
// results are merged per slug - the higher-ranked motion type wins and
// kind sets union - then the scheduler expands objects into work items
// across four sub-queues:
//
//  1. animated items, one per (object, kind, frame)
//  2. keyframed items, one per (object, kind, frame)
//  3. static basis items for keyframed objects (untransformed payloads
//     the per-frame transforms apply against)
//  4. static items
//
// Expensive per-frame work drains first so failures surface early. Each
// sub-queue is stored reversed and drained by popping from the end,
// preserving original order without front-removal cost.
//
// Draining is cooperative: Drain processes items until the queue empties
// or the caller's time budget elapses, then returns control. Errors
// accumulate on the scheduler and are polled via Err; nothing is thrown
// across the yield boundary.
package export

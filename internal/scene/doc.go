// Package scene models the scene-side inputs to a bake: the objects being
// exported, their roles and shapes, and the Source collaborator that
// derives geometry on demand.
//
// Objects are identified everywhere by a stable slug computed from the
// object name (see Slug). The geometry store, the export scheduler, and
// the simulation stepper all key on the same slug scheme.
package scene

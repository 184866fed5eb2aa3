// Package geometry defines the value types shared across the bake pipeline:
// vectors, transforms, triangle meshes, curves, and the binary blob codec
// used to persist meshes and curves in the geometry store.
//
// The blob format is little-endian with a magic/version header so that
// topology checks can read vertex and triangle counts without decoding the
// full payload.
package geometry

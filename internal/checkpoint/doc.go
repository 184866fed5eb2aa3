// Package checkpoint persists and restores simulation particle state at
// frame boundaries.
//
// A savestate is a directory holding one binary file per particle
// attribute plus a JSON manifest naming the files and recording counts,
// grid dimensions, and feature flags. Attribute arrays are unbounded, so
// both save and load stream them in chunks; the chunk size is a tuning
// parameter of whichever side is doing the transfer, never a format
// invariant.
//
// # Commit protocol
//
// All attribute files are first written fully under a .tmp suffix. The
// commit then deletes the previously committed files (manifest first),
// renames every .tmp into place, and writes the manifest last. The
// manifest is the commit marker: a slot without one is treated as
// absent, so a crash mid-commit degrades to "no default slot" while any
// numbered backup slot stays untouched. The window between delete and
// rename is a known, documented gap - see the fault-injection test.
//
// # Retention
//
// After a successful commit the default slot may be copied into a
// numbered slot (directory suffixed with the zero-padded 6-digit frame
// number) at a configured interval. PruneBeyond removes numbered slots
// past a resume point so resuming earlier cannot leave future artifacts
// behind.
package checkpoint

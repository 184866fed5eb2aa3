// Package store provides the SQLite-backed geometry cache for bake runs.
//
// The cache holds one row per exported scene object plus one table family
// per (geometry kind x motion type):
//   - static tables: one payload per object
//   - keyframed tables: one 4x4 transform per object per frame, applied to
//     the object's static basis payload
//   - animated tables: one full payload per object per frame
//
// # Invariants
//
//   - Object identity is unique on slug; AddObject is idempotent
//     (ON CONFLICT DO NOTHING), so re-running an export never duplicates rows.
//   - Every geometry row references exactly one object; deleting an object
//     cascades to all dependent geometry rows via ON DELETE CASCADE, which
//     requires foreign_keys=ON (applied at Open).
//   - Absence is a value, not an error: Get* return a false second result
//     for missing rows.
//
// # Batch Transactions
//
// The export scheduler wraps each drain batch in Begin/Commit so a
// mid-batch failure rolls back as a unit. Outside a batch every call is
// autocommitted.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: referential integrity and cascade deletes
package store

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/bakeflow/internal/geometry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	// Verify the full table family exists
	tables := []string{"object"}
	for _, kind := range []geometry.Kind{geometry.KindMesh, geometry.KindVertices, geometry.KindCentroid, geometry.KindAxis, geometry.KindCurve} {
		for _, motion := range []geometry.Motion{geometry.MotionStatic, geometry.MotionKeyframed, geometry.MotionAnimated} {
			tables = append(tables, kind.String()+"_"+motion.String())
		}
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Errorf("pragma check failed: %v", err)
		}
	}
}

func TestAddObject_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kinds := geometry.NewKindSet(geometry.KindMesh, geometry.KindAxis)

	id1, err := s.AddObject(ctx, "Cube", "a1b2c3d4e5f60718", geometry.MotionStatic, kinds)
	if err != nil {
		t.Fatalf("first AddObject failed: %v", err)
	}

	id2, err := s.AddObject(ctx, "Cube", "a1b2c3d4e5f60718", geometry.MotionStatic, kinds)
	if err != nil {
		t.Fatalf("second AddObject failed: %v", err)
	}

	if id1 != id2 {
		t.Errorf("duplicate slug returned different ids: %d vs %d", id1, id2)
	}

	n, err := s.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if n != 1 {
		t.Errorf("object row count = %d, want 1", n)
	}
}

func TestObjectID_Missing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.ObjectID(context.Background(), "0000000000000000")
	if err != nil {
		t.Fatalf("ObjectID failed: %v", err)
	}
	if ok {
		t.Error("ObjectID reported an object that was never added")
	}
}

func TestGetObject_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kinds := geometry.NewKindSet(geometry.KindMesh, geometry.KindCentroid, geometry.KindAxis)

	id, err := s.AddObject(ctx, "Inflow", "ffee00112233aabb", geometry.MotionKeyframed, kinds)
	if err != nil {
		t.Fatalf("AddObject failed: %v", err)
	}

	rec, ok, err := s.GetObject(ctx, "ffee00112233aabb")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if !ok {
		t.Fatal("GetObject did not find the object")
	}
	if rec.ID != id || rec.Name != "Inflow" || rec.Motion != geometry.MotionKeyframed {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.Kinds[geometry.KindMesh] || !rec.Kinds[geometry.KindCentroid] || !rec.Kinds[geometry.KindAxis] {
		t.Errorf("kind set not preserved: %v", rec.Kinds)
	}
	if rec.Kinds[geometry.KindCurve] || rec.Kinds[geometry.KindVertices] {
		t.Errorf("spurious kinds present: %v", rec.Kinds)
	}
}

// populateAllTables inserts one row per kind x motion table for the object.
func populateAllTables(t *testing.T, s *Store, id int64) {
	t.Helper()
	ctx := context.Background()
	blob := geometry.EncodeMesh(&geometry.Mesh{Vertices: []geometry.Vec3{{X: 1}}})

	for _, kind := range []geometry.Kind{geometry.KindMesh, geometry.KindVertices, geometry.KindCurve} {
		if err := s.PutStaticBlob(ctx, kind, id, blob); err != nil {
			t.Fatalf("PutStaticBlob(%v) failed: %v", kind, err)
		}
		if err := s.PutKeyframedTransform(ctx, kind, id, 1, geometry.Identity()); err != nil {
			t.Fatalf("PutKeyframedTransform(%v) failed: %v", kind, err)
		}
		if err := s.PutAnimatedBlob(ctx, kind, id, 1, blob); err != nil {
			t.Fatalf("PutAnimatedBlob(%v) failed: %v", kind, err)
		}
	}
	for _, motion := range []geometry.Motion{geometry.MotionStatic, geometry.MotionKeyframed, geometry.MotionAnimated} {
		if err := s.PutCentroid(ctx, motion, id, 1, geometry.Vec3{X: 1, Y: 2, Z: 3}); err != nil {
			t.Fatalf("PutCentroid(%v) failed: %v", motion, err)
		}
		if err := s.PutAxis(ctx, motion, id, 1, geometry.AxisBasis{{X: 1}, {Y: 1}, {Z: 1}}); err != nil {
			t.Fatalf("PutAxis(%v) failed: %v", motion, err)
		}
	}
}

func TestDeleteObject_CascadesAllTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddObject(ctx, "Obstacle", "1122334455667788", geometry.MotionAnimated, geometry.NewKindSet(geometry.KindMesh))
	if err != nil {
		t.Fatalf("AddObject failed: %v", err)
	}
	populateAllTables(t, s, id)

	// Keep a second object to prove the cascade is scoped to one id.
	other, err := s.AddObject(ctx, "Keeper", "8877665544332211", geometry.MotionAnimated, geometry.NewKindSet(geometry.KindMesh))
	if err != nil {
		t.Fatalf("AddObject (keeper) failed: %v", err)
	}
	populateAllTables(t, s, other)

	if err := s.DeleteObject(ctx, "1122334455667788"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}

	for _, kind := range []geometry.Kind{geometry.KindMesh, geometry.KindVertices, geometry.KindCentroid, geometry.KindAxis, geometry.KindCurve} {
		for _, motion := range []geometry.Motion{geometry.MotionStatic, geometry.MotionKeyframed, geometry.MotionAnimated} {
			n, err := s.CountRows(ctx, kind, motion)
			if err != nil {
				t.Fatalf("CountRows(%v, %v) failed: %v", kind, motion, err)
			}
			if n != 1 {
				t.Errorf("%s_%s row count after cascade = %d, want 1 (keeper only)", kind, motion, n)
			}
		}
	}

	n, err := s.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if n != 1 {
		t.Errorf("object count after delete = %d, want 1", n)
	}
}

func TestDeleteObject_UnknownSlugIsNoOp(t *testing.T) {
	s := openTestStore(t)

	if err := s.DeleteObject(context.Background(), "doesnotexist0000"); err != nil {
		t.Errorf("DeleteObject of unknown slug returned error: %v", err)
	}
}

func TestGet_MissingReturnsAbsence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetStaticBlob(ctx, geometry.KindMesh, 42); err != nil || ok {
		t.Errorf("GetStaticBlob: ok=%v err=%v, want absence without error", ok, err)
	}
	if _, ok, err := s.GetKeyframedTransform(ctx, geometry.KindMesh, 42, 7); err != nil || ok {
		t.Errorf("GetKeyframedTransform: ok=%v err=%v, want absence without error", ok, err)
	}
	if _, ok, err := s.GetAnimatedBlob(ctx, geometry.KindMesh, 42, 7); err != nil || ok {
		t.Errorf("GetAnimatedBlob: ok=%v err=%v, want absence without error", ok, err)
	}
	if _, ok, err := s.GetCentroid(ctx, geometry.MotionKeyframed, 42, 7); err != nil || ok {
		t.Errorf("GetCentroid: ok=%v err=%v, want absence without error", ok, err)
	}
	if _, ok, err := s.GetAxis(ctx, geometry.MotionStatic, 42, 0); err != nil || ok {
		t.Errorf("GetAxis: ok=%v err=%v, want absence without error", ok, err)
	}
}

func TestPutGet_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddObject(ctx, "Fluid", "aabbccdd00112233", geometry.MotionKeyframed, geometry.NewKindSet(geometry.KindMesh, geometry.KindAxis))
	if err != nil {
		t.Fatalf("AddObject failed: %v", err)
	}

	mesh := &geometry.Mesh{
		Vertices:  []geometry.Vec3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 7, Y: 8, Z: 9}},
		Triangles: [][3]int32{{0, 1, 2}},
	}
	if err := s.PutStaticBlob(ctx, geometry.KindMesh, id, geometry.EncodeMesh(mesh)); err != nil {
		t.Fatalf("PutStaticBlob failed: %v", err)
	}
	blob, ok, err := s.GetStaticBlob(ctx, geometry.KindMesh, id)
	if err != nil || !ok {
		t.Fatalf("GetStaticBlob: ok=%v err=%v", ok, err)
	}
	got, err := geometry.DecodeMesh(blob)
	if err != nil {
		t.Fatalf("DecodeMesh failed: %v", err)
	}
	if got.VertexCount() != 3 || got.TriangleCount() != 1 {
		t.Errorf("mesh round-trip: %d verts %d tris", got.VertexCount(), got.TriangleCount())
	}

	m := geometry.Identity()
	m[3] = 10.5
	if err := s.PutKeyframedTransform(ctx, geometry.KindMesh, id, 12, m); err != nil {
		t.Fatalf("PutKeyframedTransform failed: %v", err)
	}
	gotM, ok, err := s.GetKeyframedTransform(ctx, geometry.KindMesh, id, 12)
	if err != nil || !ok {
		t.Fatalf("GetKeyframedTransform: ok=%v err=%v", ok, err)
	}
	if gotM != m {
		t.Errorf("transform round-trip mismatch: %v", gotM)
	}

	basis := geometry.AxisBasis{{X: 1}, {Y: 1}, {Z: 1}}
	if err := s.PutAxis(ctx, geometry.MotionKeyframed, id, 12, basis); err != nil {
		t.Fatalf("PutAxis failed: %v", err)
	}
	gotB, ok, err := s.GetAxis(ctx, geometry.MotionKeyframed, id, 12)
	if err != nil || !ok {
		t.Fatalf("GetAxis: ok=%v err=%v", ok, err)
	}
	if gotB != basis {
		t.Errorf("axis round-trip mismatch: %v", gotB)
	}
}

func TestExists_And_ListExportedFrames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddObject(ctx, "Cube", "a1b2c3d4e5f60718", geometry.MotionKeyframed, geometry.NewKindSet(geometry.KindMesh))
	if err != nil {
		t.Fatalf("AddObject failed: %v", err)
	}

	// Write frames out of order; the listing must come back sorted.
	for _, f := range []int{3, 1, 5, 2, 4} {
		if err := s.PutKeyframedTransform(ctx, geometry.KindMesh, id, f, geometry.Identity()); err != nil {
			t.Fatalf("PutKeyframedTransform frame %d failed: %v", f, err)
		}
	}

	ok, err := s.Exists(ctx, id, geometry.MotionKeyframed, geometry.KindMesh, 3)
	if err != nil || !ok {
		t.Errorf("Exists frame 3: ok=%v err=%v", ok, err)
	}
	ok, err = s.Exists(ctx, id, geometry.MotionKeyframed, geometry.KindMesh, 6)
	if err != nil || ok {
		t.Errorf("Exists frame 6: ok=%v err=%v, want false", ok, err)
	}

	frames, err := s.ListExportedFrames(ctx, id, geometry.MotionKeyframed, geometry.KindMesh)
	if err != nil {
		t.Fatalf("ListExportedFrames failed: %v", err)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(frames) != len(want) {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frames = %v, want %v", frames, want)
		}
	}
}

func TestBatch_RollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := s.AddObject(ctx, "Ghost", "deadbeefdeadbeef", geometry.MotionStatic, geometry.NewKindSet(geometry.KindMesh)); err != nil {
		t.Fatalf("AddObject in batch failed: %v", err)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	n, err := s.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if n != 0 {
		t.Errorf("object count after rollback = %d, want 0", n)
	}
}

func TestBatch_CommitPersistsWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if s.Begin(ctx) != ErrTxOpen {
		t.Error("nested Begin did not return ErrTxOpen")
	}
	if _, err := s.AddObject(ctx, "Solid", "cafebabecafebabe", geometry.MotionStatic, geometry.NewKindSet(geometry.KindMesh)); err != nil {
		t.Fatalf("AddObject in batch failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	n, err := s.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if n != 1 {
		t.Errorf("object count after commit = %d, want 1", n)
	}
}

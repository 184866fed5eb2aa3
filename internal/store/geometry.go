package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bakeflow/internal/geometry"
)

// Table names are derived as <kind>_<motion>. Both enums render to a fixed
// identifier set, so the derived name never carries user input.
func tableFor(kind geometry.Kind, motion geometry.Motion) (string, error) {
	k := kind.String()
	m := motion.String()
	if k == "unknown" || m == "unknown" {
		return "", fmt.Errorf("no table for kind=%v motion=%v", kind, motion)
	}
	return k + "_" + m, nil
}

// blobKind reports whether the kind's payload is stored as a raw blob
// (meshes, vertex clouds, curves) rather than as float columns.
func blobKind(kind geometry.Kind) bool {
	switch kind {
	case geometry.KindMesh, geometry.KindVertices, geometry.KindCurve:
		return true
	default:
		return false
	}
}

// PutStaticBlob upserts the single static payload for a blob-kind object.
// Valid kinds: MESH, VERTICES, CURVE.
func (s *Store) PutStaticBlob(ctx context.Context, kind geometry.Kind, id int64, blob []byte) error {
	if !blobKind(kind) {
		return fmt.Errorf("put static blob: kind %v has no blob payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionStatic)
	if err != nil {
		return fmt.Errorf("put static blob: %w", err)
	}
	_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (object_id, blob) VALUES (?, ?)
		ON CONFLICT(object_id) DO UPDATE SET blob = excluded.blob
	`, table), id, blob)
	if err != nil {
		return fmt.Errorf("put static %s: %w", kind, err)
	}
	return nil
}

// GetStaticBlob returns the static payload for a blob-kind object.
// Returns ok=false when no row exists.
func (s *Store) GetStaticBlob(ctx context.Context, kind geometry.Kind, id int64) (blob []byte, ok bool, err error) {
	if !blobKind(kind) {
		return nil, false, fmt.Errorf("get static blob: kind %v has no blob payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionStatic)
	if err != nil {
		return nil, false, fmt.Errorf("get static blob: %w", err)
	}
	err = s.h().QueryRowContext(ctx, fmt.Sprintf(`
		SELECT blob FROM %s WHERE object_id = ?
	`, table), id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get static %s: %w", kind, err)
	}
	return blob, true, nil
}

// PutKeyframedTransform upserts the per-frame transform for a keyframed
// blob-kind object. The transform applies to the static basis payload.
func (s *Store) PutKeyframedTransform(ctx context.Context, kind geometry.Kind, id int64, frame int, m geometry.Mat4) error {
	if !blobKind(kind) {
		return fmt.Errorf("put keyframed transform: kind %v has no transform payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionKeyframed)
	if err != nil {
		return fmt.Errorf("put keyframed transform: %w", err)
	}
	_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (object_id, frame_id, transform) VALUES (?, ?, ?)
		ON CONFLICT(object_id, frame_id) DO UPDATE SET transform = excluded.transform
	`, table), id, frame, geometry.EncodeMat4(m))
	if err != nil {
		return fmt.Errorf("put keyframed %s frame %d: %w", kind, frame, err)
	}
	return nil
}

// GetKeyframedTransform returns the transform for one frame.
// Returns ok=false when no row exists.
func (s *Store) GetKeyframedTransform(ctx context.Context, kind geometry.Kind, id int64, frame int) (geometry.Mat4, bool, error) {
	var zero geometry.Mat4
	if !blobKind(kind) {
		return zero, false, fmt.Errorf("get keyframed transform: kind %v has no transform payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionKeyframed)
	if err != nil {
		return zero, false, fmt.Errorf("get keyframed transform: %w", err)
	}
	var raw []byte
	err = s.h().QueryRowContext(ctx, fmt.Sprintf(`
		SELECT transform FROM %s WHERE object_id = ? AND frame_id = ?
	`, table), id, frame).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("get keyframed %s frame %d: %w", kind, frame, err)
	}
	m, err := geometry.DecodeMat4(raw)
	if err != nil {
		return zero, false, fmt.Errorf("get keyframed %s frame %d: %w", kind, frame, err)
	}
	return m, true, nil
}

// PutAnimatedBlob upserts the full per-frame payload for an animated
// blob-kind object.
func (s *Store) PutAnimatedBlob(ctx context.Context, kind geometry.Kind, id int64, frame int, blob []byte) error {
	if !blobKind(kind) {
		return fmt.Errorf("put animated blob: kind %v has no blob payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionAnimated)
	if err != nil {
		return fmt.Errorf("put animated blob: %w", err)
	}
	_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (object_id, frame_id, blob) VALUES (?, ?, ?)
		ON CONFLICT(object_id, frame_id) DO UPDATE SET blob = excluded.blob
	`, table), id, frame, blob)
	if err != nil {
		return fmt.Errorf("put animated %s frame %d: %w", kind, frame, err)
	}
	return nil
}

// GetAnimatedBlob returns the payload for one animated frame.
// Returns ok=false when no row exists.
func (s *Store) GetAnimatedBlob(ctx context.Context, kind geometry.Kind, id int64, frame int) (blob []byte, ok bool, err error) {
	if !blobKind(kind) {
		return nil, false, fmt.Errorf("get animated blob: kind %v has no blob payload", kind)
	}
	table, err := tableFor(kind, geometry.MotionAnimated)
	if err != nil {
		return nil, false, fmt.Errorf("get animated blob: %w", err)
	}
	err = s.h().QueryRowContext(ctx, fmt.Sprintf(`
		SELECT blob FROM %s WHERE object_id = ? AND frame_id = ?
	`, table), id, frame).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get animated %s frame %d: %w", kind, frame, err)
	}
	return blob, true, nil
}

// PutCentroid upserts a centroid sample. Frame is ignored for
// MotionStatic (the static table has no frame column).
func (s *Store) PutCentroid(ctx context.Context, motion geometry.Motion, id int64, frame int, v geometry.Vec3) error {
	table, err := tableFor(geometry.KindCentroid, motion)
	if err != nil {
		return fmt.Errorf("put centroid: %w", err)
	}
	if motion == geometry.MotionStatic {
		_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (object_id, x, y, z) VALUES (?, ?, ?, ?)
			ON CONFLICT(object_id) DO UPDATE SET x = excluded.x, y = excluded.y, z = excluded.z
		`, table), id, v.X, v.Y, v.Z)
	} else {
		_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (object_id, frame_id, x, y, z) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(object_id, frame_id) DO UPDATE SET x = excluded.x, y = excluded.y, z = excluded.z
		`, table), id, frame, v.X, v.Y, v.Z)
	}
	if err != nil {
		return fmt.Errorf("put %s centroid: %w", motion, err)
	}
	return nil
}

// GetCentroid returns a centroid sample. Frame is ignored for MotionStatic.
// Returns ok=false when no row exists.
func (s *Store) GetCentroid(ctx context.Context, motion geometry.Motion, id int64, frame int) (geometry.Vec3, bool, error) {
	table, err := tableFor(geometry.KindCentroid, motion)
	if err != nil {
		return geometry.Vec3{}, false, fmt.Errorf("get centroid: %w", err)
	}
	var v geometry.Vec3
	var row *sql.Row
	if motion == geometry.MotionStatic {
		row = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT x, y, z FROM %s WHERE object_id = ?
		`, table), id)
	} else {
		row = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT x, y, z FROM %s WHERE object_id = ? AND frame_id = ?
		`, table), id, frame)
	}
	err = row.Scan(&v.X, &v.Y, &v.Z)
	if errors.Is(err, sql.ErrNoRows) {
		return geometry.Vec3{}, false, nil
	}
	if err != nil {
		return geometry.Vec3{}, false, fmt.Errorf("get %s centroid: %w", motion, err)
	}
	return v, true, nil
}

// PutAxis upserts a local axis basis sample. Frame is ignored for
// MotionStatic.
func (s *Store) PutAxis(ctx context.Context, motion geometry.Motion, id int64, frame int, b geometry.AxisBasis) error {
	table, err := tableFor(geometry.KindAxis, motion)
	if err != nil {
		return fmt.Errorf("put axis: %w", err)
	}
	if motion == geometry.MotionStatic {
		_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (object_id, xx, xy, xz, yx, yy, yz, zx, zy, zz)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(object_id) DO UPDATE SET
				xx = excluded.xx, xy = excluded.xy, xz = excluded.xz,
				yx = excluded.yx, yy = excluded.yy, yz = excluded.yz,
				zx = excluded.zx, zy = excluded.zy, zz = excluded.zz
		`, table), id,
			b[0].X, b[0].Y, b[0].Z,
			b[1].X, b[1].Y, b[1].Z,
			b[2].X, b[2].Y, b[2].Z)
	} else {
		_, err = s.h().ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (object_id, frame_id, xx, xy, xz, yx, yy, yz, zx, zy, zz)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(object_id, frame_id) DO UPDATE SET
				xx = excluded.xx, xy = excluded.xy, xz = excluded.xz,
				yx = excluded.yx, yy = excluded.yy, yz = excluded.yz,
				zx = excluded.zx, zy = excluded.zy, zz = excluded.zz
		`, table), id, frame,
			b[0].X, b[0].Y, b[0].Z,
			b[1].X, b[1].Y, b[1].Z,
			b[2].X, b[2].Y, b[2].Z)
	}
	if err != nil {
		return fmt.Errorf("put %s axis: %w", motion, err)
	}
	return nil
}

// GetAxis returns a local axis basis sample. Frame is ignored for
// MotionStatic. Returns ok=false when no row exists.
func (s *Store) GetAxis(ctx context.Context, motion geometry.Motion, id int64, frame int) (geometry.AxisBasis, bool, error) {
	var b geometry.AxisBasis
	table, err := tableFor(geometry.KindAxis, motion)
	if err != nil {
		return b, false, fmt.Errorf("get axis: %w", err)
	}
	var row *sql.Row
	if motion == geometry.MotionStatic {
		row = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT xx, xy, xz, yx, yy, yz, zx, zy, zz FROM %s WHERE object_id = ?
		`, table), id)
	} else {
		row = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT xx, xy, xz, yx, yy, yz, zx, zy, zz FROM %s WHERE object_id = ? AND frame_id = ?
		`, table), id, frame)
	}
	err = row.Scan(
		&b[0].X, &b[0].Y, &b[0].Z,
		&b[1].X, &b[1].Y, &b[1].Z,
		&b[2].X, &b[2].Y, &b[2].Z)
	if errors.Is(err, sql.ErrNoRows) {
		return geometry.AxisBasis{}, false, nil
	}
	if err != nil {
		return geometry.AxisBasis{}, false, fmt.Errorf("get %s axis: %w", motion, err)
	}
	return b, true, nil
}

// Exists reports whether a payload is present for the object at the given
// kind, motion, and frame. Frame is ignored for MotionStatic.
func (s *Store) Exists(ctx context.Context, id int64, motion geometry.Motion, kind geometry.Kind, frame int) (bool, error) {
	table, err := tableFor(kind, motion)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	var n int
	if motion == geometry.MotionStatic {
		err = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s WHERE object_id = ?
		`, table), id).Scan(&n)
	} else {
		err = s.h().QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s WHERE object_id = ? AND frame_id = ?
		`, table), id, frame).Scan(&n)
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return n > 0, nil
}

// ListExportedFrames returns the frame numbers already cached for the
// object at the given motion and kind, in ascending order. Static motion
// has no frames and returns an empty slice.
func (s *Store) ListExportedFrames(ctx context.Context, id int64, motion geometry.Motion, kind geometry.Kind) ([]int, error) {
	if motion == geometry.MotionStatic {
		return []int{}, nil
	}
	table, err := tableFor(kind, motion)
	if err != nil {
		return nil, fmt.Errorf("list exported frames: %w", err)
	}
	rows, err := s.h().QueryContext(ctx, fmt.Sprintf(`
		SELECT frame_id FROM %s WHERE object_id = ? ORDER BY frame_id ASC
	`, table), id)
	if err != nil {
		return nil, fmt.Errorf("list exported frames %s: %w", table, err)
	}
	defer rows.Close()

	frames := []int{}
	for rows.Next() {
		var f int
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("list exported frames %s: scan: %w", table, err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exported frames %s: iterate: %w", table, err)
	}
	return frames, nil
}

// CountRows returns the row count of one kind x motion table.
// Used by tests to verify cascade completeness.
func (s *Store) CountRows(ctx context.Context, kind geometry.Kind, motion geometry.Motion) (int, error) {
	table, err := tableFor(kind, motion)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	var n int
	if err := s.h().QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	return n, nil
}

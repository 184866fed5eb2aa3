package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bakeflow/internal/geometry"
)

// ObjectRecord is the object table row as stored.
type ObjectRecord struct {
	ID     int64
	Name   string
	Slug   string
	Motion geometry.Motion
	Kinds  geometry.KindSet
}

// AddObject inserts an object row and returns its id.
// Idempotent on slug: inserting an existing slug is a no-op and the
// existing id is returned, so re-running an export never duplicates rows.
func (s *Store) AddObject(ctx context.Context, name, slug string, motion geometry.Motion, kinds geometry.KindSet) (int64, error) {
	res, err := s.h().ExecContext(ctx, `
		INSERT INTO object
		(name, slug, motion_type, export_mesh, export_vertices, export_centroid, export_axis, export_curve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING
	`,
		name,
		slug,
		motion.String(),
		boolInt(kinds[geometry.KindMesh]),
		boolInt(kinds[geometry.KindVertices]),
		boolInt(kinds[geometry.KindCentroid]),
		boolInt(kinds[geometry.KindAxis]),
		boolInt(kinds[geometry.KindCurve]),
	)
	if err != nil {
		return 0, fmt.Errorf("add object: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("add object: rows affected: %w", err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("add object: last insert id: %w", err)
		}
		return id, nil
	}

	// Conflict - row already exists, fetch the existing id.
	id, ok, err := s.ObjectID(ctx, slug)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("add object: slug %q conflicted but not found", slug)
	}
	return id, nil
}

// ObjectID resolves a slug to its object id.
// Returns ok=false when no object with that slug exists.
func (s *Store) ObjectID(ctx context.Context, slug string) (id int64, ok bool, err error) {
	err = s.h().QueryRowContext(ctx, `
		SELECT object_id FROM object WHERE slug = ?
	`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("object id for %q: %w", slug, err)
	}
	return id, true, nil
}

// GetObject returns the full object row for a slug.
// Returns ok=false when no object with that slug exists.
func (s *Store) GetObject(ctx context.Context, slug string) (ObjectRecord, bool, error) {
	var (
		rec    ObjectRecord
		motion string
		mesh, vertices, centroid, axis, curve int
	)
	err := s.h().QueryRowContext(ctx, `
		SELECT object_id, name, slug, motion_type,
		       export_mesh, export_vertices, export_centroid, export_axis, export_curve
		FROM object WHERE slug = ?
	`, slug).Scan(&rec.ID, &rec.Name, &rec.Slug, &motion, &mesh, &vertices, &centroid, &axis, &curve)
	if errors.Is(err, sql.ErrNoRows) {
		return ObjectRecord{}, false, nil
	}
	if err != nil {
		return ObjectRecord{}, false, fmt.Errorf("get object %q: %w", slug, err)
	}

	rec.Motion = motionFromString(motion)
	rec.Kinds = make(geometry.KindSet, 5)
	if mesh != 0 {
		rec.Kinds[geometry.KindMesh] = true
	}
	if vertices != 0 {
		rec.Kinds[geometry.KindVertices] = true
	}
	if centroid != 0 {
		rec.Kinds[geometry.KindCentroid] = true
	}
	if axis != 0 {
		rec.Kinds[geometry.KindAxis] = true
	}
	if curve != 0 {
		rec.Kinds[geometry.KindCurve] = true
	}
	return rec, true, nil
}

// ListObjects returns every object row ordered by name then slug for
// deterministic output.
func (s *Store) ListObjects(ctx context.Context) ([]ObjectRecord, error) {
	rows, err := s.h().QueryContext(ctx, `
		SELECT slug FROM object ORDER BY name ASC, slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("list objects: scan: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list objects: iterate: %w", err)
	}

	records := make([]ObjectRecord, 0, len(slugs))
	for _, slug := range slugs {
		rec, ok, err := s.GetObject(ctx, slug)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// DeleteObject removes an object row by slug. Dependent geometry rows in
// every kind x motion table are removed by the ON DELETE CASCADE foreign
// keys. Deleting an unknown slug is a no-op.
func (s *Store) DeleteObject(ctx context.Context, slug string) error {
	_, err := s.h().ExecContext(ctx, `
		DELETE FROM object WHERE slug = ?
	`, slug)
	if err != nil {
		return fmt.Errorf("delete object %q: %w", slug, err)
	}
	return nil
}

// CountObjects returns the number of object rows. Used by callers and
// tests to verify AddObject idempotency.
func (s *Store) CountObjects(ctx context.Context) (int, error) {
	var n int
	if err := s.h().QueryRowContext(ctx, `SELECT COUNT(*) FROM object`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func motionFromString(s string) geometry.Motion {
	switch s {
	case "static":
		return geometry.MotionStatic
	case "keyframed":
		return geometry.MotionKeyframed
	case "animated":
		return geometry.MotionAnimated
	default:
		return 0
	}
}

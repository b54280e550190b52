package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/modelry/modelry/errors"
)

// CanvasRelationship is a directed edge between two element occurrences in
// the same canvas, carrying a relationship-kind label.
type CanvasRelationship struct {
	ID               int64     `json:"id"`
	CanvasID         int64     `json:"canvas_id"`
	SourceInstanceID int64     `json:"source_instance_id"`
	TargetInstanceID int64     `json:"target_instance_id"`
	RelationshipType string    `json:"relationship_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateRelationship inserts a new relationship occurrence. Both endpoints
// must belong to the relationship's canvas; violating rows are rejected here
// rather than left to corrupt traversal later.
func (s *Store) CreateRelationship(ctx context.Context, r *CanvasRelationship) (*CanvasRelationship, error) {
	var sameCanvas int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM canvas_element_instances src, canvas_element_instances tgt
		WHERE src.id = ? AND tgt.id = ? AND src.canvas_id = ? AND tgt.canvas_id = ?`,
		r.SourceInstanceID, r.TargetInstanceID, r.CanvasID, r.CanvasID,
	).Scan(&sameCanvas)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate relationship endpoints")
	}
	if sameCanvas == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest,
			"relationship endpoints %d -> %d must both belong to canvas %d",
			r.SourceInstanceID, r.TargetInstanceID, r.CanvasID)
	}

	now := time.Now()
	r.CreatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_relationships (canvas_id, source_instance_id, target_instance_id, relationship_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.CanvasID, r.SourceInstanceID, r.TargetInstanceID, r.RelationshipType, formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create relationship")
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read relationship id")
	}
	return r, nil
}

// GetRelationship retrieves a relationship occurrence by id.
func (s *Store) GetRelationship(ctx context.Context, id int64) (*CanvasRelationship, error) {
	var r CanvasRelationship
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, source_instance_id, target_instance_id, COALESCE(relationship_type, ''), created_at
		FROM canvas_relationships WHERE id = ?`, id).Scan(
		&r.ID, &r.CanvasID, &r.SourceInstanceID, &r.TargetInstanceID, &r.RelationshipType, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("relationship %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get relationship %d", id)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// ListRelationships returns all relationship occurrences on a canvas.
func (s *Store) ListRelationships(ctx context.Context, canvasID int64) ([]*CanvasRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canvas_id, source_instance_id, target_instance_id, COALESCE(relationship_type, ''), created_at
		FROM canvas_relationships WHERE canvas_id = ? ORDER BY id ASC`, canvasID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list relationships for canvas %d", canvasID)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// DeleteRelationship removes a relationship occurrence.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvas_relationships WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete relationship %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("relationship %d not found", id)
	}
	return nil
}

// IncidentEdges returns the edges touching an occurrence in the requested
// direction(s), restricted to the occurrence's canvas and, if kinds is
// non-empty, to the given relationship kinds. Direction both returns the
// union without duplicating self-loops.
func (s *Store) IncidentEdges(ctx context.Context, instanceID int64, direction Direction, kinds []string) ([]*CanvasRelationship, error) {
	var sb strings.Builder
	args := []any{}

	sb.WriteString(`
		SELECT DISTINCT id, canvas_id, source_instance_id, target_instance_id, COALESCE(relationship_type, ''), created_at
		FROM canvas_relationships WHERE `)

	switch direction {
	case DirectionOutgoing:
		sb.WriteString(`source_instance_id = ?`)
		args = append(args, instanceID)
	case DirectionIncoming:
		sb.WriteString(`target_instance_id = ?`)
		args = append(args, instanceID)
	default:
		sb.WriteString(`(source_instance_id = ? OR target_instance_id = ?)`)
		args = append(args, instanceID, instanceID)
	}

	if len(kinds) > 0 {
		lowered := make([]any, 0, len(kinds))
		for _, k := range kinds {
			lowered = append(lowered, strings.ToLower(k))
		}
		sb.WriteString(` AND LOWER(COALESCE(relationship_type, '')) IN (` + placeholders(len(kinds)) + `)`)
		args = append(args, lowered...)
	}

	sb.WriteString(` ORDER BY id ASC`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query incident edges of %d", instanceID)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]*CanvasRelationship, error) {
	var relationships []*CanvasRelationship
	for rows.Next() {
		var r CanvasRelationship
		var createdAt string
		if err := rows.Scan(
			&r.ID, &r.CanvasID, &r.SourceInstanceID, &r.TargetInstanceID, &r.RelationshipType, &createdAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan relationship")
		}
		r.CreatedAt = parseTime(createdAt)
		relationships = append(relationships, &r)
	}
	return relationships, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/modelry/modelry/errors"
)

// RelationshipTypeRule is a schema-level statement that occurrences of the
// source category may connect to occurrences of the target category with the
// given relationship kind. Self-referential rules (source == target) are
// legal and represent "X can connect to X".
type RelationshipTypeRule struct {
	ID               int64     `json:"id"`
	SourceTypeID     int64     `json:"source_type_id"`
	TargetTypeID     int64     `json:"target_type_id"`
	RelationshipType string    `json:"relationship_type,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateRelationshipTypeRule inserts a new relationship type rule.
func (s *Store) CreateRelationshipTypeRule(ctx context.Context, r *RelationshipTypeRule) (*RelationshipTypeRule, error) {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO relationship_type_rules (source_type_id, target_type_id, relationship_type, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SourceTypeID, r.TargetTypeID, r.RelationshipType, r.Description,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create relationship type rule")
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rule id")
	}
	return r, nil
}

// GetRelationshipTypeRule retrieves a relationship type rule by id.
func (s *Store) GetRelationshipTypeRule(ctx context.Context, id int64) (*RelationshipTypeRule, error) {
	var r RelationshipTypeRule
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_type_id, target_type_id, COALESCE(relationship_type, ''), COALESCE(description, ''), created_at, updated_at
		FROM relationship_type_rules WHERE id = ?`, id).Scan(
		&r.ID, &r.SourceTypeID, &r.TargetTypeID, &r.RelationshipType, &r.Description,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("relationship type rule %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get relationship type rule %d", id)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// ListRelationshipTypeRules returns all relationship type rules.
func (s *Store) ListRelationshipTypeRules(ctx context.Context) ([]*RelationshipTypeRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type_id, target_type_id, COALESCE(relationship_type, ''), COALESCE(description, ''), created_at, updated_at
		FROM relationship_type_rules ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list relationship type rules")
	}
	defer rows.Close()

	var rules []*RelationshipTypeRule
	for rows.Next() {
		var r RelationshipTypeRule
		var createdAt, updatedAt string
		if err := rows.Scan(
			&r.ID, &r.SourceTypeID, &r.TargetTypeID, &r.RelationshipType, &r.Description,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan relationship type rule")
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// DeleteRelationshipTypeRule removes a relationship type rule.
func (s *Store) DeleteRelationshipTypeRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relationship_type_rules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete relationship type rule %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("relationship type rule %d not found", id)
	}
	return nil
}

// CompatibleTypeIDs resolves which element type ids are legal opposite
// endpoints for an occurrence of subjectCategory, in the given direction,
// restricted to relatedCategory and (optionally) a relationship kind.
//
// Outgoing consults rules where the subject category is the source and
// returns target type ids; incoming is the mirror. An empty result is a
// legitimate outcome (no rule declared), never an error.
func (s *Store) CompatibleTypeIDs(ctx context.Context, subjectCategory, relatedCategory, kind string, direction Direction) ([]int64, error) {
	var query string
	switch direction {
	case DirectionIncoming:
		query = `
			SELECT DISTINCT r.source_type_id
			FROM relationship_type_rules r
			JOIN element_types src ON r.source_type_id = src.id
			JOIN element_types tgt ON r.target_type_id = tgt.id
			WHERE LOWER(tgt.element) = LOWER(?) AND LOWER(src.element) = LOWER(?)`
	default:
		query = `
			SELECT DISTINCT r.target_type_id
			FROM relationship_type_rules r
			JOIN element_types src ON r.source_type_id = src.id
			JOIN element_types tgt ON r.target_type_id = tgt.id
			WHERE LOWER(src.element) = LOWER(?) AND LOWER(tgt.element) = LOWER(?)`
	}

	args := []any{subjectCategory, relatedCategory}
	if kind != "" {
		query += ` AND LOWER(r.relationship_type) = LOWER(?)`
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve compatible types for %q -> %q", subjectCategory, relatedCategory)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan compatible type id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

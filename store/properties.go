package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/modelry/modelry/errors"
)

// PropertyInstance is a small tag object attached to an element occurrence:
// a RAG label, an icon, and a stacked position beneath (or centered under)
// the node. Source discriminates user-authored annotations from ones the
// rules engine generated; generated ones carry the originating rule id.
type PropertyInstance struct {
	ID           int64            `json:"id"`
	InstanceID   int64            `json:"instance_id"`
	PropertyName string           `json:"propertyname"`
	RAGType      string           `json:"ragtype,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
	X            float64          `json:"x"`
	Y            float64          `json:"y"`
	Source       AnnotationSource `json:"source"`
	RuleID       *int64           `json:"rule_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

const propertyColumns = `id, instance_id, propertyname, COALESCE(ragtype, ''), COALESCE(image_url, ''),
	x, y, source, rule_id, created_at`

func scanProperty(row interface{ Scan(...any) error }) (*PropertyInstance, error) {
	var p PropertyInstance
	var createdAt string
	var ruleID sql.NullInt64
	err := row.Scan(
		&p.ID, &p.InstanceID, &p.PropertyName, &p.RAGType, &p.ImageURL,
		&p.X, &p.Y, &p.Source, &ruleID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if ruleID.Valid {
		p.RuleID = &ruleID.Int64
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// CreateProperty inserts a property instance (user-authored or generated).
func (s *Store) CreateProperty(ctx context.Context, p *PropertyInstance) (*PropertyInstance, error) {
	if p.Source == "" {
		p.Source = SourceUser
	}
	now := time.Now()
	p.CreatedAt = now

	var ruleID any
	if p.RuleID != nil {
		ruleID = *p.RuleID
	}

	res, err := s.execRetry(ctx, `
		INSERT INTO canvas_property_instances (instance_id, propertyname, ragtype, image_url, x, y, source, rule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.InstanceID, p.PropertyName, p.RAGType, p.ImageURL, p.X, p.Y, p.Source, ruleID, formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create property %q on instance %d", p.PropertyName, p.InstanceID)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read property id")
	}
	return p, nil
}

// ListProperties returns all property instances attached to an occurrence.
func (s *Store) ListProperties(ctx context.Context, instanceID int64) ([]*PropertyInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+propertyColumns+` FROM canvas_property_instances WHERE instance_id = ? ORDER BY id ASC`,
		instanceID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list properties of instance %d", instanceID)
	}
	defer rows.Close()

	var props []*PropertyInstance
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan property")
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// DeleteProperty removes a property instance.
func (s *Store) DeleteProperty(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvas_property_instances WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete property %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("property %d not found", id)
	}
	return nil
}

// CountProperties returns how many annotations an occurrence already has,
// used to stack new annotations beneath existing ones.
func (s *Store) CountProperties(ctx context.Context, instanceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM canvas_property_instances WHERE instance_id = ?`, instanceID).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count properties of instance %d", instanceID)
	}
	return count, nil
}

// HasRuleAnnotation reports whether a rules-engine annotation for the given
// rule already exists on the occurrence (idempotent annotation writes).
func (s *Store) HasRuleAnnotation(ctx context.Context, ruleID, instanceID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM canvas_property_instances
			WHERE rule_id = ? AND instance_id = ? AND source = ?
		)`, ruleID, instanceID, SourceRulesEngine).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check annotation for rule %d on instance %d", ruleID, instanceID)
	}
	return exists, nil
}

// DeleteRuleAnnotations removes all rules-engine annotations generated by
// one rule. User-authored properties are never touched.
func (s *Store) DeleteRuleAnnotations(ctx context.Context, ruleID int64) error {
	_, err := s.execRetry(ctx,
		`DELETE FROM canvas_property_instances WHERE rule_id = ? AND source = ?`,
		ruleID, SourceRulesEngine)
	if err != nil {
		return errors.Wrapf(err, "failed to delete annotations of rule %d", ruleID)
	}
	return nil
}

// SweepOrphanedAnnotations deletes rules-engine annotations whose rule no
// longer exists or is inactive. Annotations of deleted rules or instances
// cascade at the schema level; inactive rules need this sweep.
func (s *Store) SweepOrphanedAnnotations(ctx context.Context) (int64, error) {
	res, err := s.execRetry(ctx, `
		DELETE FROM canvas_property_instances
		WHERE source = ?
		  AND (rule_id IS NULL
		       OR rule_id NOT IN (SELECT id FROM design_rules WHERE active = 1))`,
		SourceRulesEngine)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep orphaned annotations")
	}
	swept, _ := res.RowsAffected()
	return swept, nil
}

// RemoveDuplicateProperties deletes duplicate property instances, keeping the
// oldest of each (instance, name, ragtype, image_url, source) group. Returns
// the number of rows removed.
func (s *Store) RemoveDuplicateProperties(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM canvas_property_instances
		WHERE id NOT IN (
			SELECT MIN(id) FROM canvas_property_instances
			GROUP BY instance_id, propertyname, COALESCE(ragtype, ''), COALESCE(image_url, ''), source
		)`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to remove duplicate properties")
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

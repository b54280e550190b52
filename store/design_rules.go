package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/modelry/modelry/errors"
)

// DesignRule is a named, composable boolean condition evaluated against
// canonical occurrences of its subject category. Conditions holds the raw
// JSON condition list; the rules package parse-validates it at save time and
// again defensively before each evaluation.
type DesignRule struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Active           bool      `json:"active"`
	SubjectElement   string    `json:"subject_element"`
	TargetElement    string    `json:"target_element,omitempty"`
	RelationshipType string    `json:"relationship_type,omitempty"`
	Conditions       string    `json:"conditions"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Violation records that a design rule's condition matched for an
// occurrence. Violations are regenerated wholesale on every evaluation of
// their rule, never patched incrementally.
type Violation struct {
	ID             int64     `json:"id"`
	RuleID         int64     `json:"rule_id"`
	InstanceID     int64     `json:"instance_id"`
	Severity       string    `json:"severity"`
	CurrentValue   int       `json:"current_value"`
	ThresholdValue int       `json:"threshold_value"`
	CreatedAt      time.Time `json:"created_at"`
}

const designRuleColumns = `id, name, COALESCE(description, ''), active, subject_element,
	COALESCE(target_element, ''), COALESCE(relationship_type, ''), conditions, created_at, updated_at`

func scanDesignRule(row interface{ Scan(...any) error }) (*DesignRule, error) {
	var r DesignRule
	var createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Active, &r.SubjectElement,
		&r.TargetElement, &r.RelationshipType, &r.Conditions,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// CreateDesignRule inserts a new design rule.
func (s *Store) CreateDesignRule(ctx context.Context, r *DesignRule) (*DesignRule, error) {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Conditions == "" {
		r.Conditions = "[]"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO design_rules (name, description, active, subject_element, target_element, relationship_type, conditions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Description, r.Active, r.SubjectElement, r.TargetElement, r.RelationshipType, r.Conditions,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create design rule %q", r.Name)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read design rule id")
	}
	return r, nil
}

// GetDesignRule retrieves a design rule by id.
func (s *Store) GetDesignRule(ctx context.Context, id int64) (*DesignRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+designRuleColumns+` FROM design_rules WHERE id = ?`, id)
	r, err := scanDesignRule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("design rule %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get design rule %d", id)
	}
	return r, nil
}

// ListDesignRules returns all design rules.
func (s *Store) ListDesignRules(ctx context.Context) ([]*DesignRule, error) {
	return s.listDesignRules(ctx, `SELECT `+designRuleColumns+` FROM design_rules ORDER BY id ASC`)
}

// ListActiveDesignRules returns all active design rules.
func (s *Store) ListActiveDesignRules(ctx context.Context) ([]*DesignRule, error) {
	return s.listDesignRules(ctx, `SELECT `+designRuleColumns+` FROM design_rules WHERE active = 1 ORDER BY id ASC`)
}

func (s *Store) listDesignRules(ctx context.Context, query string) ([]*DesignRule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list design rules")
	}
	defer rows.Close()

	var rules []*DesignRule
	for rows.Next() {
		r, err := scanDesignRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan design rule")
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateDesignRule updates all mutable fields of a design rule.
func (s *Store) UpdateDesignRule(ctx context.Context, r *DesignRule) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE design_rules
		SET name = ?, description = ?, active = ?, subject_element = ?, target_element = ?, relationship_type = ?, conditions = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Description, r.Active, r.SubjectElement, r.TargetElement, r.RelationshipType, r.Conditions,
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update design rule %d", r.ID)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("design rule %d not found", r.ID)
	}
	return nil
}

// DeleteDesignRule removes a design rule; its violations and generated
// annotations cascade.
func (s *Store) DeleteDesignRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM design_rules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete design rule %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("design rule %d not found", id)
	}
	return nil
}

// CreateViolation inserts a violation record.
func (s *Store) CreateViolation(ctx context.Context, v *Violation) (*Violation, error) {
	now := time.Now()
	v.CreatedAt = now

	res, err := s.execRetry(ctx, `
		INSERT INTO design_rule_violations (rule_id, instance_id, severity, current_value, threshold_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.RuleID, v.InstanceID, v.Severity, v.CurrentValue, v.ThresholdValue, formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create violation for rule %d", v.RuleID)
	}
	v.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read violation id")
	}
	return v, nil
}

// DeleteViolationsForRule removes every violation of one rule.
func (s *Store) DeleteViolationsForRule(ctx context.Context, ruleID int64) error {
	_, err := s.execRetry(ctx, `DELETE FROM design_rule_violations WHERE rule_id = ?`, ruleID)
	if err != nil {
		return errors.Wrapf(err, "failed to delete violations of rule %d", ruleID)
	}
	return nil
}

// ListViolations returns violations, optionally filtered to one rule
// (ruleID 0 means all rules).
func (s *Store) ListViolations(ctx context.Context, ruleID int64) ([]*Violation, error) {
	query := `SELECT id, rule_id, instance_id, severity, current_value, threshold_value, created_at
		FROM design_rule_violations`
	args := []any{}
	if ruleID != 0 {
		query += ` WHERE rule_id = ?`
		args = append(args, ruleID)
	}
	query += ` ORDER BY rule_id ASC, instance_id ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list violations")
	}
	defer rows.Close()

	var violations []*Violation
	for rows.Next() {
		var v Violation
		var createdAt string
		if err := rows.Scan(
			&v.ID, &v.RuleID, &v.InstanceID, &v.Severity, &v.CurrentValue, &v.ThresholdValue, &createdAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan violation")
		}
		v.CreatedAt = parseTime(createdAt)
		violations = append(violations, &v)
	}
	return violations, rows.Err()
}

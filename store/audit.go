package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/modelry/modelry/errors"
)

// AuditEntry records a CRUD action or an engine pass against the repository.
type AuditEntry struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit writes an audit entry. Audit failures are logged, not propagated:
// a full audit table must never block repository operations.
func (s *Store) Audit(ctx context.Context, entity string, entityID int64, action, detail string) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity, entity_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, entity, entityID, action, detail, formatTime(time.Now()),
	)
	if err != nil {
		s.logger.Warnw("Audit write failed",
			"entity", entity,
			"entity_id", entityID,
			"action", action,
			"error", err,
		)
	}
}

// ListAuditEntries returns the most recent audit entries, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, COALESCE(entity_id, 0), action, COALESCE(detail, ''), created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats reports per-table row counts for diagnostics.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"element_types",
		"relationship_type_rules",
		"canvas_models",
		"canvas_element_instances",
		"canvas_relationships",
		"canvas_property_instances",
		"design_rules",
		"design_rule_violations",
		"audit_log",
	}

	stats := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
		stats[table] = count
	}
	return stats, nil
}

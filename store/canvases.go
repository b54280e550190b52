package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/modelry/modelry/errors"
)

// CanvasModel is a named container of element occurrences and relationship
// occurrences. Canvases whose name starts with DerivedCanvasPrefix are
// derived impact diagrams.
type CanvasModel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Derived reports whether the canvas is a derived/impact artifact.
func (c *CanvasModel) Derived() bool {
	return strings.HasPrefix(c.Name, DerivedCanvasPrefix)
}

// CreateCanvas inserts a new canvas model.
func (s *Store) CreateCanvas(ctx context.Context, c *CanvasModel) (*CanvasModel, error) {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_models (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		c.Name, c.Description, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create canvas %q", c.Name)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read canvas id")
	}
	return c, nil
}

// GetCanvas retrieves a canvas by id.
func (s *Store) GetCanvas(ctx context.Context, id int64) (*CanvasModel, error) {
	var c CanvasModel
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM canvas_models WHERE id = ?`, id).Scan(
		&c.ID, &c.Name, &c.Description, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("canvas %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get canvas %d", id)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ListCanvases returns all canvases ordered by id.
func (s *Store) ListCanvases(ctx context.Context) ([]*CanvasModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM canvas_models ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list canvases")
	}
	defer rows.Close()

	var canvases []*CanvasModel
	for rows.Next() {
		var c CanvasModel
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan canvas")
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		canvases = append(canvases, &c)
	}
	return canvases, rows.Err()
}

// UpdateCanvas updates a canvas's name and description.
func (s *Store) UpdateCanvas(ctx context.Context, c *CanvasModel) error {
	c.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE canvas_models SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update canvas %d", c.ID)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("canvas %d not found", c.ID)
	}
	return nil
}

// DeleteCanvas removes a canvas; its occurrences, relationships and property
// instances cascade.
func (s *Store) DeleteCanvas(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvas_models WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete canvas %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("canvas %d not found", id)
	}
	return nil
}

// CountCanvases returns the repository-wide canvas count.
func (s *Store) CountCanvases(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_models`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count canvases")
	}
	return count, nil
}

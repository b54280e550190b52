package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/modelry/modelry/errors"
)

// ElementType is a category/type definition in the repository schema
// (e.g. "Process", "Asset"). Element is the category label used for all
// type-level matching, case-insensitively. Facet is an optional grouping
// label; Enterprise an optional scope label.
type ElementType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enterprise  string    `json:"enterprise,omitempty"`
	Facet       string    `json:"facet,omitempty"`
	Element     string    `json:"element"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const elementTypeColumns = `id, name, COALESCE(description, ''), COALESCE(enterprise, ''),
	COALESCE(facet, ''), element, COALESCE(image_url, ''), created_at, updated_at`

func scanElementType(row interface{ Scan(...any) error }) (*ElementType, error) {
	var et ElementType
	var createdAt, updatedAt string
	err := row.Scan(
		&et.ID, &et.Name, &et.Description, &et.Enterprise,
		&et.Facet, &et.Element, &et.ImageURL,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	et.CreatedAt = parseTime(createdAt)
	et.UpdatedAt = parseTime(updatedAt)
	return &et, nil
}

// CreateElementType inserts a new element type and returns it with its id.
func (s *Store) CreateElementType(ctx context.Context, et *ElementType) (*ElementType, error) {
	now := time.Now()
	et.CreatedAt = now
	et.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO element_types (name, description, enterprise, facet, element, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		et.Name, et.Description, et.Enterprise, et.Facet, et.Element, et.ImageURL,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create element type %q", et.Name)
	}
	et.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read element type id")
	}
	return et, nil
}

// GetElementType retrieves an element type by id.
func (s *Store) GetElementType(ctx context.Context, id int64) (*ElementType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+elementTypeColumns+` FROM element_types WHERE id = ?`, id)
	et, err := scanElementType(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("element type %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get element type %d", id)
	}
	return et, nil
}

// ListElementTypes returns all element types ordered by id.
func (s *Store) ListElementTypes(ctx context.Context) ([]*ElementType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+elementTypeColumns+` FROM element_types ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list element types")
	}
	defer rows.Close()

	var types []*ElementType
	for rows.Next() {
		et, err := scanElementType(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan element type")
		}
		types = append(types, et)
	}
	return types, rows.Err()
}

// TypeIDsByCategory returns ids of all element types whose category label
// matches, case-insensitively. An empty result is not an error.
func (s *Store) TypeIDsByCategory(ctx context.Context, category string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM element_types WHERE LOWER(element) = LOWER(?)`, category)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve category %q", category)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan type id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateElementType updates all mutable fields of an element type.
func (s *Store) UpdateElementType(ctx context.Context, et *ElementType) error {
	et.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE element_types
		SET name = ?, description = ?, enterprise = ?, facet = ?, element = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		et.Name, et.Description, et.Enterprise, et.Facet, et.Element, et.ImageURL,
		formatTime(et.UpdatedAt), et.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update element type %d", et.ID)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("element type %d not found", et.ID)
	}
	return nil
}

// DeleteElementType removes an element type. Dependent relationship rules and
// occurrences cascade at the schema level.
func (s *Store) DeleteElementType(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM element_types WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete element type %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("element type %d not found", id)
	}
	return nil
}

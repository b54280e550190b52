package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/modelry/modelry/errors"
)

// ElementInstance is a placed occurrence of an element type inside one
// canvas. Two instances in different non-derived canvases sharing element
// type and case-insensitive name are the same canonical entity.
type ElementInstance struct {
	ID            int64     `json:"id"`
	CanvasID      int64     `json:"canvas_id"`
	ElementTypeID int64     `json:"element_type_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	Width         float64   `json:"width"`
	Height        float64   `json:"height"`
	ZOrder        int       `json:"z_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InstanceDetail joins an instance with its element type's category and
// scope labels, as needed by traversal summaries and materialization.
type InstanceDetail struct {
	ElementInstance
	Element    string `json:"element"`
	Enterprise string `json:"enterprise,omitempty"`
	Facet      string `json:"facet,omitempty"`
}

const instanceColumns = `id, canvas_id, element_type_id, name, COALESCE(description, ''),
	x, y, width, height, z_order, created_at, updated_at`

func scanInstance(row interface{ Scan(...any) error }) (*ElementInstance, error) {
	var in ElementInstance
	var createdAt, updatedAt string
	err := row.Scan(
		&in.ID, &in.CanvasID, &in.ElementTypeID, &in.Name, &in.Description,
		&in.X, &in.Y, &in.Width, &in.Height, &in.ZOrder,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.CreatedAt = parseTime(createdAt)
	in.UpdatedAt = parseTime(updatedAt)
	return &in, nil
}

// CreateInstance inserts a new element occurrence.
func (s *Store) CreateInstance(ctx context.Context, in *ElementInstance) (*ElementInstance, error) {
	now := time.Now()
	in.CreatedAt = now
	in.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_element_instances (canvas_id, element_type_id, name, description, x, y, width, height, z_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.CanvasID, in.ElementTypeID, in.Name, in.Description,
		in.X, in.Y, in.Width, in.Height, in.ZOrder,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create instance %q on canvas %d", in.Name, in.CanvasID)
	}
	in.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read instance id")
	}
	return in, nil
}

// GetInstance retrieves an element occurrence by id.
func (s *Store) GetInstance(ctx context.Context, id int64) (*ElementInstance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM canvas_element_instances WHERE id = ?`, id)
	in, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("instance %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get instance %d", id)
	}
	return in, nil
}

// GetInstanceDetail retrieves an occurrence joined with its type labels.
func (s *Store) GetInstanceDetail(ctx context.Context, id int64) (*InstanceDetail, error) {
	var d InstanceDetail
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.canvas_id, i.element_type_id, i.name, COALESCE(i.description, ''),
		       i.x, i.y, i.width, i.height, i.z_order, i.created_at, i.updated_at,
		       t.element, COALESCE(t.enterprise, ''), COALESCE(t.facet, '')
		FROM canvas_element_instances i
		JOIN element_types t ON i.element_type_id = t.id
		WHERE i.id = ?`, id).Scan(
		&d.ID, &d.CanvasID, &d.ElementTypeID, &d.Name, &d.Description,
		&d.X, &d.Y, &d.Width, &d.Height, &d.ZOrder, &createdAt, &updatedAt,
		&d.Element, &d.Enterprise, &d.Facet,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundf("instance %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get instance detail %d", id)
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// ListInstances returns all occurrences on a canvas ordered by z-order.
func (s *Store) ListInstances(ctx context.Context, canvasID int64) ([]*ElementInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM canvas_element_instances WHERE canvas_id = ? ORDER BY z_order ASC, id ASC`,
		canvasID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list instances for canvas %d", canvasID)
	}
	defer rows.Close()

	var instances []*ElementInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan instance")
		}
		instances = append(instances, in)
	}
	return instances, rows.Err()
}

// UpdateInstance updates an occurrence's mutable fields.
func (s *Store) UpdateInstance(ctx context.Context, in *ElementInstance) error {
	in.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE canvas_element_instances
		SET name = ?, description = ?, x = ?, y = ?, width = ?, height = ?, z_order = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.Description, in.X, in.Y, in.Width, in.Height, in.ZOrder,
		formatTime(in.UpdatedAt), in.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update instance %d", in.ID)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("instance %d not found", in.ID)
	}
	return nil
}

// DeleteInstance removes an occurrence; its relationships and property
// instances cascade.
func (s *Store) DeleteInstance(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvas_element_instances WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete instance %d", id)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewNotFoundf("instance %d not found", id)
	}
	return nil
}

// CountInstances returns the repository-wide occurrence count.
func (s *Store) CountInstances(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_element_instances`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count instances")
	}
	return count, nil
}

// CanonicalInstancesByCategory enumerates canonical subject occurrences for
// a category: one occurrence per (element type, case-insensitive name) pair,
// drawn only from non-derived canvases, deterministically the one with the
// lowest id.
func (s *Store) CanonicalInstancesByCategory(ctx context.Context, category string) ([]*ElementInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.canvas_id, i.element_type_id, i.name, COALESCE(i.description, ''),
		       i.x, i.y, i.width, i.height, i.z_order, i.created_at, i.updated_at
		FROM canvas_element_instances i
		JOIN element_types t ON i.element_type_id = t.id
		JOIN canvas_models c ON i.canvas_id = c.id
		WHERE LOWER(t.element) = LOWER(?)
		  AND c.name NOT LIKE ? || '%'
		  AND i.id = (
			SELECT MIN(i2.id)
			FROM canvas_element_instances i2
			JOIN canvas_models c2 ON i2.canvas_id = c2.id
			WHERE i2.element_type_id = i.element_type_id
			  AND LOWER(i2.name) = LOWER(i.name)
			  AND c2.name NOT LIKE ? || '%'
		  )
		ORDER BY i.id ASC`,
		category, DerivedCanvasPrefix, DerivedCanvasPrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to enumerate canonical instances for %q", category)
	}
	defer rows.Close()

	var instances []*ElementInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan canonical instance")
		}
		instances = append(instances, in)
	}
	return instances, rows.Err()
}

// RelatedInstances returns the occurrences connected to the subject
// occurrence through edges in the requested direction, filtered by
// relationship kind (if non-empty) and by the opposite endpoint's element
// type (if typeIDs is non-empty).
func (s *Store) RelatedInstances(ctx context.Context, instanceID int64, direction Direction, kind string, typeIDs []int64) ([]*ElementInstance, error) {
	const aliasedColumns = `i.id, i.canvas_id, i.element_type_id, i.name, COALESCE(i.description, ''),
		i.x, i.y, i.width, i.height, i.z_order, i.created_at, i.updated_at`

	var sb strings.Builder
	args := []any{}

	switch direction {
	case DirectionIncoming:
		sb.WriteString(`
			SELECT ` + aliasedColumns + `
			FROM canvas_relationships r
			JOIN canvas_element_instances i ON r.source_instance_id = i.id
			WHERE r.target_instance_id = ?`)
	default:
		sb.WriteString(`
			SELECT ` + aliasedColumns + `
			FROM canvas_relationships r
			JOIN canvas_element_instances i ON r.target_instance_id = i.id
			WHERE r.source_instance_id = ?`)
	}
	args = append(args, instanceID)

	if kind != "" {
		sb.WriteString(` AND LOWER(r.relationship_type) = LOWER(?)`)
		args = append(args, kind)
	}

	if len(typeIDs) > 0 {
		sb.WriteString(` AND i.element_type_id IN (` + placeholders(len(typeIDs)) + `)`)
		for _, id := range typeIDs {
			args = append(args, id)
		}
	}

	sb.WriteString(` ORDER BY i.id ASC`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query related instances of %d", instanceID)
	}
	defer rows.Close()

	var instances []*ElementInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan related instance")
		}
		instances = append(instances, in)
	}
	return instances, rows.Err()
}

// DegreeTowardCategory counts edges incident on an occurrence, in the given
// direction, whose opposite endpoint belongs to the given category. Used for
// the reciprocity check of rule conditions.
func (s *Store) DegreeTowardCategory(ctx context.Context, instanceID int64, direction Direction, category, kind string) (int, error) {
	var query string
	switch direction {
	case DirectionIncoming:
		query = `
			SELECT COUNT(*)
			FROM canvas_relationships r
			JOIN canvas_element_instances i ON r.source_instance_id = i.id
			JOIN element_types t ON i.element_type_id = t.id
			WHERE r.target_instance_id = ? AND LOWER(t.element) = LOWER(?)`
	default:
		query = `
			SELECT COUNT(*)
			FROM canvas_relationships r
			JOIN canvas_element_instances i ON r.target_instance_id = i.id
			JOIN element_types t ON i.element_type_id = t.id
			WHERE r.source_instance_id = ? AND LOWER(t.element) = LOWER(?)`
	}

	args := []any{instanceID, category}
	if kind != "" {
		query += ` AND LOWER(r.relationship_type) = LOWER(?)`
		args = append(args, kind)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count degree of %d toward %q", instanceID, category)
	}
	return count, nil
}

// placeholders builds "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

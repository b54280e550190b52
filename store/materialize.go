package store

import (
	"context"
	"time"

	"github.com/modelry/modelry/db"
	"github.com/modelry/modelry/errors"
)

// ImpactNode is a node to be written into a derived impact canvas. The
// traversal id keys the node back to the occurrence it was discovered as so
// edges can be remapped onto the freshly inserted rows.
type ImpactNode struct {
	TraversalID   int64
	ElementTypeID int64
	Name          string
	Description   string
	X             float64
	Y             float64
	Width         float64
	Height        float64
}

// ImpactEdge is an edge between two traversal ids, carrying its kind.
type ImpactEdge struct {
	SourceTraversalID int64
	TargetTraversalID int64
	Kind              string
}

// CreateImpactCanvas writes a derived impact canvas with its nodes and edges
// in one transaction. Both capacity guards are checked inside the
// transaction; a tripped guard fails the whole operation with
// ErrLimitExceeded and performs no partial write. The transaction is retried
// as a whole on lock contention; exhausted retries surface ErrStoreTransient.
func (s *Store) CreateImpactCanvas(ctx context.Context, name, description string, nodes []ImpactNode, edges []ImpactEdge, maxCanvases, maxInstances int) (int64, error) {
	var canvasID int64
	err := db.WithRetry(func() error {
		var txErr error
		canvasID, txErr = s.createImpactCanvas(ctx, name, description, nodes, edges, maxCanvases, maxInstances)
		return txErr
	})
	return canvasID, err
}

func (s *Store) createImpactCanvas(ctx context.Context, name, description string, nodes []ImpactNode, edges []ImpactEdge, maxCanvases, maxInstances int) (int64, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin impact canvas transaction")
	}
	defer tx.Rollback()

	var canvasCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_models`).Scan(&canvasCount); err != nil {
		return 0, errors.Wrap(err, "failed to count canvases")
	}
	if canvasCount >= maxCanvases {
		return 0, errors.WithHint(
			errors.NewLimitExceededf("canvas limit reached: %d/%d", canvasCount, maxCanvases),
			"delete unused canvases and retry")
	}

	var instanceCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_element_instances`).Scan(&instanceCount); err != nil {
		return 0, errors.Wrap(err, "failed to count instances")
	}
	if instanceCount+len(nodes) > maxInstances {
		return 0, errors.WithHint(
			errors.NewLimitExceededf("occurrence limit would be exceeded: %d+%d/%d",
				instanceCount, len(nodes), maxInstances),
			"reduce traversal depth or delete unused canvases and retry")
	}

	now := formatTime(time.Now())

	res, err := tx.ExecContext(ctx, `
		INSERT INTO canvas_models (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		name, description, now, now,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create impact canvas %q", name)
	}
	canvasID, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read impact canvas id")
	}

	// Insert nodes, remembering traversal id -> new instance id.
	idMap := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO canvas_element_instances (canvas_id, element_type_id, name, description, x, y, width, height, z_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			canvasID, n.ElementTypeID, n.Name, n.Description, n.X, n.Y, n.Width, n.Height, now, now,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to insert impact node %q", n.Name)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, errors.Wrap(err, "failed to read impact node id")
		}
		idMap[n.TraversalID] = newID
	}

	for _, e := range edges {
		sourceID, ok := idMap[e.SourceTraversalID]
		if !ok {
			continue // endpoint was not materialized (outside the visited set)
		}
		targetID, ok := idMap[e.TargetTraversalID]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO canvas_relationships (canvas_id, source_instance_id, target_instance_id, relationship_type, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			canvasID, sourceID, targetID, e.Kind, now,
		); err != nil {
			return 0, errors.Wrap(err, "failed to insert impact edge")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit impact canvas")
	}

	return canvasID, nil
}

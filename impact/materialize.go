package impact

import (
	"context"
	"fmt"

	"github.com/modelry/modelry/store"
)

// MaterializeResult describes a freshly created impact canvas.
type MaterializeResult struct {
	CanvasID int64   `json:"canvas_id"`
	Name     string  `json:"name"`
	Summary  Summary `json:"summary"`
}

// MaterializeImpactDiagram traverses from a source occurrence, lays the
// result out radially and writes it to a new derived canvas. The canvas and
// occurrence capacity guards apply; a tripped guard fails the operation
// without partial writes.
func (e *Engine) MaterializeImpactDiagram(ctx context.Context, sourceID, canvasID int64, maxDepth int, direction store.Direction, kinds []string) (*MaterializeResult, error) {
	t, err := e.Traverse(ctx, sourceID, canvasID, maxDepth, direction, kinds)
	if err != nil {
		return nil, err
	}
	e.Layout(t)

	sourceName := ""
	for _, n := range t.Nodes {
		if n.ID == sourceID {
			sourceName = n.Name
			break
		}
	}
	name := fmt.Sprintf("%s %s (depth %d)", store.DerivedCanvasPrefix, sourceName, t.Summary.MaxDepth)
	description := fmt.Sprintf("Impact analysis of %q: %d nodes, %d edges", sourceName, t.Summary.TotalNodes, t.Summary.TotalEdges)

	nodes := make([]store.ImpactNode, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		nodes = append(nodes, store.ImpactNode{
			TraversalID:   n.ID,
			ElementTypeID: n.ElementTypeID,
			Name:          n.Name,
			Description:   n.Description,
			X:             n.X,
			Y:             n.Y,
			Width:         e.cfg.NodeWidth,
			Height:        e.cfg.NodeHeight,
		})
	}
	edges := make([]store.ImpactEdge, 0, len(t.Edges))
	for _, edge := range t.Edges {
		edges = append(edges, store.ImpactEdge{
			SourceTraversalID: edge.SourceID,
			TargetTraversalID: edge.TargetID,
			Kind:              edge.Kind,
		})
	}

	newID, err := e.store.CreateImpactCanvas(ctx, name, description, nodes, edges, e.cfg.MaxCanvases, e.cfg.MaxInstances)
	if err != nil {
		return nil, err
	}

	e.logger.Infow("impact canvas materialized",
		"canvas_id", newID,
		"source_id", sourceID,
		"nodes", t.Summary.TotalNodes,
		"edges", t.Summary.TotalEdges,
	)
	e.store.Audit(ctx, "canvas", newID, "materialize", name)

	return &MaterializeResult{
		CanvasID: newID,
		Name:     name,
		Summary:  t.Summary,
	}, nil
}

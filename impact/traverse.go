package impact

import (
	"context"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/store"
)

// Node is one occurrence reached by a traversal, with its distance from the
// source and the position assigned by layout.
type Node struct {
	ID            int64   `json:"id"`
	ElementTypeID int64   `json:"element_type_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Element       string  `json:"element"`
	Enterprise    string  `json:"enterprise,omitempty"`
	Depth         int     `json:"depth"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
}

// Edge is a deduplicated relationship between two visited occurrences.
type Edge struct {
	SourceID int64  `json:"source_id"`
	TargetID int64  `json:"target_id"`
	Kind     string `json:"kind,omitempty"`
}

// Summary aggregates a traversal for display.
type Summary struct {
	ByType     map[string]int `json:"by_type"`
	ByScope    map[string]int `json:"by_scope"`
	TotalNodes int            `json:"total_nodes"`
	TotalEdges int            `json:"total_edges"`
	MaxDepth   int            `json:"max_depth"`
}

// Traversal is the result of a bounded breadth-first walk.
type Traversal struct {
	SourceID int64         `json:"source_id"`
	Nodes    []*Node       `json:"nodes"`
	Edges    []Edge        `json:"edges"`
	Depth    map[int64]int `json:"-"`
	Summary  Summary       `json:"summary"`
}

type edgeKey struct {
	source, target int64
	kind           string
}

// Traverse walks the graph breadth-first from a source occurrence. canvasID
// of zero means any canvas; otherwise the source must live on that canvas.
// maxDepth bounds distance, the configured visited cap bounds volume, and
// kinds (if non-empty) restricts edges by relationship kind. Edges between
// two visited nodes are always recorded, deduplicated by (source, target,
// kind); only unvisited endpoints are enqueued.
func (e *Engine) Traverse(ctx context.Context, sourceID, canvasID int64, maxDepth int, direction store.Direction, kinds []string) (*Traversal, error) {
	if maxDepth < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "max depth %d is negative", maxDepth)
	}
	if !direction.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown direction %q", direction)
	}
	if maxDepth > e.cfg.MaxDepth {
		maxDepth = e.cfg.MaxDepth
	}

	source, err := e.store.GetInstanceDetail(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if canvasID != 0 && source.CanvasID != canvasID {
		return nil, errors.NewNotFoundf("occurrence %d not found on canvas %d", sourceID, canvasID)
	}

	t := &Traversal{
		SourceID: sourceID,
		Depth:    map[int64]int{sourceID: 0},
	}
	t.addNode(source, 0)

	seen := make(map[edgeKey]bool)
	queue := []int64{sourceID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		depth := t.Depth[id]
		atLimit := depth >= maxDepth

		edges, err := e.store.IncidentEdges(ctx, id, direction, kinds)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			opposite := edge.TargetInstanceID
			if opposite == id {
				opposite = edge.SourceInstanceID
			}

			if _, visited := t.Depth[opposite]; !visited {
				// Nodes on the depth or volume limit still contribute
				// edges back into the visited set, but the walk does
				// not expand past them.
				if atLimit || len(t.Depth) >= e.cfg.MaxVisited {
					continue
				}
				detail, err := e.store.GetInstanceDetail(ctx, opposite)
				if err != nil {
					if errors.IsNotFound(err) {
						continue
					}
					return nil, err
				}
				t.Depth[opposite] = depth + 1
				t.addNode(detail, depth+1)
				queue = append(queue, opposite)
			}

			key := edgeKey{edge.SourceInstanceID, edge.TargetInstanceID, edge.RelationshipType}
			if !seen[key] {
				seen[key] = true
				t.Edges = append(t.Edges, Edge{
					SourceID: edge.SourceInstanceID,
					TargetID: edge.TargetInstanceID,
					Kind:     edge.RelationshipType,
				})
			}
		}
	}

	t.summarize()
	e.logger.Debugw("traversal complete",
		"source_id", sourceID,
		"nodes", t.Summary.TotalNodes,
		"edges", t.Summary.TotalEdges,
		"max_depth", t.Summary.MaxDepth,
	)
	return t, nil
}

func (t *Traversal) addNode(detail *store.InstanceDetail, depth int) {
	t.Nodes = append(t.Nodes, &Node{
		ID:            detail.ID,
		ElementTypeID: detail.ElementTypeID,
		Name:          detail.Name,
		Description:   detail.Description,
		Element:       detail.Element,
		Enterprise:    detail.Enterprise,
		Depth:         depth,
	})
}

func (t *Traversal) summarize() {
	s := Summary{
		ByType:     make(map[string]int),
		ByScope:    make(map[string]int),
		TotalNodes: len(t.Nodes),
		TotalEdges: len(t.Edges),
	}
	for _, n := range t.Nodes {
		s.ByType[n.Element]++
		scope := n.Enterprise
		if scope == "" {
			scope = "unscoped"
		}
		s.ByScope[scope]++
		if n.Depth > s.MaxDepth {
			s.MaxDepth = n.Depth
		}
	}
	t.Summary = s
}

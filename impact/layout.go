package impact

import (
	"math"
	"sort"
)

// Layout assigns radial positions to a traversal's nodes in place. The
// source sits at the canvas center; every other node sits on a ring at
// radius depth times the configured step.
//
// A spanning tree is built from edges whose endpoints differ by exactly one
// depth level; each node's angular span is partitioned among its children
// proportionally to subtree size, and a child is placed at the midpoint of
// its sub-span. Visited nodes outside the spanning tree (reachable only via
// cross edges) fall back to evenly spaced angles on their ring.
func (e *Engine) Layout(t *Traversal) {
	if len(t.Nodes) == 0 {
		return
	}

	byID := make(map[int64]*Node, len(t.Nodes))
	for _, n := range t.Nodes {
		byID[n.ID] = n
	}

	// Tree edges: parent is the shallower endpoint, child exactly one level
	// deeper. A child keeps its first parent; later tree edges to the same
	// child render as connections but do not re-parent it.
	children := make(map[int64][]int64)
	hasParent := make(map[int64]bool)
	for _, edge := range t.Edges {
		ds, okS := t.Depth[edge.SourceID]
		dt, okT := t.Depth[edge.TargetID]
		if !okS || !okT {
			continue
		}
		var parent, child int64
		switch {
		case dt == ds+1:
			parent, child = edge.SourceID, edge.TargetID
		case ds == dt+1:
			parent, child = edge.TargetID, edge.SourceID
		default:
			continue
		}
		if hasParent[child] || child == t.SourceID {
			continue
		}
		hasParent[child] = true
		children[parent] = append(children[parent], child)
	}

	sizes := make(map[int64]int)
	subtreeSize(t.SourceID, children, sizes)

	root := byID[t.SourceID]
	root.X = e.cfg.CenterX
	root.Y = e.cfg.CenterY
	e.placeSubtree(t, byID, children, sizes, t.SourceID, 0, 2*math.Pi)

	// Fallback ring for visited nodes the spanning tree never reached.
	var orphans []*Node
	for _, n := range t.Nodes {
		if n.ID != t.SourceID && !hasParent[n.ID] {
			orphans = append(orphans, n)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	for i, n := range orphans {
		angle := 2 * math.Pi * float64(i) / float64(len(orphans))
		radius := float64(n.Depth) * e.cfg.RadialStep
		n.X = e.cfg.CenterX + radius*math.Cos(angle)
		n.Y = e.cfg.CenterY + radius*math.Sin(angle)
	}
}

func subtreeSize(id int64, children map[int64][]int64, sizes map[int64]int) int {
	size := 1
	for _, child := range children[id] {
		size += subtreeSize(child, children, sizes)
	}
	sizes[id] = size
	return size
}

// placeSubtree partitions [start, end) among the node's children
// proportionally to subtree size and positions each child at the midpoint
// of its sub-span.
func (e *Engine) placeSubtree(t *Traversal, byID map[int64]*Node, children map[int64][]int64, sizes map[int64]int, id int64, start, end float64) {
	kids := children[id]
	if len(kids) == 0 {
		return
	}

	total := 0
	for _, child := range kids {
		total += sizes[child]
	}

	cursor := start
	for _, child := range kids {
		span := (end - start) * float64(sizes[child]) / float64(total)
		childStart, childEnd := cursor, cursor+span
		cursor = childEnd

		n := byID[child]
		angle := (childStart + childEnd) / 2
		radius := float64(n.Depth) * e.cfg.RadialStep
		n.X = e.cfg.CenterX + radius*math.Cos(angle)
		n.Y = e.cfg.CenterY + radius*math.Sin(angle)

		e.placeSubtree(t, byID, children, sizes, child, childStart, childEnd)
	}
}

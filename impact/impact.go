// Package impact implements the impact analysis engine: bounded breadth-first
// traversal of the relationship graph from a source occurrence, radial layout
// of the result, and materialization into a derived canvas.
package impact

import (
	"context"

	"go.uber.org/zap"

	"github.com/modelry/modelry/store"
)

// Store is the slice of the graph store the engine needs. *store.Store
// satisfies it.
type Store interface {
	GetInstanceDetail(ctx context.Context, id int64) (*store.InstanceDetail, error)
	IncidentEdges(ctx context.Context, instanceID int64, direction store.Direction, kinds []string) ([]*store.CanvasRelationship, error)
	CreateImpactCanvas(ctx context.Context, name, description string, nodes []store.ImpactNode, edges []store.ImpactEdge, maxCanvases, maxInstances int) (int64, error)
	Audit(ctx context.Context, entity string, entityID int64, action, detail string)
}

// Config bounds traversal and shapes the generated canvas.
type Config struct {
	// MaxVisited caps the absolute visited-node count, guarding against
	// pathological fan-out.
	MaxVisited int
	// MaxDepth caps the requested traversal depth.
	MaxDepth int
	// MaxCanvases and MaxInstances are the repository-wide capacity guards
	// applied at materialization.
	MaxCanvases  int
	MaxInstances int

	// RadialStep is the ring spacing per depth level.
	RadialStep float64
	// CenterX, CenterY position the source node.
	CenterX float64
	CenterY float64
	// NodeWidth, NodeHeight size materialized occurrences.
	NodeWidth  float64
	NodeHeight float64
}

// Engine runs impact traversals and materializes their results.
type Engine struct {
	store  Store
	logger *zap.SugaredLogger
	cfg    Config
}

// New creates an impact engine. A nil logger silences it. Zero config
// fields fall back to workable defaults.
func New(st Store, logger *zap.SugaredLogger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.MaxVisited <= 0 {
		cfg.MaxVisited = 1000
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	if cfg.MaxCanvases <= 0 {
		cfg.MaxCanvases = 100
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = 5000
	}
	if cfg.RadialStep <= 0 {
		cfg.RadialStep = 220
	}
	if cfg.CenterX <= 0 {
		cfg.CenterX = 600
	}
	if cfg.CenterY <= 0 {
		cfg.CenterY = 400
	}
	if cfg.NodeWidth <= 0 {
		cfg.NodeWidth = 140
	}
	if cfg.NodeHeight <= 0 {
		cfg.NodeHeight = 80
	}
	return &Engine{
		store:  st,
		logger: logger.Named("impact"),
		cfg:    cfg,
	}
}

package server

// Handlers for impact analysis: read-only traversal and materialization
// into a derived canvas.

import (
	"net/http"
	"strings"

	"github.com/modelry/modelry/store"
)

type materializeRequest struct {
	SourceID  int64    `json:"source_id"`
	CanvasID  int64    `json:"canvas_id,omitempty"`
	MaxDepth  int      `json:"max_depth"`
	Direction string   `json:"direction"`
	Kinds     []string `json:"kinds,omitempty"`
}

func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	sourceID, err := queryInt64(r, "source_id")
	if err != nil || sourceID == 0 {
		writeError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	canvasID, err := queryInt64(r, "canvas_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxDepth, err := queryInt(r, "max_depth", 2)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	direction := store.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = store.DirectionBoth
	}
	kinds := splitKinds(r.URL.Query().Get("kinds"))

	traversal, err := s.analyzer.Traverse(r.Context(), sourceID, canvasID, maxDepth, direction, kinds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traversal)
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req materializeRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.SourceID == 0 {
		writeError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	direction := store.Direction(req.Direction)
	if direction == "" {
		direction = store.DirectionBoth
	}

	result, err := s.analyzer.MaterializeImpactDiagram(r.Context(), req.SourceID, req.CanvasID, req.MaxDepth, direction, req.Kinds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcastEvent("canvas_materialized", result)
	writeJSON(w, http.StatusCreated, result)
}

// splitKinds parses a comma-separated kind filter, dropping empty entries.
func splitKinds(raw string) []string {
	if raw == "" {
		return nil
	}
	var kinds []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

package server

// Handlers for the schema side of the repository: element types and the
// relationship type rules declaring which categories may connect.

import (
	"net/http"

	"github.com/modelry/modelry/store"
)

func (s *Server) handleElementTypes(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		types, err := s.store.ListElementTypes(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types)

	case http.MethodPost:
		var et store.ElementType
		if readJSON(w, r, &et) != nil {
			return
		}
		if et.Name == "" || et.Element == "" {
			writeError(w, http.StatusBadRequest, "name and element are required")
			return
		}
		created, err := s.store.CreateElementType(r.Context(), &et)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "element_type", created.ID, "create", created.Name)
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleElementType(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		et, err := s.store.GetElementType(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, et)

	case http.MethodPut:
		var et store.ElementType
		if readJSON(w, r, &et) != nil {
			return
		}
		et.ID = id
		if err := s.store.UpdateElementType(r.Context(), &et); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "element_type", id, "update", et.Name)
		writeJSON(w, http.StatusOK, &et)

	case http.MethodDelete:
		if err := s.store.DeleteElementType(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "element_type", id, "delete", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleRelRules(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rules, err := s.store.ListRelationshipTypeRules(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)

	case http.MethodPost:
		var rule store.RelationshipTypeRule
		if readJSON(w, r, &rule) != nil {
			return
		}
		if rule.SourceTypeID == 0 || rule.TargetTypeID == 0 {
			writeError(w, http.StatusBadRequest, "source_type_id and target_type_id are required")
			return
		}
		created, err := s.store.CreateRelationshipTypeRule(r.Context(), &rule)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "relationship_type_rule", created.ID, "create", created.RelationshipType)
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleRelRule(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := s.store.GetRelationshipTypeRule(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodDelete:
		if err := s.store.DeleteRelationshipTypeRule(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "relationship_type_rule", id, "delete", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

package server

// Handlers for the model side of the repository: canvases, their element
// occurrences, relationships and property annotations.

import (
	"net/http"

	"github.com/modelry/modelry/store"
)

func (s *Server) handleCanvases(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		canvases, err := s.store.ListCanvases(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, canvases)

	case http.MethodPost:
		var c store.CanvasModel
		if readJSON(w, r, &c) != nil {
			return
		}
		if c.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		created, err := s.store.CreateCanvas(r.Context(), &c)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "canvas", created.ID, "create", created.Name)
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := s.store.GetCanvas(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)

	case http.MethodPut:
		var c store.CanvasModel
		if readJSON(w, r, &c) != nil {
			return
		}
		c.ID = id
		if err := s.store.UpdateCanvas(r.Context(), &c); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "canvas", id, "update", c.Name)
		writeJSON(w, http.StatusOK, &c)

	case http.MethodDelete:
		if err := s.store.DeleteCanvas(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "canvas", id, "delete", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	canvasID, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		instances, err := s.store.ListInstances(r.Context(), canvasID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, instances)

	case http.MethodPost:
		var in store.ElementInstance
		if readJSON(w, r, &in) != nil {
			return
		}
		in.CanvasID = canvasID
		if in.Name == "" || in.ElementTypeID == 0 {
			writeError(w, http.StatusBadRequest, "name and element_type_id are required")
			return
		}
		created, err := s.store.CreateInstance(r.Context(), &in)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "instance", created.ID, "create", created.Name)
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		detail, err := s.store.GetInstanceDetail(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case http.MethodPut:
		var in store.ElementInstance
		if readJSON(w, r, &in) != nil {
			return
		}
		in.ID = id
		if err := s.store.UpdateInstance(r.Context(), &in); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, &in)

	case http.MethodDelete:
		if err := s.store.DeleteInstance(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "instance", id, "delete", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	canvasID, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rels, err := s.store.ListRelationships(r.Context(), canvasID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rels)

	case http.MethodPost:
		var rel store.CanvasRelationship
		if readJSON(w, r, &rel) != nil {
			return
		}
		rel.CanvasID = canvasID
		if rel.SourceInstanceID == 0 || rel.TargetInstanceID == 0 {
			writeError(w, http.StatusBadRequest, "source_instance_id and target_instance_id are required")
			return
		}
		created, err := s.store.CreateRelationship(r.Context(), &rel)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleRelationship(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rel, err := s.store.GetRelationship(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rel)

	case http.MethodDelete:
		if err := s.store.DeleteRelationship(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	instanceID, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		props, err := s.store.ListProperties(r.Context(), instanceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, props)

	case http.MethodPost:
		var p store.PropertyInstance
		if readJSON(w, r, &p) != nil {
			return
		}
		p.InstanceID = instanceID
		// User-authored properties never carry a rule back-reference.
		p.Source = store.SourceUser
		p.RuleID = nil
		if p.PropertyName == "" {
			writeError(w, http.StatusBadRequest, "propertyname is required")
			return
		}
		created, err := s.store.CreateProperty(r.Context(), &p)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteProperty(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

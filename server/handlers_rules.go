package server

// Handlers for design rules and their evaluation. Condition lists are
// parse-validated at save time so malformed rules are rejected before they
// ever reach the evaluator; saved rules are evaluated immediately.

import (
	"net/http"

	"github.com/modelry/modelry/rules"
	"github.com/modelry/modelry/store"
)

func (s *Server) handleDesignRules(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListDesignRules(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var rule store.DesignRule
		if readJSON(w, r, &rule) != nil {
			return
		}
		if rule.Name == "" || rule.SubjectElement == "" {
			writeError(w, http.StatusBadRequest, "name and subject_element are required")
			return
		}
		if _, err := rules.ParseGroups(rule.Conditions); err != nil {
			writeEngineError(w, err)
			return
		}
		created, err := s.store.CreateDesignRule(r.Context(), &rule)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "design_rule", created.ID, "create", created.Name)

		if err := s.evaluator.EvaluateRule(r.Context(), created.ID); err != nil {
			s.logger.Warnw("Evaluation after rule create failed",
				"rule_id", created.ID,
				"error", err,
			)
		} else {
			s.broadcastEvent("rule_evaluated", map[string]any{"rule_id": created.ID, "rule": created.Name})
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleDesignRule(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := s.store.GetDesignRule(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodPut:
		var rule store.DesignRule
		if readJSON(w, r, &rule) != nil {
			return
		}
		rule.ID = id
		if _, err := rules.ParseGroups(rule.Conditions); err != nil {
			writeEngineError(w, err)
			return
		}
		if err := s.store.UpdateDesignRule(r.Context(), &rule); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "design_rule", id, "update", rule.Name)

		// Re-evaluation also cleans up when the update deactivated the rule.
		if err := s.evaluator.EvaluateRule(r.Context(), id); err != nil {
			s.logger.Warnw("Evaluation after rule update failed",
				"rule_id", id,
				"error", err,
			)
		} else {
			s.broadcastEvent("rule_evaluated", map[string]any{"rule_id": id, "rule": rule.Name})
		}
		writeJSON(w, http.StatusOK, &rule)

	case http.MethodDelete:
		// Violations and annotations cascade with the rule row.
		if err := s.store.DeleteDesignRule(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		s.store.Audit(r.Context(), "design_rule", id, "delete", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.evaluator.EvaluateRule(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	violations, err := s.store.ListViolations(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcastEvent("rule_evaluated", map[string]any{"rule_id": id, "violations": len(violations)})
	writeJSON(w, http.StatusOK, map[string]any{
		"rule_id":    id,
		"violations": violations,
	})
}

func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	report, err := s.evaluator.EvaluateAllActiveRules(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcastEvent("rules_evaluated", report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ruleID, err := queryInt64(r, "rule_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	violations, err := s.store.ListViolations(r.Context(), ruleID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, violations)
}

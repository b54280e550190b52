package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelry/modelry/config"
	modeltest "github.com/modelry/modelry/internal/testing"
	"github.com/modelry/modelry/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.New(modeltest.CreateTestDB(t), nil)
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           5000,
			AllowedOrigins: []string{"http://localhost"},
		},
		Limits: config.LimitsConfig{
			MaxCanvases:    100,
			MaxInstances:   5000,
			MaxVisited:     1000,
			MaxTraverseHop: 10,
		},
		Rules:  config.RulesConfig{AnnotationRowHeight: 18, AnnotationWidth: 120},
		Impact: config.ImpactConfig{RadialStep: 220, CenterX: 600, CenterY: 400, NodeWidth: 140, NodeHeight: 80},
	}
	return New(st, cfg, nil), st
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestElementTypeEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/element-types",
		map[string]string{"name": "Business Process", "element": "Process"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[store.ElementType](t, rec)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/element-types/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/element-types/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing type status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/element-types", map[string]string{"name": "incomplete"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid create status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/element-types/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestDesignRuleSaveValidatesConditions(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/design-rules", map[string]interface{}{
		"name":            "Broken",
		"subject_element": "Process",
		"active":          true,
		"conditions":      `[{"direction":"sideways","operator":"eq","right_value":0}]`,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed conditions status = %d, want 400", rec.Code)
	}
}

func TestDesignRuleCreateEvaluatesImmediately(t *testing.T) {
	s, st := newTestServer(t)
	ctx := t.Context()

	et, err := st.CreateElementType(ctx, &store.ElementType{Name: "Process", Element: "Process"})
	if err != nil {
		t.Fatal(err)
	}
	canvas, err := st.CreateCanvas(ctx, &store.CanvasModel{Name: "Main"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateInstance(ctx, &store.ElementInstance{
		CanvasID: canvas.ID, ElementTypeID: et.ID, Name: "Payroll",
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/design-rules", map[string]interface{}{
		"name":            "ProcessNeedsAssets",
		"subject_element": "Process",
		"active":          true,
		"conditions":      `[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	rule := decode[store.DesignRule](t, rec)

	violations, err := st.ListViolations(ctx, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 {
		t.Errorf("violations after create = %d, want 1", len(violations))
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/violations?rule_id=%d", rule.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("violations status = %d", rec.Code)
	}
	listed := decode[[]store.Violation](t, rec)
	if len(listed) != 1 {
		t.Errorf("listed violations = %d, want 1", len(listed))
	}
}

func TestEvaluateAllEndpointReportsSkips(t *testing.T) {
	s, st := newTestServer(t)
	ctx := t.Context()

	// Insert a malformed rule directly; the handler would reject it.
	bad, err := st.CreateDesignRule(ctx, &store.DesignRule{
		Name: "Broken", Active: true, SubjectElement: "Process", Conditions: "{not json",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/design-rules/evaluate-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate-all status = %d", rec.Code)
	}
	report := decode[map[string]interface{}](t, rec)
	skipped, ok := report["skipped"].([]interface{})
	if !ok || len(skipped) != 1 {
		t.Errorf("report = %v, want one skipped rule %d", report, bad.ID)
	}
}

func TestTraverseEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	ctx := t.Context()

	et, err := st.CreateElementType(ctx, &store.ElementType{Name: "Process", Element: "Process"})
	if err != nil {
		t.Fatal(err)
	}
	canvas, err := st.CreateCanvas(ctx, &store.CanvasModel{Name: "Main"})
	if err != nil {
		t.Fatal(err)
	}
	src, err := st.CreateInstance(ctx, &store.ElementInstance{CanvasID: canvas.ID, ElementTypeID: et.ID, Name: "S"})
	if err != nil {
		t.Fatal(err)
	}
	dst, err := st.CreateInstance(ctx, &store.ElementInstance{CanvasID: canvas.ID, ElementTypeID: et.ID, Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateRelationship(ctx, &store.CanvasRelationship{
		CanvasID: canvas.ID, SourceInstanceID: src.ID, TargetInstanceID: dst.ID, RelationshipType: "flow",
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodGet,
		fmt.Sprintf("/api/impact/traverse?source_id=%d&max_depth=1&direction=outgoing", src.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("traverse status = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[map[string]interface{}](t, rec)
	nodes, ok := result["nodes"].([]interface{})
	if !ok || len(nodes) != 2 {
		t.Errorf("traverse nodes = %v, want 2", result["nodes"])
	}

	rec = doJSON(t, s, http.MethodGet, "/api/impact/traverse?source_id=9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing source status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/impact/traverse", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no source status = %d, want 400", rec.Code)
	}
}

func TestMaterializeEndpointCapacityGuard(t *testing.T) {
	st := store.New(modeltest.CreateTestDB(t), nil)
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 5000},
		Limits: config.LimitsConfig{MaxCanvases: 2, MaxInstances: 5000, MaxVisited: 1000, MaxTraverseHop: 10},
		Rules:  config.RulesConfig{AnnotationRowHeight: 18, AnnotationWidth: 120},
		Impact: config.ImpactConfig{RadialStep: 220, CenterX: 600, CenterY: 400, NodeWidth: 140, NodeHeight: 80},
	}
	s := New(st, cfg, nil)
	ctx := t.Context()

	et, err := st.CreateElementType(ctx, &store.ElementType{Name: "Process", Element: "Process"})
	if err != nil {
		t.Fatal(err)
	}
	canvas, err := st.CreateCanvas(ctx, &store.CanvasModel{Name: "Main"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateCanvas(ctx, &store.CanvasModel{Name: "Other"}); err != nil {
		t.Fatal(err)
	}
	src, err := st.CreateInstance(ctx, &store.ElementInstance{CanvasID: canvas.ID, ElementTypeID: et.ID, Name: "S"})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/impact/materialize", materializeRequest{
		SourceID:  src.ID,
		MaxDepth:  1,
		Direction: "outgoing",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("materialize at capacity status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	health := decode[map[string]interface{}](t, rec)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodDelete, "/api/element-types", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	s, _ := newTestServer(t)
	s.limiters = newRateLimiters(1, 1)

	first := doJSON(t, s, http.MethodGet, "/health", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	second := doJSON(t, s, http.MethodGet, "/health", nil)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", second.Code)
	}
}

func TestCORSPreflightAndOrigin(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/element-types", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/element-types", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin received CORS headers")
	}
}

package rules

import (
	"context"
	"testing"

	"github.com/modelry/modelry/errors"
	modeltest "github.com/modelry/modelry/internal/testing"
	"github.com/modelry/modelry/store"
)

// fixture wires a real in-memory store behind an evaluator and offers
// shorthand builders for graph state.
type fixture struct {
	t     *testing.T
	s     *store.Store
	eval  *Evaluator
	types map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(modeltest.CreateTestDB(t), nil)
	return &fixture{
		t:     t,
		s:     s,
		eval:  New(s, nil, Config{AnnotationRowHeight: 18, AnnotationWidth: 120}),
		types: make(map[string]int64),
	}
}

func (f *fixture) elementType(name string) int64 {
	f.t.Helper()
	if id, ok := f.types[name]; ok {
		return id
	}
	et, err := f.s.CreateElementType(context.Background(), &store.ElementType{Name: name, Element: name})
	if err != nil {
		f.t.Fatalf("CreateElementType(%q) failed: %v", name, err)
	}
	f.types[name] = et.ID
	return et.ID
}

func (f *fixture) canvas(name string) int64 {
	f.t.Helper()
	c, err := f.s.CreateCanvas(context.Background(), &store.CanvasModel{Name: name})
	if err != nil {
		f.t.Fatalf("CreateCanvas(%q) failed: %v", name, err)
	}
	return c.ID
}

func (f *fixture) node(canvasID int64, category, name string) int64 {
	f.t.Helper()
	in, err := f.s.CreateInstance(context.Background(), &store.ElementInstance{
		CanvasID:      canvasID,
		ElementTypeID: f.elementType(category),
		Name:          name,
		Width:         140,
		Height:        80,
	})
	if err != nil {
		f.t.Fatalf("CreateInstance(%q) failed: %v", name, err)
	}
	return in.ID
}

func (f *fixture) edge(canvasID, sourceID, targetID int64, kind string) {
	f.t.Helper()
	if _, err := f.s.CreateRelationship(context.Background(), &store.CanvasRelationship{
		CanvasID:         canvasID,
		SourceInstanceID: sourceID,
		TargetInstanceID: targetID,
		RelationshipType: kind,
	}); err != nil {
		f.t.Fatalf("CreateRelationship failed: %v", err)
	}
}

func (f *fixture) rule(name, subject, conditions string) *store.DesignRule {
	f.t.Helper()
	r, err := f.s.CreateDesignRule(context.Background(), &store.DesignRule{
		Name:           name,
		Active:         true,
		SubjectElement: subject,
		Conditions:     conditions,
	})
	if err != nil {
		f.t.Fatalf("CreateDesignRule(%q) failed: %v", name, err)
	}
	return r
}

func (f *fixture) violations(ruleID int64) []*store.Violation {
	f.t.Helper()
	vs, err := f.s.ListViolations(context.Background(), ruleID)
	if err != nil {
		f.t.Fatalf("ListViolations failed: %v", err)
	}
	return vs
}

// A process needing at least two assets is healthy with two and flagged when
// it drops below the threshold.
func TestProcessNeedsTwoAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	onboarding := f.node(canvas, "Process", "Onboarding")
	hr := f.node(canvas, "Asset", "HR-System")
	laptop := f.node(canvas, "Asset", "Laptop")
	f.edge(canvas, onboarding, hr, "uses")
	f.edge(canvas, onboarding, laptop, "uses")

	rule := f.rule("ProcessNeedsTwoAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"lt","right_value":2,"severity":"negative","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 0 {
		t.Errorf("healthy process got %d violations, want 0", len(vs))
	}

	// Losing an asset trips the rule on the next evaluation.
	rels, err := f.s.ListRelationships(ctx, canvas)
	if err != nil {
		t.Fatalf("ListRelationships failed: %v", err)
	}
	if err := f.s.DeleteRelationship(ctx, rels[0].ID); err != nil {
		t.Fatalf("DeleteRelationship failed: %v", err)
	}
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	vs := f.violations(rule.ID)
	if len(vs) != 1 {
		t.Fatalf("got %d violations, want 1", len(vs))
	}
	v := vs[0]
	if v.InstanceID != onboarding || v.Severity != "negative" || v.CurrentValue != 1 || v.ThresholdValue != 2 {
		t.Errorf("violation = %+v, want onboarding/negative/1/2", v)
	}

	// The annotation carries the rule name, the red RAG label and the
	// rules-engine source.
	props, err := f.s.ListProperties(ctx, onboarding)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("got %d annotations, want 1", len(props))
	}
	p := props[0]
	if p.PropertyName != "ProcessNeedsTwoAssets" || p.RAGType != "Red" || p.Source != store.SourceRulesEngine {
		t.Errorf("annotation = %+v", p)
	}
	if p.RuleID == nil || *p.RuleID != rule.ID {
		t.Error("annotation lost its rule back-reference")
	}
	if p.ImageURL != "/static/icons/rag-red.svg" {
		t.Errorf("annotation icon = %q, want the red RAG icon", p.ImageURL)
	}
}

func TestEvaluationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	f.node(canvas, "Process", "Payroll")

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("first evaluation failed: %v", err)
	}
	first := f.violations(rule.ID)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("second evaluation failed: %v", err)
	}
	second := f.violations(rule.ID)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("violation counts = %d, %d; want 1, 1", len(first), len(second))
	}
	if first[0].InstanceID != second[0].InstanceID ||
		first[0].Severity != second[0].Severity ||
		first[0].CurrentValue != second[0].CurrentValue ||
		first[0].ThresholdValue != second[0].ThresholdValue {
		t.Errorf("violations diverged across identical evaluations: %+v vs %+v", first[0], second[0])
	}

	// Annotations do not stack up across passes either.
	props, err := f.s.ListProperties(ctx, first[0].InstanceID)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 1 {
		t.Errorf("got %d annotations after two passes, want 1", len(props))
	}
}

func TestDeactivationCleansUpAndReactivationRegenerates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	subject := f.node(canvas, "Process", "Payroll")

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if len(f.violations(rule.ID)) != 1 {
		t.Fatal("precondition: expected one violation")
	}

	rule.Active = false
	if err := f.s.UpdateDesignRule(ctx, rule); err != nil {
		t.Fatalf("UpdateDesignRule failed: %v", err)
	}
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule on inactive rule failed: %v", err)
	}

	if len(f.violations(rule.ID)) != 0 {
		t.Error("deactivation left violations behind")
	}
	props, err := f.s.ListProperties(ctx, subject)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 0 {
		t.Error("deactivation left annotations behind")
	}

	rule.Active = true
	if err := f.s.UpdateDesignRule(ctx, rule); err != nil {
		t.Fatalf("UpdateDesignRule failed: %v", err)
	}
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule after reactivation failed: %v", err)
	}
	if len(f.violations(rule.ID)) != 1 {
		t.Error("reactivation did not regenerate the violation")
	}
}

// Reciprocity: with neighbors A (reverse degree 2) and B (reverse degree 3),
// a left value of 3 selects B and excludes A.
func TestReciprocityNarrowsAffectedSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	s := f.node(canvas, "Process", "S")
	p2 := f.node(canvas, "Process", "P2")
	p3 := f.node(canvas, "Process", "P3")
	a := f.node(canvas, "Asset", "A")
	b := f.node(canvas, "Asset", "B")

	f.edge(canvas, s, a, "uses")
	f.edge(canvas, s, b, "uses")
	f.edge(canvas, p2, a, "uses") // A: reverse degree 2
	f.edge(canvas, p2, b, "uses")
	f.edge(canvas, p3, b, "uses") // B: reverse degree 3

	rule := f.rule("ReciprocalAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"gte","right_value":1,"left_value":3,"severity":"negative","property_target":"targets"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	affected := make(map[int64]bool)
	for _, v := range f.violations(rule.ID) {
		affected[v.InstanceID] = true
	}
	if !affected[b] {
		t.Error("affected set is missing B (reverse degree 3)")
	}
	if affected[a] {
		t.Error("affected set wrongly contains A (reverse degree 2)")
	}
	if affected[s] {
		t.Error("affected set wrongly contains the subject with property_target=targets")
	}
}

// No reciprocal neighbor downgrades an otherwise passing condition to false.
func TestReciprocityDowngradesToFalse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	s := f.node(canvas, "Process", "S")
	a := f.node(canvas, "Asset", "A")
	f.edge(canvas, s, a, "uses") // reverse degree 1, never 5

	rule := f.rule("ReciprocalAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"gte","right_value":1,"left_value":5,"severity":"negative","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 0 {
		t.Errorf("got %d violations, want 0", len(vs))
	}
}

// Duplicate occurrences of one entity across canvases evaluate once, via the
// canonical occurrence.
func TestCanonicalSubjectsEvaluateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	main := f.canvas("Main")
	other := f.canvas("Other")
	derived := f.canvas(store.DerivedCanvasPrefix + " S (depth 1)")

	first := f.node(main, "Process", "Payroll")
	f.node(other, "Process", "PAYROLL")
	f.node(derived, "Process", "Payroll") // derived canvases never contribute subjects

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	vs := f.violations(rule.ID)
	if len(vs) != 1 {
		t.Fatalf("got %d violations, want 1", len(vs))
	}
	if vs[0].InstanceID != first {
		t.Errorf("violation on instance %d, want canonical %d", vs[0].InstanceID, first)
	}
}

func TestOrConjunctionAcrossConditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	s := f.node(canvas, "Process", "S")
	f.edge(canvas, s, f.node(canvas, "Asset", "A"), "uses")

	// First condition false (no People), second true via or (has an Asset).
	rule := f.rule("StaffedOrTooled", "Process", `[
		{"direction":"outgoing","related_element":"People","operator":"gte","right_value":1,"severity":"positive","property_target":"subject"},
		{"direction":"outgoing","related_element":"Asset","operator":"gte","right_value":1,"conjunction":"or"}
	]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 1 {
		t.Errorf("got %d violations, want 1", len(vs))
	}
}

func TestTextOperatorMatchesRelatedNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	s := f.node(canvas, "Process", "S")
	f.edge(canvas, s, f.node(canvas, "Asset", "Legacy-Mainframe"), "uses")

	rule := f.rule("UsesLegacySystem", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"text","text_value":"legacy","severity":"warning","property_target":"subject"}]`)

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	vs := f.violations(rule.ID)
	if len(vs) != 1 {
		t.Fatalf("got %d violations, want 1", len(vs))
	}
	if vs[0].Severity != "warning" {
		t.Errorf("severity = %q, want warning", vs[0].Severity)
	}

	props, err := f.s.ListProperties(ctx, s)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 1 || props[0].RAGType != "Amber" {
		t.Errorf("warning annotation = %+v, want Amber", props)
	}
}

func TestEmptyConditionsIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	f.node(canvas, "Process", "Payroll")
	rule := f.rule("Empty", "Process", "[]")

	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 0 {
		t.Errorf("no-op rule produced %d violations", len(vs))
	}
}

func TestEvaluateRuleNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.eval.EvaluateRule(context.Background(), 9999)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestMalformedRuleIsSkippedInBulkPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	f.node(canvas, "Process", "Payroll")

	good := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)
	bad := f.rule("Broken", "Process", `{not json`)

	report, err := f.eval.EvaluateAllActiveRules(ctx)
	if err != nil {
		t.Fatalf("EvaluateAllActiveRules failed: %v", err)
	}
	if report.Evaluated != 1 {
		t.Errorf("evaluated = %d, want 1", report.Evaluated)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].RuleID != bad.ID {
		t.Errorf("skipped = %+v, want rule %d", report.Skipped, bad.ID)
	}

	// The good rule's output was still produced.
	if vs := f.violations(good.ID); len(vs) != 1 {
		t.Errorf("good rule produced %d violations, want 1", len(vs))
	}

	// Direct evaluation of the malformed rule reports invalid configuration.
	if err := f.eval.EvaluateRule(ctx, bad.ID); !errors.IsInvalidConfiguration(err) {
		t.Errorf("expected invalid-configuration, got %v", err)
	}
}

func TestBulkPassSweepsOrphanedAnnotations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	subject := f.node(canvas, "Process", "Payroll")

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	rule.Active = false
	if err := f.s.UpdateDesignRule(ctx, rule); err != nil {
		t.Fatalf("UpdateDesignRule failed: %v", err)
	}

	if _, err := f.eval.EvaluateAllActiveRules(ctx); err != nil {
		t.Fatalf("EvaluateAllActiveRules failed: %v", err)
	}

	props, err := f.s.ListProperties(ctx, subject)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("orphaned annotations survived the sweep: %+v", props)
	}
}

func TestAnnotationStacksBeneathExistingProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	subject := f.node(canvas, "Process", "Payroll")

	// One user-authored property already hangs beneath the node.
	if _, err := f.s.CreateProperty(ctx, &store.PropertyInstance{
		InstanceID:   subject,
		PropertyName: "Owner",
		Source:       store.SourceUser,
	}); err != nil {
		t.Fatalf("CreateProperty failed: %v", err)
	}

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"eq","right_value":0,"severity":"negative","property_target":"subject"}]`)
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	props, err := f.s.ListProperties(ctx, subject)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	var generated *store.PropertyInstance
	for _, p := range props {
		if p.Source == store.SourceRulesEngine {
			generated = p
		}
	}
	if generated == nil {
		t.Fatal("no generated annotation found")
	}
	// Node at y=0 with height 80, one existing property, row height 18.
	if generated.Y != 80+18 {
		t.Errorf("annotation y = %v, want 98", generated.Y)
	}
}

func TestAnnotationCentersForPersonCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	subject := f.node(canvas, "People", "Alex")

	rule := f.rule("UnassignedPerson", "People",
		`[{"direction":"incoming","related_element":"Process","operator":"eq","right_value":0,"severity":"warning","property_target":"subject"}]`)
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}

	props, err := f.s.ListProperties(ctx, subject)
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("got %d annotations, want 1", len(props))
	}
	// Node at x=0 width 140, annotation width 120: centered at x=10.
	if props[0].X != 10 {
		t.Errorf("annotation x = %v, want 10", props[0].X)
	}
}

// Without a declared relationship type rule the evaluator falls back to a
// bare category match, and with one declared it uses the rule's types.
func TestRelatedTypeResolutionFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canvas := f.canvas("Main")
	s := f.node(canvas, "Process", "S")
	f.edge(canvas, s, f.node(canvas, "Asset", "A"), "uses")

	rule := f.rule("ProcessNeedsAssets", "Process",
		`[{"direction":"outgoing","related_element":"Asset","operator":"gte","right_value":1,"severity":"positive","property_target":"subject"}]`)

	// No RelationshipTypeRule declared: category fallback still finds A.
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 1 {
		t.Fatalf("fallback resolution: got %d violations, want 1", len(vs))
	}

	// Declaring the rule pair keeps behavior identical.
	if _, err := f.s.CreateRelationshipTypeRule(ctx, &store.RelationshipTypeRule{
		SourceTypeID:     f.elementType("Process"),
		TargetTypeID:     f.elementType("Asset"),
		RelationshipType: "uses",
	}); err != nil {
		t.Fatalf("CreateRelationshipTypeRule failed: %v", err)
	}
	if err := f.eval.EvaluateRule(ctx, rule.ID); err != nil {
		t.Fatalf("EvaluateRule failed: %v", err)
	}
	if vs := f.violations(rule.ID); len(vs) != 1 {
		t.Fatalf("declared resolution: got %d violations, want 1", len(vs))
	}
}

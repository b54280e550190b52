package rules

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/store"
)

// Store is the slice of the graph store the evaluator needs. *store.Store
// satisfies it; tests may substitute a narrower fake.
type Store interface {
	GetDesignRule(ctx context.Context, id int64) (*store.DesignRule, error)
	ListActiveDesignRules(ctx context.Context) ([]*store.DesignRule, error)
	DeleteViolationsForRule(ctx context.Context, ruleID int64) error
	DeleteRuleAnnotations(ctx context.Context, ruleID int64) error
	SweepOrphanedAnnotations(ctx context.Context) (int64, error)

	CanonicalInstancesByCategory(ctx context.Context, category string) ([]*store.ElementInstance, error)
	GetInstanceDetail(ctx context.Context, id int64) (*store.InstanceDetail, error)
	CompatibleTypeIDs(ctx context.Context, subjectCategory, relatedCategory, kind string, direction store.Direction) ([]int64, error)
	TypeIDsByCategory(ctx context.Context, category string) ([]int64, error)
	RelatedInstances(ctx context.Context, instanceID int64, direction store.Direction, kind string, typeIDs []int64) ([]*store.ElementInstance, error)
	DegreeTowardCategory(ctx context.Context, instanceID int64, direction store.Direction, category, kind string) (int, error)

	CreateViolation(ctx context.Context, v *store.Violation) (*store.Violation, error)
	HasRuleAnnotation(ctx context.Context, ruleID, instanceID int64) (bool, error)
	CountProperties(ctx context.Context, instanceID int64) (int, error)
	CreateProperty(ctx context.Context, p *store.PropertyInstance) (*store.PropertyInstance, error)

	Audit(ctx context.Context, entity string, entityID int64, action, detail string)
}

// Config holds annotation placement geometry.
type Config struct {
	// AnnotationRowHeight is the vertical step between stacked annotations
	// beneath one occurrence.
	AnnotationRowHeight float64
	// AnnotationWidth is the assumed annotation width used when centering
	// beneath person-like occurrences.
	AnnotationWidth float64
}

// Evaluator runs design rules against the relationship graph.
type Evaluator struct {
	store  Store
	logger *zap.SugaredLogger
	cfg    Config
}

// New creates a rule evaluator. A nil logger silences it.
func New(st Store, logger *zap.SugaredLogger, cfg Config) *Evaluator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.AnnotationRowHeight <= 0 {
		cfg.AnnotationRowHeight = 18
	}
	if cfg.AnnotationWidth <= 0 {
		cfg.AnnotationWidth = 120
	}
	return &Evaluator{
		store:  st,
		logger: logger.Named("rules"),
		cfg:    cfg,
	}
}

// Annotations center beneath occurrences representing people rather than
// hanging off the left edge.
var personLikeCategories = map[string]bool{
	"people":       true,
	"person":       true,
	"actor":        true,
	"organisation": true,
}

// SkippedRule identifies a rule a bulk pass could not evaluate, with the
// reason it was skipped.
type SkippedRule struct {
	RuleID int64  `json:"rule_id"`
	Reason string `json:"reason"`
}

// Report summarizes a bulk evaluation pass.
type Report struct {
	Evaluated int           `json:"evaluated"`
	Skipped   []SkippedRule `json:"skipped,omitempty"`
}

// conditionOutcome is one condition's verdict plus the bookkeeping the group
// evaluator needs: the related-set cardinality and the related occurrences
// themselves, narrowed to reciprocal matches when a left value applied.
type conditionOutcome struct {
	passed  bool
	count   int
	related []*store.ElementInstance
}

// EvaluateRule recomputes violations and annotations for one rule. An
// inactive rule has its output deleted and nothing recomputed. A rule with
// no conditions is a no-op.
func (e *Evaluator) EvaluateRule(ctx context.Context, ruleID int64) error {
	rule, err := e.store.GetDesignRule(ctx, ruleID)
	if err != nil {
		return err
	}
	return e.evaluateRule(ctx, rule)
}

// txScoper is implemented by stores that can bind a whole pass to one
// transaction.
type txScoper interface {
	WithTx(ctx context.Context, fn func(st *store.Store) error) error
}

// EvaluateAllActiveRules evaluates every active rule in sequence. A failure
// in one rule is recorded and the pass continues; the report carries the
// evaluated count and the skipped rule ids. When the store supports it, the
// whole pass runs in one transaction so every rule sees the same graph
// snapshot and an aborted pass leaves no rule partially recomputed.
func (e *Evaluator) EvaluateAllActiveRules(ctx context.Context) (*Report, error) {
	if scoper, ok := e.store.(txScoper); ok {
		var report *Report
		err := scoper.WithTx(ctx, func(st *store.Store) error {
			pass := &Evaluator{store: st, logger: e.logger, cfg: e.cfg}
			var passErr error
			report, passErr = pass.evaluateAllActiveRules(ctx)
			return passErr
		})
		return report, err
	}
	return e.evaluateAllActiveRules(ctx)
}

func (e *Evaluator) evaluateAllActiveRules(ctx context.Context) (*Report, error) {
	if _, err := e.store.SweepOrphanedAnnotations(ctx); err != nil {
		return nil, err
	}

	active, err := e.store.ListActiveDesignRules(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, rule := range active {
		if err := e.evaluateRule(ctx, rule); err != nil {
			e.logger.Warnw("rule evaluation skipped",
				"rule_id", rule.ID,
				"rule", rule.Name,
				"error", err,
			)
			report.Skipped = append(report.Skipped, SkippedRule{
				RuleID: rule.ID,
				Reason: err.Error(),
			})
			continue
		}
		report.Evaluated++
	}

	e.store.Audit(ctx, "design_rule", 0, "evaluate-all", "")
	return report, nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *store.DesignRule) error {
	if !rule.Active {
		if err := e.store.DeleteViolationsForRule(ctx, rule.ID); err != nil {
			return err
		}
		if err := e.store.DeleteRuleAnnotations(ctx, rule.ID); err != nil {
			return err
		}
		e.store.Audit(ctx, "design_rule", rule.ID, "deactivate-cleanup", rule.Name)
		return nil
	}

	groups, err := ParseGroups(rule.Conditions)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		e.logger.Debugw("rule has no conditions, skipping", "rule_id", rule.ID, "rule", rule.Name)
		return nil
	}

	// Full recompute: drop prior output, then regenerate from graph state.
	if err := e.store.DeleteViolationsForRule(ctx, rule.ID); err != nil {
		return err
	}
	if err := e.store.DeleteRuleAnnotations(ctx, rule.ID); err != nil {
		return err
	}

	subjects, err := e.store.CanonicalInstancesByCategory(ctx, rule.SubjectElement)
	if err != nil {
		return err
	}

	violations := 0
	for _, subject := range subjects {
		for gi := range groups {
			group := &groups[gi]

			passed, first, err := e.evaluateGroup(ctx, subject, rule.SubjectElement, group)
			if err != nil {
				return err
			}
			if !passed || group.Severity == "" {
				continue
			}

			affected := e.resolveAffected(subject, group, first)
			for _, inst := range affected {
				if _, err := e.store.CreateViolation(ctx, &store.Violation{
					RuleID:         rule.ID,
					InstanceID:     inst.ID,
					Severity:       string(group.Severity),
					CurrentValue:   first.count,
					ThresholdValue: group.Conditions[0].RightValue,
				}); err != nil {
					return err
				}
				if err := e.annotate(ctx, rule, group.Severity, inst.ID); err != nil {
					return err
				}
				violations++
			}
		}
	}

	e.logger.Infow("rule evaluated",
		"rule_id", rule.ID,
		"rule", rule.Name,
		"subjects", len(subjects),
		"violations", violations,
	)
	e.store.Audit(ctx, "design_rule", rule.ID, "evaluate", rule.Name)
	return nil
}

// evaluateGroup folds the group's conditions left to right and returns the
// group verdict along with the first condition's outcome, which carries the
// count and related set used for violations and affected-target resolution.
func (e *Evaluator) evaluateGroup(ctx context.Context, subject *store.ElementInstance, subjectCategory string, group *Group) (bool, *conditionOutcome, error) {
	first, err := e.evaluateCondition(ctx, subject, subjectCategory, &group.Conditions[0])
	if err != nil {
		return false, nil, err
	}

	result := first.passed
	for i := 1; i < len(group.Conditions); i++ {
		c := &group.Conditions[i]
		out, err := e.evaluateCondition(ctx, subject, subjectCategory, c)
		if err != nil {
			return false, nil, err
		}
		if c.Conjunction == ConjOr {
			result = result || out.passed
		} else {
			result = result && out.passed
		}
	}
	return result, first, nil
}

// evaluateCondition applies one condition to a subject occurrence.
func (e *Evaluator) evaluateCondition(ctx context.Context, subject *store.ElementInstance, subjectCategory string, c *Condition) (*conditionOutcome, error) {
	typeIDs, err := e.resolveRelatedTypes(ctx, subjectCategory, c)
	if err != nil {
		return nil, err
	}

	related, err := e.store.RelatedInstances(ctx, subject.ID, c.Direction, c.RelationshipType, typeIDs)
	if err != nil {
		return nil, err
	}
	count := len(related)

	passed := false
	switch c.Operator {
	case OpEq:
		passed = count == c.RightValue
	case OpGt:
		passed = count > c.RightValue
	case OpLt:
		passed = count < c.RightValue
	case OpGte:
		passed = count >= c.RightValue
	case OpLte:
		passed = count <= c.RightValue
	case OpText:
		needle := strings.ToLower(c.TextValue)
		for _, rel := range related {
			if strings.Contains(strings.ToLower(rel.Name), needle) {
				passed = true
				break
			}
		}
	}

	out := &conditionOutcome{passed: passed, count: count, related: related}
	if !passed || c.LeftValue == nil {
		return out, nil
	}

	// Reciprocity check: keep only related occurrences whose degree back
	// toward the subject's category, in the opposite direction, equals the
	// left value exactly. None matching downgrades the condition to false.
	var reciprocal []*store.ElementInstance
	for _, rel := range related {
		degree, err := e.store.DegreeTowardCategory(ctx, rel.ID, c.Direction.Opposite(), subjectCategory, c.RelationshipType)
		if err != nil {
			return nil, err
		}
		if degree == *c.LeftValue {
			reciprocal = append(reciprocal, rel)
		}
	}
	if len(reciprocal) == 0 {
		out.passed = false
		return out, nil
	}
	out.related = reciprocal
	return out, nil
}

// resolveRelatedTypes resolves the element type ids a condition's related
// category allows, consulting relationship type rules first and falling back
// to a bare category-label match when none are declared. No category means
// no type filter.
func (e *Evaluator) resolveRelatedTypes(ctx context.Context, subjectCategory string, c *Condition) ([]int64, error) {
	if c.RelatedElement == "" {
		return nil, nil
	}
	ids, err := e.store.CompatibleTypeIDs(ctx, subjectCategory, c.RelatedElement, c.RelationshipType, c.Direction)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}
	return e.store.TypeIDsByCategory(ctx, c.RelatedElement)
}

// resolveAffected picks the occurrences that receive the group's violation
// and annotation.
func (e *Evaluator) resolveAffected(subject *store.ElementInstance, group *Group, first *conditionOutcome) []*store.ElementInstance {
	switch group.PropertyTarget {
	case TargetTargets, TargetSources:
		return first.related
	default:
		return []*store.ElementInstance{subject}
	}
}

// annotate writes the rule's annotation onto one occurrence. Placement
// stacks beneath existing properties; person-like occurrences get the
// annotation centered, everything else left-aligned. Writing is idempotent
// per (rule, occurrence).
func (e *Evaluator) annotate(ctx context.Context, rule *store.DesignRule, sev Severity, instanceID int64) error {
	exists, err := e.store.HasRuleAnnotation(ctx, rule.ID, instanceID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	detail, err := e.store.GetInstanceDetail(ctx, instanceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}

	existing, err := e.store.CountProperties(ctx, instanceID)
	if err != nil {
		return err
	}

	x := detail.X
	if personLikeCategories[strings.ToLower(detail.Element)] {
		x = detail.X + detail.Width/2 - e.cfg.AnnotationWidth/2
	}
	y := detail.Y + detail.Height + float64(existing)*e.cfg.AnnotationRowHeight

	_, err = e.store.CreateProperty(ctx, &store.PropertyInstance{
		InstanceID:   instanceID,
		PropertyName: rule.Name,
		RAGType:      sev.RAG(),
		ImageURL:     annotationIcon(sev.RAG()),
		X:            x,
		Y:            y,
		Source:       store.SourceRulesEngine,
		RuleID:       &rule.ID,
	})
	return err
}

// annotationIcon returns the canvas icon for a RAG color label.
func annotationIcon(rag string) string {
	if rag == "" {
		return ""
	}
	return "/static/icons/rag-" + strings.ToLower(rag) + ".svg"
}

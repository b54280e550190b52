// Package rules implements the design rule evaluation engine: parsing of
// stored condition lists into condition groups, per-occurrence condition
// evaluation against the relationship graph, and the rule evaluator that
// regenerates violations and annotations.
package rules

import (
	"encoding/json"
	"strings"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/store"
)

// Operator is a condition comparison operator. Numeric operators compare the
// related-set cardinality against the right value; OpText checks for a
// case-insensitive substring match in related occurrence names.
type Operator string

const (
	OpEq   Operator = "eq"
	OpGt   Operator = "gt"
	OpLt   Operator = "lt"
	OpGte  Operator = "gte"
	OpLte  Operator = "lte"
	OpText Operator = "text"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpText:
		return true
	}
	return false
}

// Conjunction combines a condition's boolean result with the running group
// result, strictly left to right.
type Conjunction string

const (
	ConjAnd Conjunction = "and"
	ConjOr  Conjunction = "or"
)

// Severity is the label a group emits when it evaluates true. The engine
// attaches no polarity of its own; rule authors choose negative or warning
// to flag problems and positive to mark healthy structure.
type Severity string

const (
	SeverityNegative Severity = "negative"
	SeverityWarning  Severity = "warning"
	SeverityPositive Severity = "positive"
)

// RAG returns the red/amber/green label used for the generated annotation.
func (sev Severity) RAG() string {
	switch sev {
	case SeverityNegative:
		return "Red"
	case SeverityWarning:
		return "Amber"
	case SeverityPositive:
		return "Green"
	}
	return ""
}

// PropertyTarget selects which occurrences receive the violation and
// annotation when a group evaluates true.
type PropertyTarget string

const (
	// TargetSubject attaches to the subject occurrence itself.
	TargetSubject PropertyTarget = "subject"
	// TargetTargets attaches to the related set found by the group's first
	// condition, read as edge targets.
	TargetTargets PropertyTarget = "targets"
	// TargetSources attaches to the related set found by the group's first
	// condition, read as edge sources.
	TargetSources PropertyTarget = "sources"
)

// Condition is one entry of a rule's stored condition list.
type Condition struct {
	Direction        store.Direction `json:"direction"`
	RelationshipType string          `json:"relationship_type,omitempty"`
	RelatedElement   string          `json:"related_element,omitempty"`
	Operator         Operator        `json:"operator"`
	RightValue       int             `json:"right_value"`
	LeftValue        *int            `json:"left_value,omitempty"`
	TextValue        string          `json:"text_value,omitempty"`
	Conjunction      Conjunction     `json:"conjunction,omitempty"`

	// Group framing. NewGroup starts a fresh clause; Severity and
	// PropertyTarget on a group-starting condition apply to the whole group.
	NewGroup       bool           `json:"new_group,omitempty"`
	Severity       Severity       `json:"severity,omitempty"`
	PropertyTarget PropertyTarget `json:"property_target,omitempty"`
}

// Group is one clause of a rule: its conditions combined left to right, the
// severity label emitted when the clause is true, and the target selector
// deciding which occurrences are annotated.
type Group struct {
	Severity       Severity
	PropertyTarget PropertyTarget
	Conditions     []Condition
}

// ParseGroups parses and validates a stored condition list into groups. A new
// group starts at the first condition and at every condition flagged
// new_group. Malformed input yields an invalid-configuration error; the
// caller skips the rule rather than aborting a bulk pass.
func ParseGroups(raw string) ([]Group, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		return nil, nil
	}

	var conditions []Condition
	if err := json.Unmarshal([]byte(raw), &conditions); err != nil {
		return nil, errors.NewInvalidConfigurationf("malformed condition list: %v", err)
	}

	var groups []Group
	for i, c := range conditions {
		if c.Direction != store.DirectionIncoming && c.Direction != store.DirectionOutgoing {
			return nil, errors.NewInvalidConfigurationf(
				"condition %d: direction must be incoming or outgoing, got %q", i, c.Direction)
		}
		if !c.Operator.Valid() {
			return nil, errors.NewInvalidConfigurationf(
				"condition %d: unknown operator %q", i, c.Operator)
		}
		if c.Operator == OpText && c.TextValue == "" {
			return nil, errors.NewInvalidConfigurationf(
				"condition %d: text operator requires a text_value", i)
		}
		if c.Conjunction != "" && c.Conjunction != ConjAnd && c.Conjunction != ConjOr {
			return nil, errors.NewInvalidConfigurationf(
				"condition %d: conjunction must be and or or, got %q", i, c.Conjunction)
		}

		if i == 0 || c.NewGroup {
			target := c.PropertyTarget
			if target == "" {
				target = TargetSubject
			}
			if target != TargetSubject && target != TargetTargets && target != TargetSources {
				return nil, errors.NewInvalidConfigurationf(
					"condition %d: unknown property_target %q", i, c.PropertyTarget)
			}
			if c.Severity != "" && c.Severity.RAG() == "" {
				return nil, errors.NewInvalidConfigurationf(
					"condition %d: unknown severity %q", i, c.Severity)
			}
			groups = append(groups, Group{
				Severity:       c.Severity,
				PropertyTarget: target,
			})
		}
		g := &groups[len(groups)-1]
		g.Conditions = append(g.Conditions, c)
	}
	return groups, nil
}

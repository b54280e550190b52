package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/logger"
	"github.com/modelry/modelry/rules"
	"github.com/modelry/modelry/store"
	"github.com/modelry/modelry/sym"
)

// seedType is a starter palette entry.
type seedType struct {
	name        string
	element     string
	facet       string
	description string
}

// seedRule wires a relationship type rule between two palette entries by name.
type seedRule struct {
	source string
	target string
	kind   string
}

var seedTypes = []seedType{
	{"Capability", "capability", "architecture", "An ability the enterprise needs to deliver its purpose"},
	{"Process", "process", "architecture", "A repeatable sequence of activity"},
	{"Asset", "asset", "architecture", "A resource a process depends on"},
	{"Product", "product", "experience", "Something of value offered to the outside"},
	{"Channel", "channel", "experience", "A route through which products reach people"},
	{"Journey", "journey", "experience", "The path a customer takes through the enterprise"},
	{"Purpose", "purpose", "identity", "Why the enterprise exists"},
	{"Story", "story", "identity", "A narrative the enterprise tells about itself"},
	{"Content", "content", "identity", "Material that expresses the identity"},
	{"People", "people", "organisation", "Individuals and groups doing the work"},
	{"Task", "task", "organisation", "A unit of work assigned to people"},
	{"Organisation", "organisation", "organisation", "A structural unit of the enterprise"},
}

var seedRules = []seedRule{
	{"Capability", "Process", "enables"},
	{"Process", "Asset", "uses"},
	{"Asset", "Process", "supports"},
	{"People", "Process", "performs"},
	{"People", "Task", "does"},
	{"Process", "Product", "creates"},
	{"Product", "Channel", "delivered through"},
	{"Journey", "Channel", "uses"},
	{"Purpose", "Capability", "guides"},
	{"Organisation", "Capability", "owns"},
	{"Story", "People", "involves"},
	{"Content", "Channel", "published on"},
}

func runDbSeed(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	ctx := cmd.Context()

	existing, err := st.ListElementTypes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to inspect element types")
	}
	if len(existing) > 0 {
		fmt.Printf("%s Repository already has %d element type(s), skipping seed\n", sym.DB, len(existing))
		return nil
	}

	typeIDs := make(map[string]int64, len(seedTypes))
	for _, t := range seedTypes {
		created, err := st.CreateElementType(ctx, &store.ElementType{
			Name:        t.name,
			Element:     t.element,
			Facet:       t.facet,
			Description: t.description,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to seed element type %q", t.name)
		}
		typeIDs[t.name] = created.ID
	}

	for _, r := range seedRules {
		_, err := st.CreateRelationshipTypeRule(ctx, &store.RelationshipTypeRule{
			SourceTypeID:     typeIDs[r.source],
			TargetTypeID:     typeIDs[r.target],
			RelationshipType: r.kind,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to seed relationship rule %s -> %s", r.source, r.target)
		}
	}

	ruleCount, err := seedDesignRules(ctx, st)
	if err != nil {
		return err
	}

	st.Audit(ctx, "repository", 0, "seed", fmt.Sprintf("%d types, %d relationship rules, %d design rules",
		len(seedTypes), len(seedRules), ruleCount))

	fmt.Printf("%s Seeded %d element types, %d relationship rules, %d design rules\n",
		sym.DB, len(seedTypes), len(seedRules), ruleCount)
	return nil
}

// seedDesignRules installs a small starter rule set so a fresh repository
// demonstrates violations and RAG annotations out of the box.
func seedDesignRules(ctx context.Context, st *store.Store) (int, error) {
	starter := []struct {
		name        string
		description string
		subject     string
		conditions  []rules.Condition
	}{
		{
			name:        "Process needs two assets",
			description: "Flags processes depending on fewer than two assets",
			subject:     "process",
			conditions: []rules.Condition{{
				Direction:      store.DirectionOutgoing,
				RelatedElement: "asset",
				Operator:       rules.OpLt,
				RightValue:     2,
				Severity:       rules.SeverityNegative,
			}},
		},
		{
			name:        "Well-supported process",
			description: "Marks processes with two or more supporting assets healthy",
			subject:     "process",
			conditions: []rules.Condition{{
				Direction:      store.DirectionOutgoing,
				RelatedElement: "asset",
				Operator:       rules.OpGte,
				RightValue:     2,
				Severity:       rules.SeverityPositive,
			}},
		},
		{
			name:        "Overloaded person",
			description: "Warns when a person performs more than five processes",
			subject:     "people",
			conditions: []rules.Condition{{
				Direction:      store.DirectionOutgoing,
				RelatedElement: "process",
				Operator:       rules.OpGt,
				RightValue:     5,
				Severity:       rules.SeverityWarning,
			}},
		},
	}

	for _, r := range starter {
		raw, err := json.Marshal(r.conditions)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to encode conditions for %q", r.name)
		}
		_, err = st.CreateDesignRule(ctx, &store.DesignRule{
			Name:           r.name,
			Description:    r.description,
			Active:         true,
			SubjectElement: r.subject,
			Conditions:     string(raw),
		})
		if err != nil {
			return 0, errors.Wrapf(err, "failed to seed design rule %q", r.name)
		}
	}
	return len(starter), nil
}

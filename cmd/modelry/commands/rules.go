package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/config"
	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/logger"
	"github.com/modelry/modelry/rules"
	"github.com/modelry/modelry/store"
	"github.com/modelry/modelry/sym"
)

// RulesCmd groups design rule operations.
var RulesCmd = &cobra.Command{
	Use:   "rules",
	Short: sym.Rule + " Inspect and evaluate design rules",
	Long: sym.Rule + ` rules — Design rule evaluation

List design rules, run a single rule, or re-evaluate every active rule.
Evaluation rewrites the rule's violations and RAG annotations.

Examples:
  modelry rules list                # List all design rules
  modelry rules evaluate 3          # Evaluate rule 3 and show its violations
  modelry rules evaluate-all        # Re-evaluate every active rule
  modelry rules violations --rule 3 # Show current violations for rule 3`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List design rules",
	RunE:  runRulesList,
}

var rulesEvaluateCmd = &cobra.Command{
	Use:   "evaluate <rule-id>",
	Short: "Evaluate one design rule and show its violations",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesEvaluate,
}

var rulesEvaluateAllCmd = &cobra.Command{
	Use:   "evaluate-all",
	Short: "Re-evaluate every active design rule",
	RunE:  runRulesEvaluateAll,
}

var rulesViolationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "Show current violations",
	RunE:  runRulesViolations,
}

var violationsRuleFlag int64

func init() {
	RulesCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	rulesViolationsCmd.Flags().Int64Var(&violationsRuleFlag, "rule", 0, "Restrict to one rule id (0 = all rules)")

	RulesCmd.AddCommand(rulesListCmd)
	RulesCmd.AddCommand(rulesEvaluateCmd)
	RulesCmd.AddCommand(rulesEvaluateAllCmd)
	RulesCmd.AddCommand(rulesViolationsCmd)
}

// newEvaluator builds a rule evaluator over an open store using the
// configured annotation geometry.
func newEvaluator(st *store.Store, cfg *config.Config) *rules.Evaluator {
	return rules.New(st, logger.Logger, rules.Config{
		AnnotationRowHeight: cfg.Rules.AnnotationRowHeight,
		AnnotationWidth:     cfg.Rules.AnnotationWidth,
	})
}

func runRulesList(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	list, err := st.ListDesignRules(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to list design rules")
	}

	if len(list) == 0 {
		fmt.Printf("%s No design rules defined\n", sym.Rule)
		return nil
	}

	fmt.Printf("%s Design Rules\n", sym.Rule)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, r := range list {
		state := "inactive"
		if r.Active {
			state = "active"
		}
		fmt.Printf("#%-4d %-10s %-32s subject=%s\n", r.ID, state, r.Name, r.SubjectElement)
	}
	return nil
}

func runRulesEvaluate(cmd *cobra.Command, args []string) error {
	ruleID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.Newf("invalid rule id %q", args[0])
	}

	database, cfg, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	if err := newEvaluator(st, cfg).EvaluateRule(cmd.Context(), ruleID); err != nil {
		return errors.Wrapf(err, "failed to evaluate rule %d", ruleID)
	}

	violations, err := st.ListViolations(cmd.Context(), ruleID)
	if err != nil {
		return errors.Wrap(err, "failed to list violations")
	}

	fmt.Printf("%s Rule %d evaluated: %d violation(s)\n", sym.Rule, ruleID, len(violations))
	printViolations(violations)
	return nil
}

func runRulesEvaluateAll(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	report, err := newEvaluator(st, cfg).EvaluateAllActiveRules(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to evaluate active rules")
	}

	fmt.Printf("%s Evaluated %d active rule(s)\n", sym.Rule, report.Evaluated)
	for _, s := range report.Skipped {
		fmt.Printf("  skipped rule %d: %s\n", s.RuleID, s.Reason)
	}
	return nil
}

func runRulesViolations(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	violations, err := st.ListViolations(cmd.Context(), violationsRuleFlag)
	if err != nil {
		return errors.Wrap(err, "failed to list violations")
	}

	fmt.Printf("%s %d violation(s)\n", sym.Rule, len(violations))
	printViolations(violations)
	return nil
}

func printViolations(violations []*store.Violation) {
	for _, v := range violations {
		glyph := sym.ForRAG(rules.Severity(v.Severity).RAG())
		fmt.Printf("  %s rule=%d occurrence=%d severity=%s current=%d threshold=%d\n",
			glyph, v.RuleID, v.InstanceID, v.Severity, v.CurrentValue, v.ThresholdValue)
	}
}

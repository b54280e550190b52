package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/config"
	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/impact"
	"github.com/modelry/modelry/logger"
	"github.com/modelry/modelry/store"
	"github.com/modelry/modelry/sym"
)

// ImpactCmd groups impact analysis operations.
var ImpactCmd = &cobra.Command{
	Use:   "impact",
	Short: sym.Impact + " Run impact traversals and materialize diagrams",
	Long: sym.Impact + ` impact — Impact analysis

Walk the relationship graph outward from an element occurrence, or
materialize the traversal as a derived impact canvas with radial layout.

Examples:
  modelry impact traverse 42                    # Neighborhood of occurrence 42
  modelry impact traverse 42 --depth 3          # Walk three hops
  modelry impact traverse 42 --direction outgoing --kinds uses,supports
  modelry impact materialize 42 --depth 2       # Create an Impact: canvas`,
}

var impactTraverseCmd = &cobra.Command{
	Use:   "traverse <source-id>",
	Short: "Walk the impact neighborhood of an occurrence",
	Args:  cobra.ExactArgs(1),
	RunE:  runImpactTraverse,
}

var impactMaterializeCmd = &cobra.Command{
	Use:   "materialize <source-id>",
	Short: "Materialize a traversal as a derived impact canvas",
	Args:  cobra.ExactArgs(1),
	RunE:  runImpactMaterialize,
}

var (
	impactDepthFlag     int
	impactDirectionFlag string
	impactKindsFlag     string
	impactCanvasFlag    int64
)

func init() {
	ImpactCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	ImpactCmd.PersistentFlags().IntVar(&impactDepthFlag, "depth", 2, "Maximum traversal depth")
	ImpactCmd.PersistentFlags().StringVar(&impactDirectionFlag, "direction", "both", "Edge direction to follow (incoming, outgoing, both)")
	ImpactCmd.PersistentFlags().StringVar(&impactKindsFlag, "kinds", "", "Comma-separated relationship kinds to follow (empty = all)")
	ImpactCmd.PersistentFlags().Int64Var(&impactCanvasFlag, "canvas", 0, "Require the source to live on this canvas (0 = any)")

	ImpactCmd.AddCommand(impactTraverseCmd)
	ImpactCmd.AddCommand(impactMaterializeCmd)
}

// newAnalyzer builds an impact engine over an open store using the
// configured traversal caps and layout geometry.
func newAnalyzer(st *store.Store, cfg *config.Config) *impact.Engine {
	return impact.New(st, logger.Logger, impact.Config{
		MaxVisited:   cfg.Limits.MaxVisited,
		MaxDepth:     cfg.Limits.MaxTraverseHop,
		MaxCanvases:  cfg.Limits.MaxCanvases,
		MaxInstances: cfg.Limits.MaxInstances,
		RadialStep:   cfg.Impact.RadialStep,
		CenterX:      cfg.Impact.CenterX,
		CenterY:      cfg.Impact.CenterY,
		NodeWidth:    cfg.Impact.NodeWidth,
		NodeHeight:   cfg.Impact.NodeHeight,
	})
}

func parseImpactArgs(args []string) (int64, store.Direction, []string, error) {
	sourceID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", nil, errors.Newf("invalid occurrence id %q", args[0])
	}

	direction := store.Direction(impactDirectionFlag)
	if !direction.Valid() {
		return 0, "", nil, errors.Newf("invalid direction %q", impactDirectionFlag)
	}

	var kinds []string
	for _, k := range strings.Split(impactKindsFlag, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return sourceID, direction, kinds, nil
}

func runImpactTraverse(cmd *cobra.Command, args []string) error {
	sourceID, direction, kinds, err := parseImpactArgs(args)
	if err != nil {
		return err
	}

	database, cfg, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	t, err := newAnalyzer(st, cfg).Traverse(cmd.Context(), sourceID, impactCanvasFlag, impactDepthFlag, direction, kinds)
	if err != nil {
		return errors.Wrapf(err, "traversal from occurrence %d failed", sourceID)
	}

	fmt.Printf("%s Impact of occurrence %d (depth %d, direction %s)\n",
		sym.Impact, sourceID, t.Summary.MaxDepth, direction)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Nodes: %d   Edges: %d\n\n", t.Summary.TotalNodes, t.Summary.TotalEdges)

	for _, n := range t.Nodes {
		fmt.Printf("  depth %d  #%-6d %-24s (%s)\n", n.Depth, n.ID, n.Name, n.Element)
	}

	if len(t.Summary.ByType) > 0 {
		fmt.Printf("\nBy element type:\n")
		printCountMap(t.Summary.ByType)
	}
	if len(t.Summary.ByScope) > 0 {
		fmt.Printf("\nBy enterprise scope:\n")
		printCountMap(t.Summary.ByScope)
	}
	return nil
}

func runImpactMaterialize(cmd *cobra.Command, args []string) error {
	sourceID, direction, kinds, err := parseImpactArgs(args)
	if err != nil {
		return err
	}

	database, cfg, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	result, err := newAnalyzer(st, cfg).MaterializeImpactDiagram(cmd.Context(), sourceID, impactCanvasFlag, impactDepthFlag, direction, kinds)
	if err != nil {
		return errors.Wrapf(err, "failed to materialize impact diagram for occurrence %d", sourceID)
	}

	fmt.Printf("%s Created canvas %d: %s\n", sym.Canvas, result.CanvasID, result.Name)
	fmt.Printf("Nodes: %d   Edges: %d\n", result.Summary.TotalNodes, result.Summary.TotalEdges)
	return nil
}

func printCountMap(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, m[k])
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/cmd/modelry/commands"
	"github.com/modelry/modelry/logger"
)

var rootCmd = &cobra.Command{
	Use:   "modelry",
	Short: "Modelry - enterprise modeling repository",
	Long: `Modelry - typed enterprise modeling with design rules and impact analysis.

Modelry stores element types, relationship type rules, and canvases of
positioned element occurrences, evaluates design rules into violations and
RAG annotations, and materializes impact diagrams from graph traversals.

Available commands:
  server - Start the Modelry HTTP/WebSocket server
  db     - Manage the Modelry database
  rules  - Inspect and evaluate design rules
  impact - Run impact traversals and materialize diagrams
  config - Manage Modelry configuration

Examples:
  modelry server                    # Start the API server
  modelry db stats                  # Show repository statistics
  modelry db seed                   # Load the starter modeling palette
  modelry rules evaluate-all        # Re-evaluate every active design rule
  modelry impact traverse 42        # Walk the impact neighborhood of occurrence 42`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.RulesCmd)
	rootCmd.AddCommand(commands.ImpactCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

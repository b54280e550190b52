package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/logger"
	"github.com/modelry/modelry/store"
	"github.com/modelry/modelry/sym"
)

// DbCmd represents the db (database) command.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the Modelry database",
	Long: sym.DB + ` db — Manage Modelry database operations

Manage database operations including statistics, the starter modeling
palette, migrations, and maintenance.

Examples:
  modelry db stats                # Show per-table row counts
  modelry db migrate              # Apply pending schema migrations
  modelry db seed                 # Load the starter element type palette
  modelry db cleanup-duplicates   # Remove duplicate property instances
  modelry db audit --limit 10     # Show the 10 most recent audit entries`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the starter element type palette and relationship rules",
	RunE:  runDbSeed,
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup-duplicates",
	Short: "Remove duplicate property instances",
	Long:  "Delete property instances that duplicate another property of the same occurrence by name and value, keeping the oldest copy.",
	RunE:  runDbCleanup,
}

var dbAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit trail entries",
	RunE:  runDbAudit,
}

var (
	dbPathFlag     string
	auditLimitFlag int
)

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	dbAuditCmd.Flags().IntVar(&auditLimitFlag, "limit", 20, "Number of recent audit entries to show")

	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbSeedCmd)
	DbCmd.AddCommand(dbCleanupCmd)
	DbCmd.AddCommand(dbAuditCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to gather statistics")
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	tables := make([]string, 0, len(stats))
	for table := range stats {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("%-28s %d\n", table, stats[table])
	}
	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase always migrates; this command exists to do it explicitly.
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("%s Migrations applied\n", sym.DB)
	return nil
}

func runDbCleanup(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	removed, err := st.RemoveDuplicateProperties(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to remove duplicate properties")
	}

	fmt.Printf("%s Removed %d duplicate property instance(s)\n", sym.DB, removed)
	return nil
}

func runDbAudit(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database, logger.Logger)
	entries, err := st.ListAuditEntries(cmd.Context(), auditLimitFlag)
	if err != nil {
		return errors.Wrap(err, "failed to list audit entries")
	}

	if len(entries) == 0 {
		fmt.Printf("%s No audit entries\n", sym.Audit)
		return nil
	}

	fmt.Printf("%s Recent Audit Entries (last %d)\n", sym.Audit, auditLimitFlag)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, e := range entries {
		fmt.Printf("%s  %-14s %-12s #%-6d %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Entity, e.Action, e.EntityID, e.Detail)
	}
	return nil
}

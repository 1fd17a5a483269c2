package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/username/ledgerdesk/backend/src/database"
	"github.com/username/ledgerdesk/backend/src/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the submission journal migrations",
	Example: `  ledgerdesk migrate
  ledgerdesk migrate --database ./data/ledgerdesk.db`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("database", "", "SQLite database path (default: DATABASE_PATH or ./ledgerdesk.db)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger.InitLogger(level)

	path, _ := cmd.Flags().GetString("database")
	if path == "" {
		path = os.Getenv("DATABASE_PATH")
	}
	if path == "" {
		path = "./ledgerdesk.db"
	}

	db, err := database.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	version, dirty, err := database.MigrationVersion(db)
	if err != nil {
		return fmt.Errorf("could not read migration version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t) at %s\n", version, dirty, path)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/database/postgres"
	"github.com/cadetops/muster/internal/roster"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import units and cadets from the legacy MySQL roster",
	Long: `Import the unit and cadet roster from the legacy MySQL system.
The import is idempotent: units are matched on code and cadets on
service number, so re-running it updates names without duplicating rows.
Set ROSTER_MYSQL_DSN (or pass --dsn) to point at the legacy database.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("dsn", "", "Legacy MySQL DSN (defaults to ROSTER_MYSQL_DSN)")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dsn := mustGetString(cmd, "dsn")
	if dsn == "" {
		dsn = cfg.Roster.MySQLDSN
	}
	if dsn == "" {
		return errors.New("legacy roster DSN is required (--dsn or ROSTER_MYSQL_DSN)")
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	cadetRepo := postgres.NewCadetRepository(postgres.GetGlobalPool())

	fmt.Println("Connecting to legacy roster database...")
	legacy, err := roster.NewPool(dsn)
	if err != nil {
		return fmt.Errorf("connecting to legacy roster: %w", err)
	}
	defer legacy.Close()

	units, cadets, err := roster.Import(context.Background(), legacy, cadetRepo)
	if err != nil {
		return fmt.Errorf("importing roster: %w", err)
	}

	fmt.Printf("Imported %d units and %d cadets\n", units, cadets)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/database/postgres"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage attendance sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active attendance sessions",
	RunE:  runSessionsList,
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close an attendance session, or all expired ones",
	Long: `Close an attendance session by ID (--id), or close every active
session dated before today (--expired). Closed sessions stop accepting
face probes.`,
	RunE: runSessionsClose,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)

	sessionsCloseCmd.Flags().Int64("id", 0, "Session ID to close")
	sessionsCloseCmd.Flags().Bool("expired", false, "Close all active sessions dated before today")
}

func sessionStore() (*postgres.SessionRepository, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return postgres.NewSessionRepository(postgres.GetGlobalPool()), nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := sessionStore()
	if err != nil {
		return err
	}

	sessions, err := store.ListActive(context.Background())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%6d  %-10s  %s  unit %d  %s\n",
			s.ID, s.SessionType, s.Date.Format("2006-01-02"), s.UnitID, s.Title)
	}
	return nil
}

func runSessionsClose(cmd *cobra.Command, args []string) error {
	id := mustGetInt64(cmd, "id")
	expired := mustGetBool(cmd, "expired")

	if (id == 0 && !expired) || (id != 0 && expired) {
		return errors.New("exactly one of --id or --expired is required")
	}

	store, err := sessionStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if expired {
		today := time.Now().Truncate(24 * time.Hour)
		closed, err := store.CloseExpired(ctx, today)
		if err != nil {
			return fmt.Errorf("closing expired sessions: %w", err)
		}
		fmt.Printf("Closed %d expired sessions\n", closed)
		return nil
	}

	if err := store.Close(ctx, id); err != nil {
		return fmt.Errorf("closing session %d: %w", id, err)
	}
	fmt.Printf("Session %d closed\n", id)
	return nil
}

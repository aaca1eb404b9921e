package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/cwatch/internal/config"
	"github.com/emiliopalmerini/cwatch/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Applies pending schema migrations to the local store and, when a
remote database is configured, to the remote store as well.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Opening the local store applies its migrations.
	local, err := storage.OpenSQLite(cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("migrating local store: %w", err)
	}
	defer local.Close()
	fmt.Printf("local store up to date: %s\n", cfg.LocalDBPath)

	if !cfg.HasPrimary() {
		return nil
	}

	primary, err := storage.OpenTurso(cfg.DatabaseURL, cfg.AuthToken)
	if err != nil {
		return fmt.Errorf("connecting to remote store: %w", err)
	}
	defer primary.Close()

	if err := storage.MigrateDB(ctx, primary.DB()); err != nil {
		return fmt.Errorf("migrating remote store: %w", err)
	}
	fmt.Println("remote store up to date")

	return nil
}

package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/cmd/common"
	"github.com/chirino/student-memory-service/internal/config"
	registrymigrate "github.com/chirino/student-memory-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: common.DatastoreFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// The command exists to migrate; --db-migrate-at-start only gates serve.
			cfg.DatastoreMigrateAtStart = true
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "db", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}

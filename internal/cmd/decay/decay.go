package decay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/temporal-memory-store/internal/config"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/service"

	// Import store plugins to trigger init() registration.
	_ "github.com/chirino/temporal-memory-store/internal/plugin/store/postgres"
	_ "github.com/chirino/temporal-memory-store/internal/plugin/store/sqlite"
)

// Command returns the decay sub-command: a one-shot decay cycle outside
// the background scheduler, for operator-triggered or cron-driven sweeps.
func Command() *cli.Command {
	var orgID, userID string
	var dryRun bool
	var batchSize int
	return &cli.Command{
		Name:  "decay",
		Usage: "Run one decay/eviction cycle and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("MEMORY_STORE_DB_URL"),
				Usage:    "Database connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("MEMORY_STORE_DB_KIND"),
				Usage:   "Store backend (postgres|sqlite)",
				Value:   "postgres",
			},
			&cli.StringFlag{
				Name:        "organization-id",
				Destination: &orgID,
				Usage:       "Scope the cycle to a single organization; omit for a store-wide sweep",
			},
			&cli.StringFlag{
				Name:        "user-id",
				Destination: &userID,
				Usage:       "Scope the cycle to a single user within --organization-id",
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Destination: &dryRun,
				Usage:       "Report what would be deleted without deleting it",
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Destination: &batchSize,
				Usage:       "Override the configured decay scan/delete batch size",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			if err := cfg.ApplyFromEnv(); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)

			storeLoader, err := registrystore.Select(cfg.DatastoreType)
			if err != nil {
				return err
			}
			store, err := storeLoader(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			defer store.Close()

			scope := registrystore.DecayScope{}
			if strings.TrimSpace(orgID) != "" {
				scope.OrganizationID = &orgID
				if strings.TrimSpace(userID) != "" {
					scope.UserID = &userID
				}
			}

			decaySvc := service.NewDecayService(store, &cfg)
			report, err := decaySvc.Run(ctx, scope, dryRun, batchSize)
			if err != nil {
				return fmt.Errorf("decay cycle failed: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				log.Error("failed to encode decay report", "err", err)
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/tonefinance/sectorvault/internal/audit"
	"github.com/tonefinance/sectorvault/internal/config"
	"github.com/tonefinance/sectorvault/internal/database"
	"github.com/tonefinance/sectorvault/internal/logging"
	"github.com/tonefinance/sectorvault/internal/reconciler"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("sectorvault failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sectorvault",
		Usage: "sector vault fulfillment reconciler and tooling",
		Commands: []*cli.Command{
			reconcileCommand(),
			simulateCommand(),
			pricesCommand(),
			depositorsCommand(),
			migrateCommand(),
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "watch the configured vaults and fulfill their requests",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runReconcile(c.Context, cfg)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the embedded Postgres migrations",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := openDatabase(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			pool.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}

// loadConfig reads the environment and installs the configured logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// openDatabase connects to Postgres and applies pending migrations.
func openDatabase(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, url)
	if err != nil {
		return nil, err
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return pool, nil
}

// newRecorder picks the audit backend: Postgres when connected, SQLite when a path is
// set, nothing otherwise.
func newRecorder(cfg config.Config, pool *pgxpool.Pool) (audit.Recorder, error) {
	switch {
	case pool != nil:
		return audit.NewPgRecorder(pool), nil
	case cfg.SQLitePath != "":
		return audit.NewSQLiteRecorder(cfg.SQLitePath)
	default:
		return audit.Noop{}, nil
	}
}

func targetsFromConfig(vaults []config.VaultConfig) []reconciler.Target {
	return lo.Map(vaults, func(v config.VaultConfig, _ int) reconciler.Target {
		return reconciler.Target{Name: v.Name, Address: common.HexToAddress(v.Address)}
	})
}

func txConfig(cfg config.Config) reconciler.TxConfig {
	return reconciler.TxConfig{
		GasLimit:       cfg.GasLimit,
		ReceiptTimeout: cfg.TxReceiptTimeout,
		PollInterval:   cfg.TxPollInterval,
	}
}

func serviceOptions(cfg config.Config) reconciler.Options {
	return reconciler.Options{
		PollInterval:    cfg.PollInterval,
		RescanInterval:  cfg.RescanInterval,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

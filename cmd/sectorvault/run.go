package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tonefinance/sectorvault/internal/api"
	"github.com/tonefinance/sectorvault/internal/config"
	"github.com/tonefinance/sectorvault/internal/export"
	"github.com/tonefinance/sectorvault/internal/external"
	"github.com/tonefinance/sectorvault/internal/portfolio"
	"github.com/tonefinance/sectorvault/internal/reconciler"
	"github.com/tonefinance/sectorvault/internal/snapshot"
	"github.com/tonefinance/sectorvault/internal/worker"
)

// stack is everything a reconciler process runs against one chain client.
type stack struct {
	client  reconciler.Client
	tx      *reconciler.Transactor
	targets []reconciler.Target
	pool    *pgxpool.Pool
	// workers run next to the reconciler and stop when ctx is cancelled.
	workers []func(context.Context)
}

func runReconcile(ctx context.Context, cfg config.Config) error {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}
	defer client.Close()

	key, err := reconciler.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}
	tx, err := reconciler.NewTransactor(ctx, client, key, txConfig(cfg))
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	targets := targetsFromConfig(cfg.Vaults)
	slog.Info("Reconciler: configured",
		"fulfiller", tx.From().Hex(),
		"vaults", lo.Map(targets, func(t reconciler.Target, _ int) string { return t.Name }),
		"rpc", cfg.RPCURL)

	return runStack(ctx, cfg, stack{client: client, tx: tx, targets: targets, pool: pool})
}

// runStack runs the reconciler service, the snapshot worker and status API when a
// database is connected, and any extra workers. It returns when ctx is cancelled or
// a component fails.
func runStack(ctx context.Context, cfg config.Config, s stack) error {
	recorder, err := newRecorder(cfg, s.pool)
	if err != nil {
		return err
	}
	defer recorder.Close()

	svc := reconciler.NewService(s.client, s.tx, recorder, s.targets, serviceOptions(cfg))

	var (
		snapshotWorker *worker.SnapshotWorker
		srv            *http.Server
	)
	if s.pool != nil {
		snapshots, err := newSnapshotService(ctx, cfg, s)
		if err != nil {
			return err
		}
		snapshotWorker, err = worker.NewSnapshotWorker(snapshots, cfg.SnapshotCron)
		if err != nil {
			return err
		}
		if cfg.HTTPPort != "" {
			if cfg.AdminAPIKey == "" {
				slog.Warn("ADMIN_API_KEY not set, generate endpoint is unprotected")
			}
			srv = api.NewServer(cfg.HTTPPort, snapshots, svc, external.NewPgQuoteRepository(s.pool), cfg.AdminAPIKey)
		}
	} else if cfg.HTTPPort != "" {
		slog.Warn("HTTP_PORT set without DATABASE_URL, status API disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })

	workers := s.workers
	if snapshotWorker != nil {
		workers = append(workers, snapshotWorker.Run)
	}
	for _, run := range workers {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	if srv != nil {
		g.Go(func() error {
			slog.Info("HTTP server listening", "port", cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func newSnapshotService(ctx context.Context, cfg config.Config, s stack) (*snapshot.Service, error) {
	var exporters []snapshot.Exporter
	if cfg.SheetsSpreadsheetID != "" {
		sheets, err := export.NewSheetsWriter(ctx, cfg.SheetsSpreadsheetID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, sheets)
	}

	vaults := lo.Map(s.targets, func(t reconciler.Target, _ int) snapshot.Vault {
		return snapshot.NewVault(t.Name, t.Address)
	})
	svc := snapshot.NewService(portfolio.NewService(s.client), snapshot.NewPgRepository(s.pool), vaults, exporters...)
	if err := svc.Register(ctx); err != nil {
		return nil, fmt.Errorf("registering vaults: %w", err)
	}
	return svc, nil
}

// Package bootstrap opens the configured ledger and account stores and
// assembles the provenance service shared by ledgerd and ledgerctl.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/config"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/service"
	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App bundles the opened stores and the service built on them.
type App struct {
	Ledger   *ledger.Ledger
	Accounts *accounts.Directory
	Service  *service.ProvenanceService

	pool   *pgxpool.Pool
	badger *badger.DB
	file   *ledger.FileStore
}

// Open connects the configured backend, loads (or initialises) the chain and
// seeds the account directory.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{}

	var (
		store ledger.Store
		repo  accounts.Repository
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		app.pool = pool
		store = ledger.NewPostgresStore(pool, logger)
		repo = accounts.NewPostgresRepository(pool)
	case config.DriverBadger:
		db, err := ledger.OpenBadger(cfg.Storage.BadgerDir)
		if err != nil {
			return nil, err
		}
		app.badger = db
		store = ledger.NewBadgerStore(db, logger)
		repo = accounts.NewFileRepository(cfg.Storage.AccountsPath)
		logger.Info("using badger storage",
			zap.String("ledger", cfg.Storage.BadgerDir),
			zap.String("accounts", cfg.Storage.AccountsPath),
		)
	default:
		fs, err := ledger.OpenFileStore(cfg.Storage.LedgerPath)
		if err != nil {
			return nil, err
		}
		app.file = fs
		store = fs
		repo = accounts.NewFileRepository(cfg.Storage.AccountsPath)
		logger.Info("using file storage",
			zap.String("ledger", cfg.Storage.LedgerPath),
			zap.String("accounts", cfg.Storage.AccountsPath),
		)
	}

	l, err := ledger.Open(ctx, store,
		ledger.WithCapacity(cfg.Ledger.Capacity),
		ledger.WithVerifyOnLoad(cfg.Ledger.VerifyOnLoad),
		ledger.WithLogger(logger.Named("ledger")),
	)
	if err != nil {
		app.Close()
		return nil, err
	}

	scheme, err := accounts.ParseScheme(cfg.Accounts.Scheme)
	if err != nil {
		app.Close()
		return nil, err
	}
	dir := accounts.NewDirectory(repo, logger.Named("accounts"))
	dir.SetScheme(scheme)
	if err := dir.Seed(ctx, cfg.Accounts.Seed); err != nil {
		app.Close()
		return nil, fmt.Errorf("seed accounts: %w", err)
	}

	app.Ledger = l
	app.Accounts = dir
	app.Service = service.NewProvenanceService(l, dir, logger)
	return app, nil
}

// Close releases the database pool, the Badger database or the ledger file
// lock, whichever the driver opened.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.badger != nil {
		_ = a.badger.Close()
	}
	if a.file != nil {
		_ = a.file.Close()
	}
}

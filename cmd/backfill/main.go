// Command backfill loads the historical transfer record of the configured
// tokens into storage.
//
// Usage:
//
//	backfill --token=ALL
//	backfill --token=USDT --storage=memory
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"token-backfill/internal/chaindata"
	"token-backfill/internal/chainrpc"
	"token-backfill/internal/config"
	"token-backfill/internal/domain"
	"token-backfill/internal/ingestion"
	"token-backfill/internal/logger"
	"token-backfill/internal/observability"
	"token-backfill/internal/orchestrator"
	"token-backfill/internal/registry"
	"token-backfill/internal/storage"
	chstore "token-backfill/internal/storage/clickhouse"
	"token-backfill/internal/storage/memory"
	"token-backfill/internal/storage/migrations"
	mysqlstore "token-backfill/internal/storage/mysql"
	pgstore "token-backfill/internal/storage/postgres"
)

const pushTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args, liveDeps{}))
}

// stores bundles the storage of one run.
type stores struct {
	Transactions storage.TransactionStore
	Progress     storage.ProgressStore
	Close        func()
}

// deps opens the network and database collaborators of a run. Nothing in
// it is called before configuration and the token selector are validated.
type deps interface {
	OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error)
	NewTransferSource(cfg *config.Config, log *logger.Logger) chaindata.TransferSource
	DialHead(ctx context.Context, cfg *config.Config) (chainrpc.HeadResolver, func(), error)
}

// run executes the CLI and returns the process exit code.
func run(args []string, d deps) int {
	app := &cli.App{
		Name:  "backfill",
		Usage: "Backfill historical token transfers into storage",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "Token symbol to sync, or ALL", Required: true},
			&cli.StringFlag{Name: "storage", Aliases: []string{"s"}, Usage: "Storage backend: postgres, mysql, clickhouse or memory"},
			&cli.IntFlag{Name: "chunk-size", Usage: "Records committed per database transaction"},
			&cli.IntFlag{Name: "page-size", Usage: "Records requested per API page"},
			&cli.StringFlag{Name: "tokens-file", Aliases: []string{"f"}, Usage: "Token registry YAML file"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return backfill(c, d)
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		return 1
	}
	return 0
}

func backfill(c *cli.Context, d deps) error {
	// Load configuration from environment variables
	cfg := config.LoadConfig()

	// Override with flags if set
	if c.IsSet("storage") {
		cfg.StorageBackend = c.String("storage")
	}
	if c.IsSet("chunk-size") {
		cfg.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("tokens-file") {
		cfg.TokensFile = c.String("tokens-file")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	reg, err := registry.Load(cfg.TokensFile)
	if err != nil {
		return err
	}
	selector := c.String("token")
	if _, err := reg.Select(selector); err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := d.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var head chainrpc.HeadResolver
	if registry.IsSelectAll(selector) {
		h, closeHead, err := d.DialHead(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeHead()
		head = h
	}

	persister := ingestion.NewPersister(st.Transactions, ingestion.PersisterOptions{
		ChunkSize: cfg.ChunkSize,
		Logger:    log,
	})
	orch := orchestrator.New(orchestrator.Options{
		Registry: reg,
		Syncer: ingestion.NewBackfiller(ingestion.BackfillOptions{
			Source:    d.NewTransferSource(cfg, log),
			Persister: persister,
			Logger:    log,
		}),
		Head:     head,
		Progress: ingestion.NewProgressTracker(st.Progress, cfg.ChainID, log),
		Logger:   log,
	})

	_, runErr := orch.Run(ctx, selector)
	pushMetrics(cfg, log)
	return runErr
}

// pushMetrics sends the run's metrics to the Pushgateway, if configured.
// The run outcome does not depend on it.
func pushMetrics(cfg *config.Config, log *logger.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := observability.DefaultMetrics.Push(ctx, cfg.PushgatewayURL, "token_backfill"); err != nil {
		log.Warnw("metrics push failed", "url", cfg.PushgatewayURL, "error", err)
	}
}

// liveDeps opens real databases and network clients.
type liveDeps struct{}

func (liveDeps) OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return &stores{
			Transactions: pgstore.NewTransactionStore(pool),
			Progress:     pgstore.NewProgressStore(pool),
			Close:        pool.Close,
		}, nil

	case config.BackendMySQL:
		db, err := mysqlstore.Open(ctx, cfg.MySQLDSN, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return &stores{
			Transactions: mysqlstore.NewTransactionStore(db),
			Progress:     mysqlstore.NewProgressStore(db),
			Close:        func() { _ = db.Close() },
		}, nil

	case config.BackendClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return &stores{
			Transactions: chstore.NewTransactionStore(conn),
			Progress:     chstore.NewProgressStore(conn),
			Close:        func() { _ = conn.Close() },
		}, nil

	case config.BackendMemory:
		log.Warnw("using in-memory storage; nothing will be persisted")
		return &stores{
			Transactions: memory.NewTransactionStore(),
			Progress:     memory.NewProgressStore(),
			Close:        func() {},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrConfiguration, cfg.StorageBackend)
}

func (liveDeps) NewTransferSource(cfg *config.Config, log *logger.Logger) chaindata.TransferSource {
	return chaindata.NewClient(cfg.APIKey, cfg.ChainID,
		chaindata.WithBaseURL(cfg.APIURL),
		chaindata.WithPageSize(cfg.PageSize),
		chaindata.WithRateLimit(cfg.RateLimit),
		chaindata.WithLogger(log),
	)
}

func (liveDeps) DialHead(ctx context.Context, cfg *config.Config) (chainrpc.HeadResolver, func(), error) {
	client, err := chainrpc.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

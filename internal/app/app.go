package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/identity"
	"github.com/yungbote/legisgraph/internal/ingest"
	"github.com/yungbote/legisgraph/internal/observability"
	"github.com/yungbote/legisgraph/internal/platform/envutil"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// Options override configuration read from the environment.
type Options struct {
	BatchSize int
	DryRun    bool
	// EnvFiles are loaded before the environment is read. Defaults to ".env".
	EnvFiles []string
	// DurableSpool rejects SPOOL_BACKEND=memory. Commands that settle input before its
	// records are committed need a spool that outlives the process.
	DurableSpool bool
}

// ErrVolatileSpool is returned by New when a durable spool was required and the configured
// one lives in process memory.
var ErrVolatileSpool = errors.New("app: SPOOL_BACKEND=memory does not survive a restart; use redis or sql")

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Engine  *graph.Engine
	Store   graph.Store
	Neo4j   *graph.Neo4jStore
	Spool   ingest.Spool
	Metrics *observability.Metrics

	closers []closer
}

func New(ctx context.Context, opts Options) (*App, error) {
	if err := envutil.Load(opts.EnvFiles...); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	cfg := LoadConfig()
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	cfg.DryRun = cfg.DryRun || opts.DryRun

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, err
	}
	if opts.DurableSpool && cfg.SpoolBackend == SpoolMemory {
		log.Sync()
		return nil, ErrVolatileSpool
	}

	a := &App{Log: log, Cfg: cfg}
	a.Metrics = observability.Init(log)
	a.closers = append(a.closers, observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "legisgraph",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	}))

	aliases, err := identity.LoadAliasesFile(cfg.PartyAliasesFile)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Engine = graph.NewEngine(log, aliases)

	store, neo, closers, err := wireStore(log, cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store, a.Neo4j = store, neo
	a.closers = append(a.closers, closers...)

	spool, closers, err := wireSpool(log, cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Spool = spool
	a.closers = append(a.closers, closers...)

	log.Info("app wired",
		"dry_run", cfg.DryRun,
		"batch_size", cfg.BatchSize,
		"spool", spool.Name(),
		"neo4j_uri", cfg.Neo4j.URI,
	)
	return a, nil
}

// NewRouter starts a new ingestion run over the app's store and spool.
func (a *App) NewRouter() *ingest.Router {
	return ingest.NewRouter(a.Log, a.Engine, a.Store, ingest.RouterConfig{
		BatchSize: a.Cfg.BatchSize,
		Spool:     a.Spool,
		Metrics:   a.Metrics,
	})
}

// Close releases clients in reverse wiring order.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}

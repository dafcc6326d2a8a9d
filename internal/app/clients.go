package app

import (
	"context"
	"fmt"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/ingest"
	"github.com/yungbote/legisgraph/internal/platform/logger"
	"github.com/yungbote/legisgraph/internal/platform/neo4jdb"
	"github.com/yungbote/legisgraph/internal/platform/redisdb"
	"github.com/yungbote/legisgraph/internal/platform/sqldb"
)

type closer func(ctx context.Context) error

// wireStore returns the Neo4j store, or an in-memory one for dry runs.
func wireStore(log *logger.Logger, cfg Config) (graph.Store, *graph.Neo4jStore, []closer, error) {
	if cfg.DryRun {
		log.Info("dry run: writing to in-memory graph")
		return graph.NewMemStore(), nil, nil, nil
	}
	client, err := neo4jdb.New(log, cfg.Neo4j)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init neo4j: %w", err)
	}
	store := graph.NewNeo4jStore(client, log)
	return store, store, []closer{client.Close}, nil
}

func wireSpool(log *logger.Logger, cfg Config) (ingest.Spool, []closer, error) {
	switch cfg.SpoolBackend {
	case SpoolRedis:
		rdb, err := redisdb.New(log, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis spool: %w", err)
		}
		closeRedis := func(context.Context) error { return rdb.Close() }
		return ingest.NewRedisSpool(rdb, cfg.SpoolPrefix, log), []closer{closeRedis}, nil
	case SpoolSQL:
		db, err := sqldb.Open(log, cfg.SpoolSQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init sql spool: %w", err)
		}
		closeDB := func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		spool, err := ingest.NewSQLSpool(db, log)
		if err != nil {
			_ = closeDB(context.Background())
			return nil, nil, err
		}
		return spool, []closer{closeDB}, nil
	default:
		return ingest.NewMemorySpool(), nil, nil
	}
}

package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/legisgraph/internal/ingest"
	"github.com/yungbote/legisgraph/internal/platform/envutil"
	"github.com/yungbote/legisgraph/internal/platform/neo4jdb"
	"github.com/yungbote/legisgraph/internal/platform/redisdb"
	"github.com/yungbote/legisgraph/internal/source"
)

const (
	SpoolMemory = "memory"
	SpoolRedis  = "redis"
	SpoolSQL    = "sql"
)

type Config struct {
	LogMode          string
	Environment      string
	Version          string
	BatchSize        int
	DryRun           bool
	SpoolBackend     string
	SpoolPrefix      string
	SpoolSQLDSN      string
	PartyAliasesFile string
	MetricsAddr      string

	Neo4j neo4jdb.Config
	Redis redisdb.Config
	AMQP  source.AMQPConfig
}

func LoadConfig() Config {
	return Config{
		LogMode:          envutil.String("LOG_MODE", "development"),
		Environment:      envutil.String("APP_ENV", "development"),
		Version:          envutil.String("APP_VERSION", ""),
		BatchSize:        envutil.Int("INGEST_BATCH_SIZE", ingest.DefaultBatchSize),
		SpoolBackend:     strings.ToLower(envutil.String("SPOOL_BACKEND", SpoolMemory)),
		SpoolPrefix:      envutil.String("SPOOL_PREFIX", "legisgraph:spool"),
		SpoolSQLDSN:      envutil.String("SPOOL_SQL_DSN", ""),
		PartyAliasesFile: envutil.String("PARTY_ALIASES_FILE", ""),
		MetricsAddr:      envutil.String("METRICS_ADDR", ""),
		Neo4j:            neo4jdb.ConfigFromEnv(),
		Redis:            redisdb.ConfigFromEnv(),
		AMQP:             source.AMQPConfigFromEnv(),
	}
}

func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("app: INGEST_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	switch c.SpoolBackend {
	case SpoolMemory:
	case SpoolRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("app: SPOOL_BACKEND=redis requires REDIS_ADDR")
		}
	case SpoolSQL:
		if strings.TrimSpace(c.SpoolSQLDSN) == "" {
			return fmt.Errorf("app: SPOOL_BACKEND=sql requires SPOOL_SQL_DSN")
		}
	default:
		return fmt.Errorf("app: unknown SPOOL_BACKEND %q", c.SpoolBackend)
	}
	if !c.DryRun && strings.TrimSpace(c.Neo4j.URI) == "" {
		return fmt.Errorf("app: NEO4J_URI is required unless running dry")
	}
	return nil
}

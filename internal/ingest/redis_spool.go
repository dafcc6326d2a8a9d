package ingest

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

const defaultSpoolPrefix = "legisgraph:spool"

// RedisSpool keeps one list per kind under "<prefix>:<kind>". Entries that cannot be
// decoded on Take are moved to "<prefix>:<kind>:dead".
type RedisSpool struct {
	rdb    goredis.Cmdable
	prefix string
	log    *logger.Logger
}

func NewRedisSpool(rdb goredis.Cmdable, prefix string, log *logger.Logger) *RedisSpool {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultSpoolPrefix
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisSpool{rdb: rdb, prefix: prefix, log: log.With("service", "RedisSpool")}
}

func (s *RedisSpool) Name() string { return "redis" }

func (s *RedisSpool) key(kind domain.Kind) string {
	return s.prefix + ":" + string(kind)
}

func (s *RedisSpool) deadKey(kind domain.Kind) string {
	return s.key(kind) + ":dead"
}

func (s *RedisSpool) Put(ctx context.Context, b Batch) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("ingest: redis spool not initialized")
	}
	raw, err := marshalBatch(b)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.key(b.Kind), raw).Err(); err != nil {
		return fmt.Errorf("ingest: redis spool put %s: %w", b.ID, err)
	}
	return nil
}

func (s *RedisSpool) Take(ctx context.Context, kind domain.Kind) ([]Batch, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("ingest: redis spool not initialized")
	}
	key := s.key(kind)
	pipe := s.rdb.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ingest: redis spool take %s: %w", kind, err)
	}

	var out []Batch
	for _, raw := range items.Val() {
		b, err := unmarshalBatch([]byte(raw))
		if err != nil {
			s.log.Error("undecodable spooled batch moved aside", "key", s.deadKey(kind), "error", err)
			if derr := s.rdb.RPush(ctx, s.deadKey(kind), raw).Err(); derr != nil {
				s.log.Error("dead-letter push failed", "key", s.deadKey(kind), "error", derr)
			}
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

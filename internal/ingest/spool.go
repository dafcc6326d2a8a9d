package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// Batch is a detached buffer sequence whose transaction failed.
type Batch struct {
	ID        string
	Kind      domain.Kind
	Records   []domain.Record
	Error     string
	SpooledAt time.Time
}

func newBatch(kind domain.Kind, recs []domain.Record, cause error) Batch {
	b := Batch{
		ID:        uuid.NewString(),
		Kind:      kind,
		Records:   recs,
		SpooledAt: time.Now().UTC(),
	}
	if cause != nil {
		b.Error = cause.Error()
	}
	return b
}

// Spool keeps failed batches until they are retried. Take removes and returns every
// batch of the kind, oldest first.
type Spool interface {
	Name() string
	Put(ctx context.Context, b Batch) error
	Take(ctx context.Context, kind domain.Kind) ([]Batch, error)
}

// MemorySpool holds failed batches in process. The buffer retries them ahead of newer
// records on the kind's next flush.
type MemorySpool struct {
	mu      sync.Mutex
	batches map[domain.Kind][]Batch
}

func NewMemorySpool() *MemorySpool {
	return &MemorySpool{batches: make(map[domain.Kind][]Batch)}
}

func (s *MemorySpool) Name() string { return "memory" }

func (s *MemorySpool) Put(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.Kind] = append(s.batches[b.Kind], b)
	return nil
}

func (s *MemorySpool) Take(ctx context.Context, kind domain.Kind) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.batches[kind]
	delete(s.batches, kind)
	return out, nil
}

// Size returns the number of spooled batches of kind and the records they hold.
func (s *MemorySpool) Size(kind domain.Kind) (batches, records int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches[kind] {
		records += len(b.Records)
	}
	return len(s.batches[kind]), records
}

// Len returns the number of spooled batches of kind.
func (s *MemorySpool) Len(kind domain.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches[kind])
}

// ReplayResult counts what Replay re-drove.
type ReplayResult struct {
	Batches int
	Records int
	Failed  int
}

// Replay writes every spooled batch again, one transaction per batch, in BatchedKinds
// order. A batch that fails again goes back to the spool. Records the engine rejects on
// their own are split off into a batch of their own so the rest of their batch is written. Writes are idempotent, so a batch
// that had partly reached the store before is safe to resend.
func Replay(ctx context.Context, log *logger.Logger, engine *graph.Engine, store graph.Store, spool Spool) (ReplayResult, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("service", "SpoolReplay", "spool", spool.Name())

	var (
		res  ReplayResult
		errs []error
	)
	for _, kind := range BatchedKinds {
		batches, err := spool.Take(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("ingest: take %s batches: %w", kind, err))
			continue
		}
		for i, b := range batches {
			if err := ctx.Err(); err != nil {
				errs = append(errs, requeue(ctx, spool, batches[i:], err)...)
				break
			}
			recs, bad, cause := splitUnwritable(engine, b.Records)
			if len(bad) > 0 {
				res.Failed++
				log.Warn("spooled batch holds unwritable records", "batch_id", b.ID, "kind", kind, "records", len(bad), "error", cause)
				if perr := spool.Put(ctx, newBatch(kind, bad, cause)); perr != nil {
					errs = append(errs, fmt.Errorf("ingest: respool %s: %w", b.ID, errors.Join(cause, perr)))
				} else {
					errs = append(errs, fmt.Errorf("ingest: replay %s: %w", b.ID, cause))
				}
				if len(recs) == 0 {
					continue
				}
				b.Records = recs
			}
			if err := engine.Apply(ctx, store, b.Records...); err != nil {
				res.Failed++
				log.Warn("spooled batch failed again", "batch_id", b.ID, "kind", kind, "records", len(b.Records), "error", err)
				b.Error = err.Error()
				if perr := spool.Put(ctx, b); perr != nil {
					errs = append(errs, fmt.Errorf("ingest: respool %s: %w", b.ID, errors.Join(err, perr)))
				} else {
					errs = append(errs, fmt.Errorf("ingest: replay %s: %w", b.ID, err))
				}
				continue
			}
			res.Batches++
			res.Records += len(b.Records)
		}
	}
	log.Info("spool replay finished", "batches", res.Batches, "records", res.Records, "failed", res.Failed)
	return res, errors.Join(errs...)
}

func requeue(ctx context.Context, spool Spool, rest []Batch, cause error) []error {
	errs := []error{cause}
	for _, b := range rest {
		if err := spool.Put(context.WithoutCancel(ctx), b); err != nil {
			errs = append(errs, fmt.Errorf("ingest: respool %s: %w", b.ID, err))
		}
	}
	return errs
}

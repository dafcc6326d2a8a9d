package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/observability"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

const DefaultBatchSize = 100

var (
	ErrClosed = errors.New("ingest: closed")
	// ErrBatchSpooled accompanies a flush error when the failed batch reached the spool.
	// They are retried on a later flush or by Replay. A MemorySpool holds them only while
	// the process runs; Close reports what it still holds with ErrBatchDropped.
	ErrBatchSpooled = errors.New("batch spooled")
	// ErrBatchDropped is returned by Close when spooled batches live only in process memory.
	ErrBatchDropped = errors.New("spooled batches dropped")
)

// BatchedKinds are the kinds that go through the buffer, in FlushAll order.
var BatchedKinds = []domain.Kind{domain.KindPage, domain.KindPolitician, domain.KindContent}

func IsBatched(kind domain.Kind) bool {
	for _, k := range BatchedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// KindStats describes one kind's buffer.
type KindStats struct {
	Pending  int
	Flushes  int
	Failures int
	Written  int
	Spooled  int
}

type BufferConfig struct {
	// Threshold is the per-kind length that triggers a flush. Values below 1 use
	// DefaultBatchSize.
	Threshold int
	// Spool receives batches whose transaction failed. Defaults to a MemorySpool.
	Spool   Spool
	Metrics *observability.Metrics
}

// Buffer accumulates records per kind and writes each kind's sequence in one transaction
// once it reaches the threshold, or when flushed explicitly.
type Buffer struct {
	mu        sync.Mutex
	log       *logger.Logger
	engine    *graph.Engine
	store     graph.Store
	spool     Spool
	metrics   *observability.Metrics
	threshold int
	pending   map[domain.Kind][]domain.Record
	retry     map[domain.Kind]bool
	stats     map[domain.Kind]*KindStats
	closed    bool
}

func NewBuffer(log *logger.Logger, engine *graph.Engine, store graph.Store, cfg BufferConfig) *Buffer {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = DefaultBatchSize
	}
	if cfg.Spool == nil {
		cfg.Spool = NewMemorySpool()
	}
	b := &Buffer{
		log:       log.With("service", "BatchBuffer"),
		engine:    engine,
		store:     store,
		spool:     cfg.Spool,
		metrics:   cfg.Metrics,
		threshold: cfg.Threshold,
		pending:   make(map[domain.Kind][]domain.Record, len(BatchedKinds)),
		retry:     make(map[domain.Kind]bool, len(BatchedKinds)),
		stats:     make(map[domain.Kind]*KindStats, len(BatchedKinds)),
	}
	for _, k := range BatchedKinds {
		b.stats[k] = &KindStats{}
	}
	return b
}

func (b *Buffer) Threshold() int { return b.threshold }

// Add appends rec to its kind's sequence and flushes that kind when the threshold is
// reached. The returned error is the flush error, if any.
func (b *Buffer) Add(ctx context.Context, rec domain.Record) error {
	if rec == nil {
		return fmt.Errorf("ingest: buffer add: %w: nil record", domain.ErrInvalidRecord)
	}
	kind := rec.Kind()
	if !IsBatched(kind) {
		return fmt.Errorf("ingest: %s records are not buffered", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.pending[kind] = append(b.pending[kind], rec)
	b.stats[kind].Pending = len(b.pending[kind])
	b.metrics.SetPending(string(kind), len(b.pending[kind]))
	if len(b.pending[kind]) < b.threshold {
		return nil
	}
	return b.flushLocked(ctx, kind)
}

// Flush writes kind's pending records, plus any spooled batches awaiting retry, in one
// transaction.
func (b *Buffer) Flush(ctx context.Context, kind domain.Kind) error {
	if !IsBatched(kind) {
		return fmt.Errorf("ingest: %s records are not buffered", kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx, kind)
}

// FlushAll flushes every kind in BatchedKinds order. A failing kind does not stop the
// others.
func (b *Buffer) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, kind := range BatchedKinds {
		if err := b.flushLocked(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes everything and rejects further Adds. Batches a MemorySpool still holds
// afterwards are lost with the process and are reported as dropped, not spooled.
func (b *Buffer) Close(ctx context.Context) error {
	err := b.FlushAll(ctx)
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	mem, ok := b.spool.(*MemorySpool)
	if !ok {
		return err
	}
	var dropped []error
	for _, kind := range BatchedKinds {
		batches, records := mem.Size(kind)
		if batches == 0 {
			continue
		}
		b.log.Error("spooled batches dropped at close", "kind", kind, "batches", batches, "records", records)
		dropped = append(dropped, fmt.Errorf("ingest: %s: %d records in %d batches: %w", kind, records, batches, ErrBatchDropped))
	}
	if len(dropped) == 0 {
		return err
	}
	if err != nil {
		// Kept as text: the flush errors wrap ErrBatchSpooled, which no longer holds.
		dropped = append(dropped, fmt.Errorf("ingest: final flush: %s", err.Error()))
	}
	return errors.Join(dropped...)
}

func (b *Buffer) Pending(kind domain.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[kind])
}

func (b *Buffer) Stats() map[domain.Kind]KindStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.Kind]KindStats, len(b.stats))
	for k, s := range b.stats {
		out[k] = *s
	}
	return out
}

func (b *Buffer) flushLocked(ctx context.Context, kind domain.Kind) error {
	recs := b.pending[kind]
	b.pending[kind] = nil
	st := b.stats[kind]
	st.Pending = 0
	b.metrics.SetPending(string(kind), 0)

	if b.retry[kind] {
		batches, err := b.spool.Take(ctx, kind)
		if err != nil {
			b.log.Warn("spool take failed; spooled batches wait for replay", "kind", kind, "spool", b.spool.Name(), "error", err)
		} else {
			b.retry[kind] = false
			var prior []domain.Record
			for _, sb := range batches {
				prior = append(prior, sb.Records...)
			}
			if len(prior) > 0 {
				b.log.Info("retrying spooled records", "kind", kind, "batches", len(batches), "records", len(prior))
				recs = append(prior, recs...)
			}
		}
	}
	if len(recs) == 0 {
		return nil
	}
	recs, unwritable, cause := splitUnwritable(b.engine, recs)
	var setAside error
	if len(unwritable) > 0 {
		setAside = b.spoolUnwritable(ctx, kind, unwritable, cause)
	}
	if len(recs) == 0 {
		return setAside
	}

	ctx, span := observability.Tracer().Start(ctx, "ingest.buffer.flush", trace.WithAttributes(
		attribute.String("record.kind", string(kind)),
		attribute.Int("batch.size", len(recs)),
	))
	defer span.End()

	start := time.Now()
	err := b.engine.Apply(ctx, b.store, recs...)
	dur := time.Since(start)
	st.Flushes++
	if err == nil {
		st.Written += len(recs)
		b.metrics.ObserveFlush(string(kind), "success", len(recs), dur)
		b.log.Debug("buffer flushed", "kind", kind, "records", len(recs), "duration", dur)
		return setAside
	}

	st.Failures++
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.metrics.ObserveFlush(string(kind), "failure", len(recs), dur)

	batch := newBatch(kind, recs, err)
	if serr := b.spool.Put(context.WithoutCancel(ctx), batch); serr != nil {
		b.log.Error("flush failed and batch could not be spooled",
			"kind", kind, "records", len(recs), "error", err, "spool_error", serr)
		return fmt.Errorf("ingest: flush %s (%d records): %w", kind, len(recs), errors.Join(err, fmt.Errorf("spool %s: %w", b.spool.Name(), serr)))
	}
	st.Spooled++
	b.metrics.IncSpooled(string(kind), b.spool.Name())
	if errors.Is(err, graph.ErrMissingIdentity) {
		b.log.Error("batch holds a record without identity; left in spool for inspection",
			"kind", kind, "records", len(recs), "batch_id", batch.ID, "spool", b.spool.Name(), "error", err)
	} else {
		b.retry[kind] = true
		b.log.Warn("flush failed; batch spooled",
			"kind", kind, "records", len(recs), "batch_id", batch.ID, "spool", b.spool.Name(), "error", err)
	}
	return joinSetAside(fmt.Errorf("ingest: flush %s (%d records, %w as %s): %w", kind, len(recs), ErrBatchSpooled, batch.ID, err), setAside)
}

// spoolUnwritable parks records the engine rejects on their own. They are not retried
// automatically; writing them again cannot succeed until they are corrected.
func (b *Buffer) spoolUnwritable(ctx context.Context, kind domain.Kind, recs []domain.Record, cause error) error {
	batch := newBatch(kind, recs, cause)
	if err := b.spool.Put(context.WithoutCancel(ctx), batch); err != nil {
		b.log.Error("unwritable records could not be spooled",
			"kind", kind, "records", len(recs), "error", cause, "spool_error", err)
		return fmt.Errorf("ingest: flush %s (%d unwritable records): %w", kind, len(recs), errors.Join(cause, fmt.Errorf("spool %s: %w", b.spool.Name(), err)))
	}
	b.stats[kind].Spooled++
	b.metrics.IncSpooled(string(kind), b.spool.Name())
	b.log.Error("unwritable records set aside; left in spool for inspection",
		"kind", kind, "records", len(recs), "batch_id", batch.ID, "spool", b.spool.Name(), "error", cause)
	return fmt.Errorf("ingest: flush %s (%d unwritable records, %w as %s): %w", kind, len(recs), ErrBatchSpooled, batch.ID, cause)
}

// splitUnwritable separates the records engine rejects without a store from the rest,
// keeping the order of both.
func splitUnwritable(engine *graph.Engine, recs []domain.Record) (ok, bad []domain.Record, cause error) {
	var errs []error
	for _, rec := range recs {
		if err := engine.Check(rec); err != nil {
			bad = append(bad, rec)
			errs = append(errs, err)
			continue
		}
		ok = append(ok, rec)
	}
	return ok, bad, errors.Join(errs...)
}

func joinSetAside(err, setAside error) error {
	if setAside == nil {
		return err
	}
	return errors.Join(err, setAside)
}

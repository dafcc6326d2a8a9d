package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/observability"
	"github.com/yungbote/legisgraph/internal/platform/ctxutil"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// Source yields records one at a time. Next returns io.EOF when the input is exhausted
// and a *DecodeError for an input that could not be turned into a record. Done is told the
// outcome of routing the record Next returned last.
type Source interface {
	Next(ctx context.Context) (domain.Record, error)
	Done(ctx context.Context, err error) error
}

// DecodeError reports one undecodable input. Run skips it and continues.
type DecodeError struct {
	Position string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ingest: undecodable input at %s: %v", e.Position, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Permanent reports whether err is a property of the input itself, so that delivering the
// same input again cannot succeed.
func Permanent(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) ||
		errors.Is(err, domain.ErrInvalidRecord) ||
		errors.Is(err, domain.ErrUnknownKind) ||
		errors.Is(err, graph.ErrMissingIdentity)
}

// RouteStats counts one kind's records.
type RouteStats struct {
	Routed   int
	Written  int
	Buffered int
	Skipped  int
	Rejected int
	Failed   int
}

// RunStats summarizes a router's run.
type RunStats struct {
	RunID       string
	Kinds       map[domain.Kind]RouteStats
	Undecodable int
	Buffer      map[domain.Kind]KindStats
}

type RouterConfig struct {
	BatchSize int
	Spool     Spool
	Metrics   *observability.Metrics
}

// Router validates records and sends them to the buffer or, for Domain and Period
// records, straight to the store. All state, the set of domains already written
// included, belongs to one run.
type Router struct {
	log     *logger.Logger
	engine  *graph.Engine
	store   graph.Store
	buffer  *Buffer
	metrics *observability.Metrics
	runID   string

	mu          sync.Mutex
	seenDomains map[string]struct{}
	stats       map[domain.Kind]*RouteStats
	undecodable int
	closed      bool
}

func NewRouter(log *logger.Logger, engine *graph.Engine, store graph.Store, cfg RouterConfig) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	if engine == nil {
		engine = graph.NewEngine(log, nil)
	}
	runID := uuid.NewString()
	log = log.With("run_id", runID)
	r := &Router{
		log:    log.With("service", "IngestionRouter"),
		engine: engine,
		store:  store,
		buffer: NewBuffer(log, engine, store, BufferConfig{
			Threshold: cfg.BatchSize,
			Spool:     cfg.Spool,
			Metrics:   cfg.Metrics,
		}),
		metrics:     cfg.Metrics,
		runID:       runID,
		seenDomains: make(map[string]struct{}),
		stats:       make(map[domain.Kind]*RouteStats, len(domain.Kinds)),
	}
	for _, k := range domain.Kinds {
		r.stats[k] = &RouteStats{}
	}
	return r
}

func (r *Router) RunID() string { return r.runID }

func (r *Router) Buffer() *Buffer { return r.buffer }

// Route validates rec and writes or buffers it. Invalid records return an error wrapping
// domain.ErrInvalidRecord and never reach the store.
func (r *Router) Route(ctx context.Context, rec domain.Record) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if ctxutil.GetRunData(ctx) == nil {
		ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: r.runID})
	}
	kind := kindOf(rec)
	if err := domain.Validate(rec); err != nil {
		r.count(kind, func(s *RouteStats) { s.Routed++; s.Rejected++ })
		r.metrics.IncRouted(string(kind), "rejected")
		var fields []string
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
		}
		observability.ReportDataQuality(ctx, r.log, string(kind), observability.IssueInvalid, fields, nil)
		return fmt.Errorf("ingest: route %s: %w", kind, err)
	}
	r.count(kind, func(s *RouteStats) { s.Routed++ })

	if p, ok := rec.(*domain.PoliticianRecord); ok {
		if missing := p.MissingSoftFields(); len(missing) > 0 {
			observability.ReportDataQuality(ctx, r.log, string(kind), observability.IssueMissingOptional, missing, map[string]any{
				"detail_page": p.DetailPage,
			})
		}
	}

	switch t := rec.(type) {
	case *domain.DomainRecord:
		return r.routeDomain(ctx, t)
	case *domain.PeriodRecord:
		return r.writeNow(ctx, t)
	default:
		err := r.buffer.Add(ctx, rec)
		if err != nil && !errors.Is(err, ErrBatchSpooled) {
			r.count(kind, func(s *RouteStats) { s.Failed++ })
			r.metrics.IncRouted(string(kind), "failed")
			return fmt.Errorf("ingest: route %s: %w", kind, err)
		}
		r.count(kind, func(s *RouteStats) { s.Buffered++ })
		r.metrics.IncRouted(string(kind), "buffered")
		if err != nil {
			return fmt.Errorf("ingest: route %s: %w", kind, err)
		}
		return nil
	}
}

func (r *Router) routeDomain(ctx context.Context, rec *domain.DomainRecord) error {
	name := strings.TrimSpace(rec.Domain)
	r.mu.Lock()
	_, seen := r.seenDomains[name]
	r.mu.Unlock()
	if seen {
		r.count(domain.KindDomain, func(s *RouteStats) { s.Skipped++ })
		r.metrics.IncRouted(string(domain.KindDomain), "skipped")
		r.log.Debug("domain already written in this run", "domain", name)
		return nil
	}
	if err := r.writeNow(ctx, rec); err != nil {
		return err
	}
	r.mu.Lock()
	r.seenDomains[name] = struct{}{}
	r.mu.Unlock()
	return nil
}

// writeNow writes one record in its own transaction.
func (r *Router) writeNow(ctx context.Context, rec domain.Record) error {
	kind := rec.Kind()
	ctx, span := observability.Tracer().Start(ctx, "ingest.router.write", trace.WithAttributes(
		attribute.String("record.kind", string(kind)),
		attribute.String("run.id", r.runID),
	))
	defer span.End()

	start := time.Now()
	err := r.engine.Apply(ctx, r.store, rec)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.count(kind, func(s *RouteStats) { s.Failed++ })
		r.metrics.IncRouted(string(kind), "failed")
		r.metrics.ObserveWrite(string(kind), "failure", dur)
		return fmt.Errorf("ingest: write %s: %w", kind, err)
	}
	r.count(kind, func(s *RouteStats) { s.Written++ })
	r.metrics.IncRouted(string(kind), "written")
	r.metrics.ObserveWrite(string(kind), "success", dur)
	return nil
}

// Run routes every record of src until it is exhausted or ctx is done, then closes the
// router. Failed records are logged and counted; only source and close failures are
// returned.
func (r *Router) Run(ctx context.Context, src Source) (RunStats, error) {
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: r.runID, Source: fmt.Sprintf("%T", src)})
	r.log.Info("ingestion run started", "batch_size", r.buffer.Threshold(), "source", fmt.Sprintf("%T", src))
	var runErr error
	for {
		if ctx.Err() != nil {
			break
		}
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				r.mu.Lock()
				r.undecodable++
				r.mu.Unlock()
				r.metrics.IncRouted("unknown", "undecodable")
				observability.ReportDataQuality(ctx, r.log, "", observability.IssueUndecodable, nil, map[string]any{
					"position": de.Position,
					"error":    de.Err.Error(),
				})
				if derr := src.Done(ctx, err); derr != nil {
					runErr = fmt.Errorf("ingest: settle %s: %w", de.Position, derr)
					break
				}
				continue
			}
			if ctx.Err() == nil {
				runErr = fmt.Errorf("ingest: read source: %w", err)
			}
			break
		}

		routeErr := r.Route(ctx, rec)
		if routeErr != nil {
			r.log.Warn("record not ingested", "kind", kindOf(rec), "error", routeErr)
		}
		if err := src.Done(ctx, routeErr); err != nil {
			runErr = fmt.Errorf("ingest: settle record: %w", err)
			break
		}
	}

	closeErr := r.Close(context.WithoutCancel(ctx))
	stats := r.Stats()
	r.log.Info("ingestion run finished",
		"kinds", stats.Kinds,
		"undecodable", stats.Undecodable,
		"interrupted", ctx.Err() != nil,
	)
	return stats, errors.Join(runErr, closeErr)
}

// Close flushes every buffered kind and rejects further records.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	if err := r.buffer.Close(ctx); err != nil {
		r.log.Error("final flush failed", "error", err)
		return err
	}
	return nil
}

func (r *Router) Stats() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := RunStats{
		RunID:       r.runID,
		Kinds:       make(map[domain.Kind]RouteStats, len(r.stats)),
		Undecodable: r.undecodable,
		Buffer:      r.buffer.Stats(),
	}
	for k, s := range r.stats {
		out.Kinds[k] = *s
	}
	return out
}

func (r *Router) count(kind domain.Kind, fn func(s *RouteStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[kind]
	if !ok {
		s = &RouteStats{}
		r.stats[kind] = s
	}
	fn(s)
}

func kindOf(rec domain.Record) domain.Kind {
	if rec == nil {
		return ""
	}
	return rec.Kind()
}

package core

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/metrics"
)

// SnapshotTimeout is the default maximum duration of one snapshot apply.
var SnapshotTimeout = 10 * time.Minute

// DefaultMaxSnapshotBytes is the default snapshot size limit.
const DefaultMaxSnapshotBytes int64 = 100 * 1024 * 1024

const tracerName = "github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"

// Service is the entry point for every registry operation. Each method
// takes the acting principal explicitly and authorizes before doing work.
type Service struct {
	store      Store
	audit      *AuditRecorder
	transactor *Transactor
	rollbacks  *RollbackCoordinator
	moderation *Moderation

	blobs     BlobStore
	cache     StatsCache
	publisher EventPublisher
	limiter   *BatchLimiter
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	chunkSize       int
	maxBytes        int64
	snapshotTimeout time.Duration
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBlobStore stores raw snapshots and releases rejected photos.
func WithBlobStore(b BlobStore) Option {
	return func(s *Service) { s.blobs = b }
}

// WithStatsCache caches RegistryStats between commits.
func WithStatsCache(c StatsCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher forwards committed audit entries.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithBatchLimiter bounds concurrent snapshot batches.
func WithBatchLimiter(l *BatchLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithMetrics records operation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithChunkSize sets how many ops are written per chunk.
func WithChunkSize(n int) Option {
	return func(s *Service) { s.chunkSize = n }
}

// WithMaxSnapshotBytes sets the snapshot size limit.
func WithMaxSnapshotBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithSnapshotTimeout bounds one snapshot apply.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(s *Service) { s.snapshotTimeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the registry components around store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		chunkSize:       DefaultChunkSize,
		maxBytes:        DefaultMaxSnapshotBytes,
		snapshotTimeout: SnapshotTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.limiter == nil {
		s.limiter = NewBatchLimiter(DefaultMaxConcurrentBatches, DefaultMaxWaitTime)
	}
	if s.metrics != nil {
		s.limiter.Observe(s.metrics.SetActiveBatches)
	}

	s.audit = NewAuditRecorder(s.now)
	s.transactor = NewTransactor(store, s.audit, s.chunkSize, s.now)
	s.rollbacks = NewRollbackCoordinator(store, s.transactor, s.audit)
	s.moderation = NewModeration(store, s.transactor, s.audit, s.blobs, s.now)
	return s
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// WaitForBatches blocks until no snapshot batch is in flight.
func (s *Service) WaitForBatches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports the batch limiter state.
func (s *Service) LimiterStatus() BatchLimiterStatus {
	return s.limiter.Status()
}

// startOp opens a span and returns the function that closes it, records
// metrics, and logs failures.
func (s *Service) startOp(ctx context.Context, name string, p Principal) (context.Context, func(*error)) {
	start := time.Now()
	ctx = logging.WithPrincipal(ctx, p.ID)
	ctx, span := s.tracer.Start(ctx, "core."+name)

	return ctx, func(errp *error) {
		defer span.End()

		var err error
		if errp != nil {
			err = *errp
		}
		outcome := outcomeOf(err)
		s.metrics.ObserveOperation(name, outcome, start)
		if err == nil {
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if e, ok := AsError(err); ok && e.Kind == KindConflict {
			s.metrics.IncrementConflict(e.Code)
		}

		logger := logging.WithFields(ctx, "operation", name, "outcome", outcome)
		if KindOf(err) == KindPersistence && !errors.Is(err, ErrTooManyBatches) {
			logger.Error("operation failed", "error", err)
		} else {
			logger.Info("operation rejected", "error", err)
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooManyBatches):
		return "busy"
	}
	return KindOf(err).String()
}

// afterCommit runs the side effects of a committed mutation. Failures are
// logged and never reported to the caller.
func (s *Service) afterCommit(ctx context.Context, stats Stats, entries ...AuditEntry) {
	s.metrics.AddVersions(stats.Inserted, stats.Updated, stats.Deleted)
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.publisher == nil {
		return
	}
	for _, e := range entries {
		if err := s.publisher.Publish(ctx, e); err != nil {
			logging.FromContext(ctx).Warn("failed to publish audit entry",
				"audit_id", e.ID,
				"action", e.Action,
				"error", err,
			)
		}
	}
}

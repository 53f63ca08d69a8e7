package core

import (
	blobcore "alignercore/internal/blob/core"
	"alignercore/internal/infra/persistence/memory"
	"alignercore/pkg/domain"
	"context"
	"time"
)

// Service orchestrates the aligner workflow over a persistent store. Every
// mutating operation runs inside one store transaction, so a failed operation
// never leaves partial writes behind. Reads take an explicit Actor and are
// filtered by the scoped query layer.
type Service struct {
	store       PersistentStore
	logger      Logger
	clock       Clock
	audit       AuditRecorder
	metrics     MetricsRecorder
	tracer      Tracer
	broadcaster Broadcaster
	blobs       blobcore.Store
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for "today" and record stamps.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder sets the audit collaborator.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics collaborator.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithBroadcaster sets where committed changes are announced.
func WithBroadcaster(b Broadcaster) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithBlobStore sets the attachment store used for scan files and signed URLs.
func WithBlobStore(store blobcore.Store) ServiceOption {
	return func(s *Service) {
		s.blobs = store
	}
}

type nowSetter interface {
	SetNowFunc(func() time.Time)
}

type revisioner interface {
	Revision() uint64
}

// NewService constructs a service backed by the supplied store. When the
// store accepts a time source, it is pointed at the service clock so record
// stamps and scheduling agree on "now".
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:       store,
		logger:      noopLogger{},
		clock:       systemClock{},
		audit:       noopAuditRecorder{},
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		broadcaster: noopBroadcaster{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if setter, ok := store.(nowSetter); ok {
		setter.SetNowFunc(svc.clock.Now)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine gets the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn in a store transaction and reports the outcome to the
// tracer, metrics, audit, and broadcast collaborators. fn returns the id of
// the record it touched.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var entityID string
	var before uint64
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		before = tx.Snapshot().Revision()
		id, err := fn(tx)
		entityID = id
		return err
	})
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, entityID, duration, err)
	if err != nil {
		s.logger.Error("core operation failed", "operation", op, "entity_id", entityID, "error", err, "duration", duration)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "message", v.Message)
	}
	s.logger.Debug("core operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.publish(ctx, op, entityID, before)
	return res, nil
}

// view runs a read against a consistent snapshot.
func (s *Service) view(ctx context.Context, op string, fn func(TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := s.store.View(ctx, fn)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Error("core read failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) currentRevision(ctx context.Context) uint64 {
	if r, ok := s.store.(revisioner); ok {
		return r.Revision()
	}
	var rev uint64
	_ = s.store.View(ctx, func(v TransactionView) error {
		rev = v.Revision()
		return nil
	})
	return rev
}

// publish announces a commit. Broadcast failures are logged; the committed
// transaction stands.
func (s *Service) publish(ctx context.Context, op, entityID string, before uint64) {
	rev := s.currentRevision(ctx)
	if rev <= before {
		return
	}
	event := domain.ChangeEvent{
		Revision:  rev,
		Operation: op,
		Entity:    operations[op].entity,
		EntityID:  entityID,
		At:        s.clock.Now(),
	}
	if err := s.broadcaster.Publish(ctx, event); err != nil {
		s.logger.Warn("change broadcast failed", "operation", op, "revision", rev, "error", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operations[op]
	if !ok || !meta.audited {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func loadCase(tx Transaction, id string) (Case, error) {
	c, ok := tx.Snapshot().FindCase(id)
	if !ok {
		return Case{}, domain.Errorf(domain.ErrCaseNotFound, EntityCase, id, "case %q not found", id)
	}
	return c, nil
}

func loadLabItem(tx Transaction, id string) (LabItem, error) {
	item, ok := tx.Snapshot().FindLabItem(id)
	if !ok {
		return LabItem{}, domain.Errorf(domain.ErrLabItemNotFound, EntityLabItem, id, "lab item %q not found", id)
	}
	return item, nil
}

func invalid(entity EntityType, id, format string, args ...any) error {
	return domain.Errorf(domain.ErrInvalidInput, entity, id, format, args...)
}

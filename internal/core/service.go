package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"keepernest/internal/identity"
	"keepernest/internal/infra/persistence/memory"
	"keepernest/pkg/domain"
)

// DefaultMaxWriteAttempts bounds how often a conditional asset write is
// re-read and re-decided after losing a revision race.
const DefaultMaxWriteAttempts = 3

// QueryCache stores rendered query views. Views are invalidated as a whole,
// including every qualifier stored under them. Each view has a generation
// that Invalidate advances: Get reports the generation it observed, and Set
// must not make a value visible unless that generation is still current.
type QueryCache interface {
	Get(ctx context.Context, view, qualifier string, dst any) (hit bool, gen uint64, err error)
	Set(ctx context.Context, view, qualifier string, gen uint64, value any) error
	Invalidate(ctx context.Context, views ...string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, string, any) (bool, uint64, error) {
	return false, 0, nil
}
func (noopCache) Set(context.Context, string, string, uint64, any) error { return nil }
func (noopCache) Invalidate(context.Context, ...string) error            { return nil }

// WelcomeMail carries the data of the credential mail sent to new employees.
type WelcomeMail struct {
	To              string
	Name            string
	EmployeeID      string
	InitialPassword string
	CreatedBy       string
}

// Mailer delivers notifications produced by the service.
type Mailer interface {
	SendWelcome(ctx context.Context, mail WelcomeMail) error
}

type noopMailer struct{}

func (noopMailer) SendWelcome(context.Context, WelcomeMail) error { return nil }

// PasswordHasher hashes and verifies employee credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer mints and verifies session tokens.
type TokenIssuer interface {
	Issue(actor domain.Actor) (string, time.Time, error)
	Verify(token string) (domain.Actor, error)
}

// ServiceOption customizes Service construction.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock       Clock
	logger      Logger
	audit       AuditRecorder
	metrics     MetricsRecorder
	tracer      Tracer
	cache       QueryCache
	mailer      Mailer
	hasher      PasswordHasher
	tokens      TokenIssuer
	newID       func() string
	maxAttempts int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:       ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:      noopLogger{},
		audit:       noopAuditRecorder{},
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		cache:       noopCache{},
		mailer:      noopMailer{},
		hasher:      identity.NewBcryptHasher(0),
		newID:       uuid.NewString,
		maxAttempts: DefaultMaxWriteAttempts,
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the tracer used around every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithCache sets the query view cache.
func WithCache(cache QueryCache) ServiceOption {
	return func(o *serviceOptions) {
		if cache != nil {
			o.cache = cache
		}
	}
}

// WithMailer sets the notification sender.
func WithMailer(m Mailer) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.mailer = m
		}
	}
}

// WithPasswordHasher overrides the credential hasher.
func WithPasswordHasher(h PasswordHasher) ServiceOption {
	return func(o *serviceOptions) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithTokenIssuer sets the session token issuer used by Authenticate.
func WithTokenIssuer(t TokenIssuer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tokens = t
		}
	}
}

// WithIDGenerator overrides the generator of history entry ids.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithMaxWriteAttempts bounds re-decisions after revision conflicts.
func WithMaxWriteAttempts(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Service exposes the asset register and employee directory operations.
// Every operation is traced, timed and logged; mutations are audited.
type Service struct {
	store       domain.PersistentStore
	clock       Clock
	now         func() time.Time
	logger      Logger
	audit       AuditRecorder
	metrics     MetricsRecorder
	tracer      Tracer
	cache       QueryCache
	mailer      Mailer
	hasher      PasswordHasher
	tokens      TokenIssuer
	newID       func() string
	maxAttempts int
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:       store,
		clock:       o.clock,
		now:         func() time.Time { return o.clock.Now().UTC() },
		logger:      o.logger,
		audit:       o.audit,
		metrics:     o.metrics,
		tracer:      o.tracer,
		cache:       o.cache,
		mailer:      o.mailer,
		hasher:      o.hasher,
		tokens:      o.tokens,
		newID:       o.newID,
		maxAttempts: o.maxAttempts,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs the default rules.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// run wraps fn with tracing, metrics, logging and, for mutating operations,
// an audit entry. fn returns the id of the entity it touched.
func (s *Service) run(ctx context.Context, op string, actor domain.Actor, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, domain.Classify(err), elapsed)

	if err != nil {
		kv := []any{"op", op, "actor", actor.EmployeeID, "entity", entityID, "class", domain.Classify(err), "error", err}
		if domain.Classify(err) == domain.ClassInfrastructure {
			s.logger.Error("operation failed", kv...)
		} else {
			s.logger.Warn("operation rejected", kv...)
		}
		s.recordAudit(ctx, op, actor, entityID, elapsed, err)
		return err
	}
	s.logger.Debug("operation completed", "op", op, "actor", actor.EmployeeID, "entity", entityID, "duration", elapsed)
	s.recordAudit(ctx, op, actor, entityID, elapsed, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op string, actor domain.Actor, entityID string, duration time.Duration, err error) {
	meta, ok := auditOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor.EmployeeID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) invalidate(ctx context.Context, views ...string) {
	if len(views) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, views...); err != nil {
		s.logger.Warn("cache invalidation failed", "views", strings.Join(views, ","), "error", err)
	}
}

// storeErr tags errors that did not originate from a domain decision as
// infrastructure failures.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if domain.Classify(err) != domain.ClassInfrastructure || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

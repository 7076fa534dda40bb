package core

import (
	"context"
	"time"

	"keepernest/pkg/domain"
)

// Logger is the structured logging surface the service writes to. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus records whether an audited operation succeeded.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation for the audit trail.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes operation outcomes and latency. class is
// domain.ClassNone for operations that succeeded.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, class domain.ErrorClass, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, domain.ErrorClass, time.Duration) {}

// TraceSpan is ended once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type auditMeta struct {
	entity domain.EntityType
	action domain.Action
}

// auditOperations lists the mutating operations that produce audit entries.
var auditOperations = map[string]auditMeta{
	"create_asset":        {domain.EntityAsset, domain.ActionCreate},
	"assign_asset":        {domain.EntityAsset, domain.ActionUpdate},
	"unassign_asset":      {domain.EntityAsset, domain.ActionUpdate},
	"enter_maintenance":   {domain.EntityAsset, domain.ActionUpdate},
	"exit_maintenance":    {domain.EntityAsset, domain.ActionUpdate},
	"report_damage":       {domain.EntityAsset, domain.ActionUpdate},
	"expire_asset":        {domain.EntityAsset, domain.ActionUpdate},
	"remove_asset":        {domain.EntityAsset, domain.ActionDelete},
	"create_employee":     {domain.EntityEmployee, domain.ActionCreate},
	"bootstrap_admin":     {domain.EntityEmployee, domain.ActionCreate},
	"deactivate_employee": {domain.EntityEmployee, domain.ActionUpdate},
	"change_password":     {domain.EntityEmployee, domain.ActionUpdate},
	"update_profile":      {domain.EntityEmployee, domain.ActionUpdate},
	"remove_employee":     {domain.EntityEmployee, domain.ActionDelete},
}

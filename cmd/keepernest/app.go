package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keepernest/internal/blob"
	"keepernest/internal/cache"
	"keepernest/internal/config"
	"keepernest/internal/core"
	"keepernest/internal/export"
	"keepernest/internal/identity"
	"keepernest/internal/mail"
	"keepernest/internal/platform/logger"
	"keepernest/internal/platform/observability"
)

// app holds every long-lived dependency of the process.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	store    core.ClosableStore
	blobs    blob.Store
	svc      *core.Service
	exporter *export.Exporter
	metrics  http.Handler
	closers  []func(context.Context) error
}

type appOptions struct {
	// traceJSON, when set, receives one JSON line per service operation.
	traceJSON io.Writer
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	store, err := core.OpenPersistentStore(ctx, cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	a.blobs, err = blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	svcOpts := []core.ServiceOption{
		core.WithLogger(log.With("component", "service")),
		core.WithAuditRecorder(logAudit{log: log.With("component", "audit")}),
		core.WithPasswordHasher(identity.NewBcryptHasher(cfg.Auth.BcryptCost)),
	}

	viewCache, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if viewCache != nil {
		svcOpts = append(svcOpts, core.WithCache(viewCache))
		if r, ok := viewCache.(*cache.Redis); ok {
			a.closers = append(a.closers, func(context.Context) error { return r.Close() })
		}
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
		a.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	} else {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewOperationStats("")))
		a.metrics = http.NotFoundHandler()
	}

	switch {
	case opts.traceJSON != nil:
		svcOpts = append(svcOpts, core.WithTracer(core.NewSpanLog(opts.traceJSON, 0)))
	case cfg.Tracing.Enabled:
		shutdown, err := observability.InitOTel(ctx, log, observability.OTelConfig{
			Enabled:     true,
			ServiceName: "keepernest",
			Environment: cfg.Env,
			Version:     version,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		svcOpts = append(svcOpts, core.WithTracer(core.NewOTelTracer(nil)))
	}

	sender, err := mail.Open(cfg.Mail, a.blobs, log)
	if err != nil {
		return nil, fmt.Errorf("open mail sender: %w", err)
	}
	svcOpts = append(svcOpts, core.WithMailer(mail.NewNotifier(sender, mail.Address{Email: cfg.Mail.FromEmail, Name: cfg.Mail.FromName})))

	if cfg.Auth.JWTSecret != "" {
		issuer, err := identity.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
		svcOpts = append(svcOpts, core.WithTokenIssuer(issuer))
	}

	a.svc = core.NewService(store, svcOpts...)
	a.exporter = export.New(a.svc, a.blobs, log)
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// logAudit writes audit entries to the structured log.
type logAudit struct {
	log *logger.Logger
}

func (l logAudit) Record(_ context.Context, e core.AuditEntry) {
	kv := []any{
		"op", e.Operation,
		"entity", string(e.Entity),
		"action", string(e.Action),
		"entity_id", e.EntityID,
		"actor", e.Actor,
		"status", string(e.Status),
		"duration_ms", e.Duration.Milliseconds(),
	}
	if e.Error != "" {
		kv = append(kv, "error", e.Error)
	}
	l.log.Info("audit", kv...)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"keepernest/internal/blob"
	"keepernest/internal/cache"
	"keepernest/internal/config"
	"keepernest/internal/core"
	"keepernest/internal/export"
	"keepernest/internal/platform/logger"
	"keepernest/pkg/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = core.StorageConfig{Driver: core.StorageMemory}
	cfg.Blob = blob.Config{Driver: blob.DriverMemory}
	cfg.Cache = cache.Config{Driver: cache.DriverMemory, TTL: time.Minute}
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.BcryptCost = 4
	return cfg
}

func TestNewAppWiresServiceAndExporter(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), logger.Nop(), appOptions{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer func() { _ = a.Close(ctx) }()

	admin, err := a.svc.BootstrapAdmin(ctx, core.NewEmployee{EmployeeID: "E001", Name: "Ada", Email: "ada@example.com"}, "")
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", admin.Role)
	}
	session, err := a.svc.Authenticate(ctx, "ada@example.com", core.InitialPassword("E001"))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a signed token")
	}

	if _, _, err := a.svc.CreateAsset(ctx, domain.System, core.NewAsset{
		AssetID:      "A-1",
		AssetName:    "ThinkPad",
		AssetType:    domain.AssetTypeLaptop,
		PurchaseDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	res, err := a.exporter.Export(ctx, domain.System, domain.AssetFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Rows != 1 || !strings.HasPrefix(res.Key, export.Prefix) {
		t.Fatalf("unexpected export result %+v", res)
	}

	rec := httptest.NewRecorder()
	a.metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "keepernest_service_operations_total") {
		t.Fatalf("expected service metrics in /metrics output")
	}
}

func TestNewAppJSONTrace(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	a, err := newApp(ctx, cfg, logger.Nop(), appOptions{traceJSON: &buf})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer func() { _ = a.Close(ctx) }()

	if _, err := a.svc.SweepExpired(ctx, domain.System, time.Now().UTC()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(buf.String(), "sweep_expired") {
		t.Fatalf("expected trace line for sweep, got %q", buf.String())
	}
	rec := httptest.NewRecorder()
	a.metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected metrics handler disabled, got %d", rec.Code)
	}
}

func TestNewAppRejectsUnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "cassandra"
	if _, err := newApp(context.Background(), cfg, logger.Nop(), appOptions{}); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestServeRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	a, err := newApp(context.Background(), cfg, logger.Nop(), appOptions{})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()
	if err := serve(context.Background(), a); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "keepernest "+version) {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestPrintJSONIndents(t *testing.T) {
	var out bytes.Buffer
	if err := printJSON(&out, core.SweepReport{Expired: []string{"A-1"}}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.String(), "\n  ") {
		t.Fatalf("expected indented output, got %q", out.String())
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keepernest/internal/blob"
	"keepernest/internal/cache"
	"keepernest/internal/core"
	"keepernest/internal/mail"
)

func missingDotEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load(Options{DotEnv: missingDotEnv(t)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Blob.Driver != blob.DriverFilesystem || cfg.Sweep.Interval != time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestYAMLThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "keepernest.yaml")
	yamlDoc := `
http_addr: ":9000"
storage:
  driver: postgres
  postgres_dsn: postgres://file/db
cache:
  driver: redis
  redis_addr: 127.0.0.1:6379
  ttl: 30s
mail:
  driver: outbox
  from_email: assets@example.com
sweep:
  interval: 15m
`
	if err := os.WriteFile(file, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("KEEPERNEST_POSTGRES_DSN", "postgres://env/db")
	t.Setenv("KEEPERNEST_SWEEP_INTERVAL", "2h")

	cfg, err := Load(Options{File: file, DotEnv: missingDotEnv(t)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.Cache.Driver != cache.DriverRedis || cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Mail.Driver != mail.DriverOutbox || cfg.Mail.FromEmail != "assets@example.com" {
		t.Fatalf("mail section not applied: %+v", cfg.Mail)
	}
	if cfg.Storage.PostgresDSN != "postgres://env/db" || cfg.Sweep.Interval != 2*time.Hour {
		t.Fatalf("env did not override yaml: %+v", cfg)
	}
}

func TestDotEnvLoaded(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(dotenv, []byte("KEEPERNEST_TEST_DOTENV_HTTP=:7070\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("KEEPERNEST_TEST_DOTENV_HTTP") })
	if _, err := Load(Options{DotEnv: dotenv}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if os.Getenv("KEEPERNEST_TEST_DOTENV_HTTP") != ":7070" {
		t.Fatalf(".env not loaded into the environment")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("KEEPERNEST_TOKEN_TTL", "forever")
	t.Setenv("KEEPERNEST_METRICS_ENABLED", "maybe")
	_, err := Load(Options{DotEnv: missingDotEnv(t)})
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{"KEEPERNEST_TOKEN_TTL", "KEEPERNEST_METRICS_ENABLED"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = core.StoragePostgres
	cfg.Blob.Driver = blob.DriverS3
	cfg.Cache.Driver = cache.DriverRedis
	cfg.Mail.Driver = mail.DriverSendGrid
	cfg.Tracing.SampleRatio = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"postgres_dsn", "s3.bucket", "redis_addr", "sendgrid.api_key", "sample_ratio"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
	cfg = Default()
	cfg.Storage.Driver = "mongo"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mongo") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

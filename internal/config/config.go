// Package config loads keepernest settings from defaults, an optional YAML
// file, an optional .env file and KEEPERNEST_ environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"keepernest/internal/blob"
	"keepernest/internal/cache"
	"keepernest/internal/core"
	"keepernest/internal/identity"
	"keepernest/internal/mail"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "KEEPERNEST_"

// Config is the complete process configuration.
type Config struct {
	Env      string             `yaml:"env"`
	LogMode  string             `yaml:"log_mode"`
	HTTPAddr string             `yaml:"http_addr"`
	Storage  core.StorageConfig `yaml:"storage"`
	Blob     blob.Config        `yaml:"blob"`
	Cache    cache.Config       `yaml:"cache"`
	Auth     AuthConfig         `yaml:"auth"`
	Mail     mail.Config        `yaml:"mail"`
	Sweep    SweepConfig        `yaml:"sweep"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Tracing  TracingConfig      `yaml:"tracing"`
}

// AuthConfig configures session tokens and password hashing.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// SweepConfig configures the expiry sweeper.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig toggles the Prometheus recorder and /metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig toggles OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Env:      "development",
		LogMode:  "dev",
		HTTPAddr: ":8080",
		Storage:  core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "keepernest.db"},
		Blob:     blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		Cache:    cache.Config{Driver: cache.DriverMemory, TTL: cache.DefaultTTL},
		Auth:     AuthConfig{TokenTTL: identity.DefaultTokenTTL},
		Mail:     mail.Config{Driver: mail.DriverLog, FromEmail: "it@keepernest.local", FromName: "keepernest"},
		Sweep:    SweepConfig{Enabled: true, Interval: time.Hour},
		Metrics:  MetricsConfig{Enabled: true},
		Tracing:  TracingConfig{SampleRatio: 1},
	}
}

// Options controls where Load reads from.
type Options struct {
	// File is an optional YAML file.
	File string
	// DotEnv is loaded into the environment when present; empty means ".env".
	DotEnv string
}

// Load assembles the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", opts.File, err)
		}
	}
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
	}
	if c.Cache.Driver == cache.DriverRedis && c.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required for the redis driver"))
	}
	if c.Mail.Driver == mail.DriverSendGrid && c.Mail.SendGrid.APIKey == "" {
		errs = append(errs, errors.New("mail.sendgrid.api_key is required for the sendgrid driver"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

type envBinding struct {
	name string
	set  func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func applyEnv(cfg *Config) error {
	bindings := []envBinding{
		{"ENV", str(&cfg.Env)},
		{"LOG_MODE", str(&cfg.LogMode)},
		{"HTTP_ADDR", str(&cfg.HTTPAddr)},
		{"STORAGE_DRIVER", func(v string) error { cfg.Storage.Driver = core.StorageDriver(strings.ToLower(v)); return nil }},
		{"SQLITE_PATH", str(&cfg.Storage.SQLitePath)},
		{"POSTGRES_DSN", str(&cfg.Storage.PostgresDSN)},
		{"BLOB_DRIVER", func(v string) error { cfg.Blob.Driver = blob.Driver(strings.ToLower(v)); return nil }},
		{"BLOB_FS_ROOT", str(&cfg.Blob.FSRoot)},
		{"BLOB_S3_BUCKET", str(&cfg.Blob.S3.Bucket)},
		{"BLOB_S3_REGION", str(&cfg.Blob.S3.Region)},
		{"BLOB_S3_ENDPOINT", str(&cfg.Blob.S3.Endpoint)},
		{"BLOB_S3_PATH_STYLE", boolean(&cfg.Blob.S3.PathStyle)},
		{"BLOB_S3_ACCESS_KEY_ID", str(&cfg.Blob.S3.AccessKeyID)},
		{"BLOB_S3_SECRET_ACCESS_KEY", str(&cfg.Blob.S3.SecretAccessKey)},
		{"CACHE_DRIVER", func(v string) error { cfg.Cache.Driver = cache.Driver(strings.ToLower(v)); return nil }},
		{"CACHE_TTL", duration(&cfg.Cache.TTL)},
		{"REDIS_ADDR", str(&cfg.Cache.RedisAddr)},
		{"REDIS_DB", integer(&cfg.Cache.RedisDB)},
		{"JWT_SECRET", str(&cfg.Auth.JWTSecret)},
		{"TOKEN_TTL", duration(&cfg.Auth.TokenTTL)},
		{"BCRYPT_COST", integer(&cfg.Auth.BcryptCost)},
		{"MAIL_DRIVER", func(v string) error { cfg.Mail.Driver = mail.Driver(strings.ToLower(v)); return nil }},
		{"MAIL_FROM", str(&cfg.Mail.FromEmail)},
		{"MAIL_FROM_NAME", str(&cfg.Mail.FromName)},
		{"SENDGRID_API_KEY", str(&cfg.Mail.SendGrid.APIKey)},
		{"SENDGRID_BASE_URL", str(&cfg.Mail.SendGrid.BaseURL)},
		{"SWEEP_ENABLED", boolean(&cfg.Sweep.Enabled)},
		{"SWEEP_INTERVAL", duration(&cfg.Sweep.Interval)},
		{"METRICS_ENABLED", boolean(&cfg.Metrics.Enabled)},
		{"TRACING_ENABLED", boolean(&cfg.Tracing.Enabled)},
		{"TRACING_SAMPLE_RATIO", float(&cfg.Tracing.SampleRatio)},
	}
	var errs []error
	for _, b := range bindings {
		v, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

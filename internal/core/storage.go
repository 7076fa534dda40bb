package core

import (
	"context"
	"fmt"

	"keepernest/internal/infra/persistence/memory"
	"keepernest/internal/infra/persistence/postgres"
	"keepernest/internal/infra/persistence/sqlite"
	"keepernest/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a backend.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// ClosableStore is a persistent store holding resources that must be released.
type ClosableStore interface {
	domain.PersistentStore
	Close() error
}

type memoryCloser struct{ *memory.Store }

func (memoryCloser) Close() error { return nil }

// OpenPersistentStore opens the backend named by cfg. An empty driver
// selects sqlite. A nil engine installs the default rules.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (ClosableStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memoryCloser{memory.NewStore(engine)}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

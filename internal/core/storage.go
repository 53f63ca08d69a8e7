package core

import (
	"alignercore/internal/infra/persistence/memory"
	"alignercore/internal/infra/persistence/postgres"
	"alignercore/internal/infra/persistence/sqlite"
	"alignercore/pkg/domain"
	"fmt"
	"os"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageOptions selects and configures a backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenStore builds the backend named by opts. An empty driver means sqlite.
func OpenStore(opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	ALIGNERCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ALIGNERCORE_SQLITE_PATH: path to sqlite file (default ./alignercore.db)
//	ALIGNERCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	return OpenStore(StorageOptions{
		Driver:      StorageDriver(os.Getenv("ALIGNERCORE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("ALIGNERCORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("ALIGNERCORE_POSTGRES_DSN"),
	}, engine)
}

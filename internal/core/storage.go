package core

import (
	"bloodsync/internal/infra/persistence/dynamodb"
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/internal/infra/persistence/postgres"
	"bloodsync/internal/infra/persistence/sqlite"
	"bloodsync/pkg/domain"
	"context"
	"fmt"
	"time"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageDynamoDB StorageDriver = "dynamodb" // one DynamoDB table per entity
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and configures a persistence backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	DynamoDB    dynamodb.Config
}

// OpenPersistentStore builds the configured backend. The clock stamps record
// timestamps; nil uses the wall clock.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine, clock Clock) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	if clock == nil {
		clock = ClockFunc(nil)
	}
	opts := []memory.Option{memory.WithClock(func() time.Time { return clock.Now() })}
	switch cfg.Driver {
	case "", StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath, engine, opts...)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
	case StorageDynamoDB:
		return dynamodb.Open(ctx, cfg.DynamoDB, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

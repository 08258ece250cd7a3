// Package postgres provides a Postgres-backed persistent store. Transactions
// run against the in-memory engine; every commit upserts the changed records
// into a keyed table before the new state becomes visible.
package postgres

import (
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/pkg/domain"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/bloodsync?sslmode=disable"
	backendName   = "postgres"
)

const (
	createRecordsTable = `CREATE TABLE IF NOT EXISTS records (
		bucket TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (bucket, id)
	)`
	upsertRecord = `INSERT INTO records (bucket, id, payload) VALUES ($1, $2, $3)
		ON CONFLICT (bucket, id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	deleteRecord = `DELETE FROM records WHERE bucket = $1 AND id = $2`
	selectRecord = `SELECT bucket, id, payload FROM records ORDER BY bucket, id`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using dsn (defaultDSN when empty),
// ensures the records table exists and hydrates the in-memory state.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, unavailable("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := db.ExecContext(ctx, createRecordsTable); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, slices.Concat(opts, []memory.Option{memory.WithCommitHook(s.persist)})...)
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectRecord)
	if err != nil {
		return memory.Snapshot{}, unavailable("load", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.NewSnapshot()
	for rows.Next() {
		var bucket, id string
		var payload []byte
		if err := rows.Scan(&bucket, &id, &payload); err != nil {
			return memory.Snapshot{}, unavailable("load", err)
		}
		if err := snapshot.Apply(bucket, id, payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("load records: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, unavailable("load", err)
	}
	return snapshot, nil
}

// persist writes the change set in one database transaction. It runs under
// the memory store's write lock, so commits are serialised.
func (s *Store) persist(ctx context.Context, changes []memory.Change) error {
	records, err := memory.RecordsFromChanges(changes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, rec := range records {
		if rec.Deleted {
			_, err = tx.ExecContext(ctx, deleteRecord, rec.Bucket, rec.ID)
		} else {
			_, err = tx.ExecContext(ctx, upsertRecord, rec.Bucket, rec.ID, rec.Payload)
		}
		if err != nil {
			return unavailable("write "+rec.Bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	committed = true
	return nil
}

func unavailable(op string, err error) error {
	return domain.BackendUnavailableError{Backend: backendName, Op: op, Err: err}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

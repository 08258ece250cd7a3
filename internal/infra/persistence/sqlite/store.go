// Package sqlite persists the store to an embedded SQLite file. Each record is
// a JSON row keyed by bucket and id; commits upsert only what changed.
package sqlite

import (
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath = "bloodsync.db"
	backendName = "sqlite"
)

const (
	createRecordsTable = `CREATE TABLE IF NOT EXISTS records (
		bucket TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (bucket, id)
	)`
	upsertRecord = `INSERT INTO records (bucket, id, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (bucket, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	deleteRecord = `DELETE FROM records WHERE bucket = ? AND id = ?`
	selectRecord = `SELECT bucket, id, payload FROM records`
)

// Store embeds the in-memory engine and mirrors every commit to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (or creates) the database at path and hydrates the store
// from it. An empty path uses bloodsync.db in the working directory.
func NewStore(ctx context.Context, path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// A single connection serialises writers; sqlite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createRecordsTable); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}
	snapshot, err := load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, slices.Concat(opts, []memory.Option{memory.WithCommitHook(s.persist)})...)
	s.now = s.NowFunc()
	s.ImportState(snapshot)
	return s, nil
}

func load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
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

func (s *Store) persist(ctx context.Context, changes []memory.Change) (retErr error) {
	records, err := memory.RecordsFromChanges(changes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		if rec.Deleted {
			_, err = tx.ExecContext(ctx, deleteRecord, rec.Bucket, rec.ID)
		} else {
			_, err = tx.ExecContext(ctx, upsertRecord, rec.Bucket, rec.ID, rec.Payload, stamp)
		}
		if err != nil {
			return unavailable("write "+rec.Bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return domain.BackendUnavailableError{Backend: backendName, Op: op, Err: err}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

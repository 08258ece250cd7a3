package postgres

import (
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/internal/infra/persistence/postgres/testutil"
	"bloodsync/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver {
			t.Fatalf("unexpected driver %s", driver)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "", nil, memory.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesRecordsTable(t *testing.T) {
	_, conn := openStub(t)
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS records") {
		t.Fatalf("expected records DDL first, got %v", conn.Execs)
	}
}

func TestCommitUpsertsChangedRecords(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateDonor(domain.Donor{Base: domain.Base{ID: "DON-1"}, Name: "Asha", BloodGroup: domain.OPositive}); err != nil {
			return err
		}
		if _, err := tx.SetInventory(domain.OPositive, 4); err != nil {
			return err
		}
		_, err := tx.SetInventory(domain.OPositive, 6)
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	rows := conn.Rows("records")
	if len(rows) != 2 {
		t.Fatalf("expected one row per key, got %v", rows)
	}
	for _, row := range rows {
		if row["bucket"] != memory.BucketInventory {
			continue
		}
		var entry domain.InventoryEntry
		if err := json.Unmarshal(row["payload"].([]byte), &entry); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if entry.Units != 6 || row["id"] != "O+" {
			t.Fatalf("expected latest inventory persisted, got %+v", row)
		}
	}
}

func TestNewStoreHydratesFromRecords(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	first, err := NewStore(ctx, "postgres://ignored", nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err = first.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateRequest(domain.BloodRequest{Base: domain.Base{ID: "BR-1"}, BloodGroup: domain.ANegative, UnitsNeeded: 3, Status: domain.RequestStatusPending})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(conn.Rows("records")) != 1 {
		t.Fatalf("expected request persisted")
	}

	second, err := NewStore(ctx, "postgres://ignored", nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	got, ok := second.GetRequest("BR-1")
	if !ok || got.UnitsNeeded != 3 || got.BloodGroup != domain.ANegative {
		t.Fatalf("expected hydrated request, got %+v", got)
	}
}

func TestCommitFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	conn.FailCommit = true
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.SetInventory(domain.BPositive, 9)
		return err
	})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if units := store.InventoryUnits(domain.BPositive); units != 0 {
		t.Fatalf("failed commit must not become visible, got %d", units)
	}

	conn.FailCommit = false
	conn.FailExec = true
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.SetInventory(domain.BPositive, 9)
		return err
	})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected write failure surfaced, got %v", err)
	}
}

func TestNewStoreFailures(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func(*testutil.StubConn){
		"ping":    func(c *testutil.StubConn) { c.FailPing = true },
		"migrate": func(c *testutil.StubConn) { c.FailExec = true },
		"load":    func(c *testutil.StubConn) { c.FailQuery = true },
	}
	for name, breakConn := range cases {
		t.Run(name, func(t *testing.T) {
			db, conn := testutil.NewStubDB()
			breakConn(conn)
			restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
			defer restore()
			if _, err := NewStore(ctx, "", nil); !errors.Is(err, domain.ErrBackendUnavailable) {
				t.Fatalf("expected backend unavailable, got %v", err)
			}
		})
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	defer restore()
	if _, err := NewStore(ctx, "", nil); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected open failure wrapped, got %v", err)
	}
}

func TestNewStoreRejectsCorruptRecord(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.Tables["records"] = []map[string]any{{"bucket": "donors", "id": "DON-1", "payload": []byte("{")}}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected decode failure")
	}
}

package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBUpsertsDeletesAndQueries(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	upsert := "INSERT INTO records (bucket, id, payload) VALUES ($1, $2, $3) ON CONFLICT (bucket, id) DO UPDATE SET payload = EXCLUDED.payload"
	for _, args := range [][]any{{"donors", "DON-1", "a"}, {"donors", "DON-2", "b"}, {"donors", "DON-1", "c"}, {"inventory", "DON-1", "d"}} {
		named := []driver.NamedValue{{Value: args[0]}, {Value: args[1]}, {Value: args[2]}}
		if _, err := conn.ExecContext(ctx, upsert, named); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if rows := conn.Rows("records"); len(rows) != 3 {
		t.Fatalf("expected composite conflict key to keep 3 rows, got %v", rows)
	}

	res, err := conn.ExecContext(ctx, "DELETE FROM records WHERE bucket = $1 AND id = $2", []driver.NamedValue{{Value: "donors"}, {Value: "DON-2"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected one row deleted, got %d", n)
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, id, payload FROM records ORDER BY bucket, id", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	got := map[string]any{}
	dest := make([]driver.Value, 3)
	for rows.Next(dest) == nil {
		got[dest[0].(string)+"/"+dest[1].(string)] = dest[2]
	}
	if len(got) != 2 || got["donors/DON-1"] != "c" || got["inventory/DON-1"] != "d" {
		t.Fatalf("unexpected rows %v", got)
	}
}

func TestStubDBFailureSwitches(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailQuery = true
	if _, err := conn.QueryContext(ctx, "SELECT a FROM t", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM t", nil); err == nil {
		t.Fatalf("expected unparsable delete to fail")
	}
}

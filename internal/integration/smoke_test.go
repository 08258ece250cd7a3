package integration

import (
	"bloodsync/internal/blob"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	core "bloodsync/internal/core"
	domain "bloodsync/pkg/domain"
)

// TestIntegrationSmoke runs a short donation cycle against every in-process
// storage driver and every local blob driver.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		cfg  func(t *testing.T) core.StorageConfig
	}{
		{
			name: "memory-store",
			cfg:  func(*testing.T) core.StorageConfig { return core.StorageConfig{Driver: core.StorageMemory} },
		},
		{
			name: "sqlite-store",
			cfg: func(t *testing.T) core.StorageConfig {
				return core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "bloodsync.db")}
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(*testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				store, err := core.OpenPersistentStore(ctx, sv.cfg(t), nil, nil)
				if err != nil {
					t.Fatalf("open store: %v", err)
				}
				if c, ok := store.(io.Closer); ok {
					t.Cleanup(func() { _ = c.Close() })
				}
				ledger := bv.open(t)
				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				tracer := core.NewJSONLineTracer(&traces, 0)
				svc := core.NewService(store,
					core.WithMetricsRecorder(metrics),
					core.WithTracer(tracer),
					core.WithLedgerStore(ledger),
				)

				if _, err := svc.SeedInventory(ctx, nil); err != nil {
					t.Fatalf("seed inventory: %v", err)
				}
				if n, err := svc.SeedSampleDonors(ctx); err != nil || n != 6 {
					t.Fatalf("seed donors: n=%d err=%v", n, err)
				}
				before, err := svc.InventoryUnits(ctx, domain.BNegative)
				if err != nil {
					t.Fatalf("inventory units: %v", err)
				}
				donation, err := svc.RecordDonation(ctx, "DON-I9J0K1L2", core.DonationInput{Units: core.Units(1), Center: "Bangalore Central"})
				if err != nil {
					t.Fatalf("record donation: %v", err)
				}
				after, _ := svc.InventoryUnits(ctx, domain.BNegative)
				if after != before+1 {
					t.Fatalf("expected B- stock to grow by one, before=%d after=%d", before, after)
				}
				donor, err := svc.GetDonor(ctx, "DON-I9J0K1L2")
				if err != nil || donor.TotalDonations != 3 {
					t.Fatalf("expected donor history updated, got %+v err=%v", donor, err)
				}

				export, err := svc.ExportLedger(ctx)
				if err != nil {
					t.Fatalf("export ledger: %v", err)
				}
				if export.Entries != 1 || !strings.HasPrefix(export.Key, core.LedgerPrefix) {
					t.Fatalf("unexpected export %+v", export)
				}
				_, rc, err := ledger.Get(ctx, export.Key)
				if err != nil {
					t.Fatalf("blob get: %v", err)
				}
				body, _ := io.ReadAll(rc)
				_ = rc.Close()
				if !strings.Contains(string(body), donation.ID) {
					t.Fatalf("expected ledger to contain %s, got %s", donation.ID, body)
				}

				snapshot := metrics.Snapshot()
				if snapshot.Operations["record_donation"].Success != 1 {
					t.Fatalf("expected record_donation success metric, got %+v", snapshot.Operations)
				}
				var found bool
				for _, span := range tracer.Spans() {
					if span.Operation == "export_ledger" && span.Status == "success" {
						found = true
						break
					}
				}
				if !found || traces.Len() == 0 {
					t.Fatalf("expected export_ledger span, spans=%+v", tracer.Spans())
				}
			})
		}
	}

	if os.Getenv("BLOODSYNC_BLOB_DRIVER") != "" || os.Getenv("BLOODSYNC_STORAGE_DRIVER") != "" {
		t.Fatalf("expected no test-induced env leakage")
	}
}

package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRemoveFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustAdjust(t, svc, domain.OPositive, 20, AdjustAdd)
	entry := mustAdjust(t, svc, domain.OPositive, 1_000_000, AdjustRemove)
	if entry.Units != 0 {
		t.Fatalf("expected floor at zero, got %d", entry.Units)
	}
	if units, _ := svc.InventoryUnits(ctx, domain.OPositive); units != 0 {
		t.Fatalf("expected stored zero, got %d", units)
	}
	if units, _ := svc.InventoryUnits(ctx, "Z+"); units != 0 {
		t.Fatalf("unknown group should report zero, got %d", units)
	}
}

func TestAdjustInventoryValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	cases := []struct {
		name  string
		group BloodGroup
		units int
		dir   AdjustDirection
	}{
		{"unknown group", "Q+", 1, AdjustAdd},
		{"negative units", domain.APositive, -1, AdjustAdd},
		{"unknown direction", domain.APositive, 1, "sideways"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AdjustInventory(ctx, tc.group, tc.units, tc.dir); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCriticalStockWarningsAndEvents(t *testing.T) {
	logger := &captureLogger{}
	pub := events.NewMemoryPublisher()
	svc, _ := newTestService(t, WithLogger(logger), WithPublisher(pub))
	mustAdjust(t, svc, domain.ABNegative, 25, AdjustAdd)
	if len(pub.Of(events.InventoryCritical)) != 0 {
		t.Fatalf("25 units is not critical")
	}
	mustAdjust(t, svc, domain.ABNegative, 10, AdjustRemove)
	critical := pub.Of(events.InventoryCritical)
	if len(critical) != 1 || critical[0].EntityID != string(domain.ABNegative) {
		t.Fatalf("expected one critical event, got %+v", critical)
	}
	if !logger.has("warn", "rule warning") {
		t.Fatalf("expected critical stock warning logged")
	}
	if len(pub.Of(events.InventoryAdjusted)) != 2 {
		t.Fatalf("expected adjustment events")
	}
}

func TestSeedInventoryOnlyFillsMissingGroups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustAdjust(t, svc, domain.APositive, 7, AdjustAdd)

	seeded, err := svc.SeedInventory(ctx, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seeded) != 7 {
		t.Fatalf("expected 7 groups seeded, got %d", len(seeded))
	}
	if units, _ := svc.InventoryUnits(ctx, domain.APositive); units != 7 {
		t.Fatalf("existing stock must be kept, got %d", units)
	}
	if units, _ := svc.InventoryUnits(ctx, domain.OPositive); units != 60 {
		t.Fatalf("expected default O+ level, got %d", units)
	}
	again, err := svc.SeedInventory(ctx, nil)
	if err != nil || len(again) != 0 {
		t.Fatalf("second seed should be a no-op: %v %d", err, len(again))
	}

	critical, _ := svc.CriticalGroups(ctx)
	if !reflect.DeepEqual(critical, []BloodGroup{domain.APositive, domain.ABNegative}) {
		t.Fatalf("unexpected critical groups %v", critical)
	}
	inv, _ := svc.ListInventory(ctx)
	if len(inv) != 8 || inv[0].BloodGroup != domain.APositive || inv[7].BloodGroup != domain.ONegative {
		t.Fatalf("expected canonical inventory listing, got %+v", inv)
	}
}

func TestListInventoryFillsMissingGroups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustAdjust(t, svc, domain.BPositive, 3, AdjustAdd)
	inv, err := svc.ListInventory(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inv) != 8 {
		t.Fatalf("expected all groups, got %d", len(inv))
	}
	for _, e := range inv {
		want := 0
		if e.BloodGroup == domain.BPositive {
			want = 3
		}
		if e.Units != want {
			t.Fatalf("%s: expected %d, got %d", e.BloodGroup, want, e.Units)
		}
	}
}

func TestApplyAdjustment(t *testing.T) {
	cases := []struct {
		current, units int
		dir            AdjustDirection
		want           int
	}{
		{10, 5, AdjustAdd, 15},
		{10, 5, AdjustRemove, 5},
		{10, 15, AdjustRemove, 0},
		{0, 0, AdjustRemove, 0},
	}
	for _, tc := range cases {
		if got := applyAdjustment(tc.current, tc.units, tc.dir); got != tc.want {
			t.Fatalf("applyAdjustment(%d, %d, %s) = %d, want %d", tc.current, tc.units, tc.dir, got, tc.want)
		}
	}
}

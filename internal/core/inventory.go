package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"fmt"
	"slices"
)

// AdjustDirection selects whether an adjustment adds or removes units.
type AdjustDirection string

// Adjustment directions.
const (
	AdjustAdd    AdjustDirection = "add"
	AdjustRemove AdjustDirection = "remove"
)

// DefaultInventoryLevels are the starting stock levels used when seeding.
func DefaultInventoryLevels() map[BloodGroup]int {
	return map[BloodGroup]int{
		domain.APositive:  50,
		domain.ANegative:  30,
		domain.BPositive:  45,
		domain.BNegative:  25,
		domain.ABPositive: 20,
		domain.ABNegative: 15,
		domain.OPositive:  60,
		domain.ONegative:  40,
	}
}

// applyAdjustment returns the new unit count. Removal floors at zero.
func applyAdjustment(current, units int, dir AdjustDirection) int {
	if dir == AdjustRemove {
		return max(current-units, 0)
	}
	return current + units
}

// fullInventory lists every blood group in canonical order, reporting zero
// for groups without an entry.
func fullInventory(view TransactionView) []InventoryEntry {
	present := make(map[BloodGroup]InventoryEntry)
	for _, e := range view.ListInventory() {
		present[e.BloodGroup] = e
	}
	out := make([]InventoryEntry, 0, len(present))
	for _, g := range domain.AllBloodGroups() {
		if e, ok := present[g]; ok {
			out = append(out, e)
			continue
		}
		out = append(out, InventoryEntry{BloodGroup: g})
	}
	return out
}

func criticalGroups(view TransactionView) []BloodGroup {
	var out []BloodGroup
	for _, e := range fullInventory(view) {
		if e.Units < domain.CriticalStockThreshold {
			out = append(out, e.BloodGroup)
		}
	}
	return out
}

// InventoryUnits returns the stock for a group; unknown groups hold zero.
func (s *Service) InventoryUnits(ctx context.Context, group BloodGroup) (int, error) {
	var units int
	err := s.store.View(ctx, func(view TransactionView) error {
		units = view.InventoryUnits(group)
		return nil
	})
	return units, err
}

// ListInventory reports stock for all eight blood groups.
func (s *Service) ListInventory(ctx context.Context) ([]InventoryEntry, error) {
	var out []InventoryEntry
	err := s.store.View(ctx, func(view TransactionView) error {
		out = fullInventory(view)
		return nil
	})
	return out, err
}

// CriticalGroups lists blood groups below the critical stock threshold.
func (s *Service) CriticalGroups(ctx context.Context) ([]BloodGroup, error) {
	var out []BloodGroup
	err := s.store.View(ctx, func(view TransactionView) error {
		out = criticalGroups(view)
		return nil
	})
	return out, err
}

// AdjustInventory adds or removes units for a group. Removing more than is
// in stock leaves the group at zero.
func (s *Service) AdjustInventory(ctx context.Context, group BloodGroup, units int, dir AdjustDirection) (InventoryEntry, error) {
	var entry InventoryEntry
	var res Result
	err := s.run(ctx, opAdjustInventory, func(ctx context.Context) (string, error) {
		g, err := domain.ParseBloodGroup(string(group))
		if err != nil {
			return string(group), err
		}
		if units < 0 {
			return string(g), domain.ValidationError{Field: "units", Message: "units must not be negative"}
		}
		if dir != AdjustAdd && dir != AdjustRemove {
			return string(g), domain.ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", dir)}
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current := tx.Snapshot().InventoryUnits(g)
			var err error
			entry, err = tx.SetInventory(g, applyAdjustment(current, units, dir))
			return err
		})
		return string(g), err
	})
	if err != nil {
		return InventoryEntry{}, err
	}
	s.reportWarnings(ctx, opAdjustInventory, res)
	s.publish(ctx, events.InventoryAdjusted, string(entry.BloodGroup), map[string]any{
		"direction": string(dir),
		"units":     units,
		"stock":     entry.Units,
	})
	return entry, nil
}

// SeedInventory sets stock for groups that have no entry yet. Existing
// entries are left untouched. A nil levels map uses DefaultInventoryLevels.
func (s *Service) SeedInventory(ctx context.Context, levels map[BloodGroup]int) ([]InventoryEntry, error) {
	if levels == nil {
		levels = DefaultInventoryLevels()
	}
	var seeded []InventoryEntry
	var res Result
	err := s.run(ctx, opSeedInventory, func(ctx context.Context) (string, error) {
		groups := make([]BloodGroup, 0, len(levels))
		for g := range levels {
			groups = append(groups, g)
		}
		slices.Sort(groups)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			existing := make(map[BloodGroup]struct{})
			for _, e := range view.ListInventory() {
				existing[e.BloodGroup] = struct{}{}
			}
			for _, g := range groups {
				if _, ok := existing[g]; ok {
					continue
				}
				if levels[g] < 0 {
					return domain.ValidationError{Field: "units", Message: fmt.Sprintf("seed level for %s must not be negative", g)}
				}
				entry, err := tx.SetInventory(g, levels[g])
				if err != nil {
					return err
				}
				seeded = append(seeded, entry)
			}
			return nil
		})
		return "", err
	})
	if err != nil {
		return nil, err
	}
	s.reportWarnings(ctx, opSeedInventory, res)
	for _, e := range seeded {
		s.publish(ctx, events.InventoryAdjusted, string(e.BloodGroup), map[string]any{
			"direction": string(AdjustAdd),
			"units":     e.Units,
			"stock":     e.Units,
		})
	}
	return seeded, nil
}

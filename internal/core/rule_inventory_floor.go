package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
)

// InventoryFloorRule blocks any commit that leaves an inventory entry negative.
func InventoryFloorRule() domain.Rule {
	return inventoryFloorRule{}
}

type inventoryFloorRule struct{}

func (inventoryFloorRule) Name() string { return "inventory_floor" }

func (r inventoryFloorRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityInventory {
			continue
		}
		entry, ok := change.After.(domain.InventoryEntry)
		if !ok || entry.Units >= 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("inventory for %s cannot be negative (%d)", entry.BloodGroup, entry.Units),
			Entity:   domain.EntityInventory,
			EntityID: string(entry.BloodGroup),
		})
	}
	return res, nil
}

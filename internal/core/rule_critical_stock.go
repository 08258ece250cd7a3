package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
)

const criticalStockRuleName = "critical_stock"

// CriticalStockRule warns when an inventory change leaves a group below the
// threshold. It never blocks: shortages are reported, not prevented.
func CriticalStockRule(threshold int) domain.Rule {
	return criticalStockRule{threshold: threshold}
}

type criticalStockRule struct {
	threshold int
}

func (criticalStockRule) Name() string { return criticalStockRuleName }

func (r criticalStockRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityInventory {
			continue
		}
		if _, dup := seen[change.EntityID]; dup {
			continue
		}
		seen[change.EntityID] = struct{}{}
		group := domain.BloodGroup(change.EntityID)
		units := view.InventoryUnits(group)
		if units >= r.threshold {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s stock at %d units, below %d", group, units, r.threshold),
			Entity:   domain.EntityInventory,
			EntityID: string(group),
		})
	}
	return res, nil
}

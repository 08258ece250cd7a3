package core

import (
	"bloodsync/pkg/domain"
)

// NewDefaultRulesEngine returns an engine with every built-in invariant
// registered.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(InventoryFloorRule())
	engine.Register(RequestFulfillmentRule())
	engine.Register(AssignmentTransitionRule())
	engine.Register(DonationLedgerRule())
	engine.Register(CriticalStockRule(domain.CriticalStockThreshold))
	return engine
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

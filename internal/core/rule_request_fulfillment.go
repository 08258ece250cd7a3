package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
)

// RequestFulfillmentRule guards request bookkeeping: fulfilled units never
// decrease or exceed the units needed, status never regresses, and a
// fulfilled request is frozen.
func RequestFulfillmentRule() domain.Rule {
	return requestFulfillmentRule{}
}

type requestFulfillmentRule struct{}

func (requestFulfillmentRule) Name() string { return "request_fulfillment" }

func (r requestFulfillmentRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityRequest,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityRequest {
			continue
		}
		after, ok := change.After.(domain.BloodRequest)
		if !ok {
			continue
		}
		if after.Status.Rank() < 0 {
			block(after.ID, fmt.Sprintf("request %s has unknown status %s", after.ID, after.Status))
			continue
		}
		if after.FulfilledUnits < 0 || after.FulfilledUnits > after.UnitsNeeded {
			block(after.ID, fmt.Sprintf("request %s fulfilled units %d outside [0, %d]", after.ID, after.FulfilledUnits, after.UnitsNeeded))
		}
		before, ok := change.Before.(domain.BloodRequest)
		if !ok {
			continue
		}
		if after.FulfilledUnits < before.FulfilledUnits {
			block(after.ID, fmt.Sprintf("request %s fulfilled units decreased from %d to %d", after.ID, before.FulfilledUnits, after.FulfilledUnits))
		}
		if after.Status.Rank() < before.Status.Rank() {
			block(after.ID, fmt.Sprintf("request %s status regressed from %s to %s", after.ID, before.Status, after.Status))
		}
		if before.Status == domain.RequestStatusFulfilled && (after.FulfilledUnits != before.FulfilledUnits || after.UnitsNeeded != before.UnitsNeeded) {
			block(after.ID, fmt.Sprintf("request %s is fulfilled and cannot change", after.ID))
		}
	}
	return res, nil
}

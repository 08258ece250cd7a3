package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
)

// DonationLedgerRule keeps the donation ledger append-only and well formed.
func DonationLedgerRule() domain.Rule {
	return donationLedgerRule{}
}

type donationLedgerRule struct{}

func (donationLedgerRule) Name() string { return "donation_ledger" }

func (r donationLedgerRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityDonation,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityDonation {
			continue
		}
		if change.Action != domain.ActionCreate {
			block(change.EntityID, fmt.Sprintf("donation %s is immutable", change.EntityID))
			continue
		}
		donation, ok := change.After.(domain.Donation)
		if !ok {
			continue
		}
		if donation.Units <= 0 {
			block(donation.ID, fmt.Sprintf("donation %s must carry positive units", donation.ID))
		}
		if !donation.Type.Valid() {
			block(donation.ID, fmt.Sprintf("donation %s has unknown type %s", donation.ID, donation.Type))
		}
	}
	return res, nil
}

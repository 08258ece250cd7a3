package core

import (
	"bloodsync/pkg/domain"
	"context"
	"slices"
)

// Statistics is the blood bank overview.
type Statistics struct {
	TotalDonors       int              `json:"total_donors"`
	TotalRequestors   int              `json:"total_requestors"`
	TotalRequests     int              `json:"total_requests"`
	ActiveRequests    int              `json:"active_requests"`
	FulfilledRequests int              `json:"fulfilled_requests"`
	TotalUnits        int              `json:"total_units"`
	CriticalGroups    []BloodGroup     `json:"critical_groups"`
	Inventory         []InventoryEntry `json:"inventory"`
}

// DonorDashboard gathers what a donor sees after signing in.
type DonorDashboard struct {
	Donor             Donor                   `json:"donor"`
	Donations         []Donation              `json:"donations"`
	CanDonateNow      bool                    `json:"can_donate_now"`
	DaysUntilEligible int                     `json:"days_until_eligible"`
	Assignments       []AssignmentWithRequest `json:"assignments"`
	AvailableRequests []AvailableRequest      `json:"available_requests"`
}

// AssignmentWithRequest pairs an assignment with the request it serves.
type AssignmentWithRequest struct {
	Assignment Assignment   `json:"assignment"`
	Request    BloodRequest `json:"request"`
}

// AssignmentWithDonor pairs an assignment with the donor who made it.
type AssignmentWithDonor struct {
	Assignment Assignment `json:"assignment"`
	Donor      Donor      `json:"donor"`
}

// RequestDetails is the full picture of a single request.
type RequestDetails struct {
	Request          BloodRequest          `json:"request"`
	Match            MatchResult           `json:"match"`
	Assignments      []AssignmentWithDonor `json:"assignments"`
	Donations        []Donation            `json:"donations"`
	RemainingUnits   int                   `json:"remaining_units"`
	HasEligibleDonor bool                  `json:"has_eligible_donor"`
	InventoryUnits   int                   `json:"inventory_units"`
}

// RequestSummary is one entry of a requestor's history.
type RequestSummary struct {
	Request         BloodRequest          `json:"request"`
	Assignments     []AssignmentWithDonor `json:"assignments"`
	Donations       []Donation            `json:"donations"`
	SuggestedDonors []DonorMatch          `json:"suggested_donors"`
	RemainingUnits  int                   `json:"remaining_units"`
	InventoryUnits  int                   `json:"inventory_units"`
}

// RequestorDashboard gathers a requestor's requests, newest first.
type RequestorDashboard struct {
	Requestor Requestor        `json:"requestor"`
	Requests  []RequestSummary `json:"requests"`
}

func statistics(view TransactionView) Statistics {
	stats := Statistics{
		TotalDonors:     len(view.ListDonors()),
		TotalRequestors: len(view.ListRequestors()),
		CriticalGroups:  criticalGroups(view),
		Inventory:       fullInventory(view),
	}
	for _, r := range view.ListRequests() {
		stats.TotalRequests++
		switch {
		case r.Status.Open():
			stats.ActiveRequests++
		case r.Status == domain.RequestStatusFulfilled:
			stats.FulfilledRequests++
		}
	}
	for _, e := range stats.Inventory {
		stats.TotalUnits += e.Units
	}
	return stats
}

func donationsWhere(view TransactionView, keep func(Donation) bool) []Donation {
	var out []Donation
	for _, d := range view.ListDonations() {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func donationsForRequest(view TransactionView, requestID string) []Donation {
	return donationsWhere(view, func(d Donation) bool {
		return d.RequestID != nil && *d.RequestID == requestID
	})
}

func assignedDonors(view TransactionView, requestID string) []AssignmentWithDonor {
	var out []AssignmentWithDonor
	for _, a := range assignmentsForRequest(view, requestID) {
		d, ok := view.FindDonor(a.DonorID)
		if !ok {
			continue
		}
		out = append(out, AssignmentWithDonor{Assignment: a, Donor: d})
	}
	return out
}

// Statistics reports totals, stock and critical shortages.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	err := s.run(ctx, opStatistics, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(view TransactionView) error {
			out = statistics(view)
			return nil
		})
	})
	return out, err
}

// DonorDashboard returns a donor's history, eligibility, open assignments and
// the requests they could help with.
func (s *Service) DonorDashboard(ctx context.Context, donorID string) (DonorDashboard, error) {
	var out DonorDashboard
	err := s.run(ctx, opDonorDashboard, func(ctx context.Context) (string, error) {
		return donorID, s.store.View(ctx, func(view TransactionView) error {
			donor, ok := view.FindDonor(donorID)
			if !ok {
				return domain.NotFoundError{Entity: EntityDonor, ID: donorID}
			}
			now := s.now()
			out = DonorDashboard{
				Donor:             donor,
				Donations:         donationsWhere(view, func(d Donation) bool { return d.DonorID == donorID }),
				CanDonateNow:      domain.CanDonate(donor.LastDonation, now),
				DaysUntilEligible: domain.DaysUntilEligible(donor.LastDonation, now),
				AvailableRequests: availableRequestsForDonor(view, donor),
			}
			for _, a := range openAssignmentsForDonor(view, donorID) {
				req, ok := view.FindRequest(a.RequestID)
				if !ok {
					continue
				}
				out.Assignments = append(out.Assignments, AssignmentWithRequest{Assignment: a, Request: req})
			}
			return nil
		})
	})
	return out, err
}

// RequestDetails returns a request with a fresh donor match, its assignments
// and its ledger entries.
func (s *Service) RequestDetails(ctx context.Context, requestID string) (RequestDetails, error) {
	var out RequestDetails
	err := s.run(ctx, opRequestDetails, func(ctx context.Context) (string, error) {
		return requestID, s.store.View(ctx, func(view TransactionView) error {
			req, ok := view.FindRequest(requestID)
			if !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			now := s.now()
			out = RequestDetails{
				Request:          req,
				Match:            matchRequest(view, req, now),
				Assignments:      assignedDonors(view, requestID),
				Donations:        donationsForRequest(view, requestID),
				RemainingUnits:   req.Remaining(),
				HasEligibleDonor: hasEligibleDonor(view, req.BloodGroup, now),
				InventoryUnits:   view.InventoryUnits(req.BloodGroup),
			}
			return nil
		})
	})
	return out, err
}

// RequestorDashboard returns a requestor's requests, newest first, each with
// suggested donors who have not yet accepted it.
func (s *Service) RequestorDashboard(ctx context.Context, requestorID string) (RequestorDashboard, error) {
	var out RequestorDashboard
	err := s.run(ctx, opRequestorDashboard, func(ctx context.Context) (string, error) {
		return requestorID, s.store.View(ctx, func(view TransactionView) error {
			requestor, ok := view.FindRequestor(requestorID)
			if !ok {
				return domain.NotFoundError{Entity: EntityRequestor, ID: requestorID}
			}
			out = RequestorDashboard{Requestor: requestor}
			now := s.now()
			for _, req := range view.ListRequests() {
				if req.RequestorID != requestorID {
					continue
				}
				assigned := assignedDonors(view, req.ID)
				taken := make(map[string]struct{}, len(assigned))
				for _, a := range assigned {
					taken[a.Donor.ID] = struct{}{}
				}
				var suggested []DonorMatch
				for _, m := range matchRequest(view, req, now).CompatibleDonors {
					if _, ok := taken[m.Donor.ID]; !ok {
						suggested = append(suggested, m)
					}
				}
				out.Requests = append(out.Requests, RequestSummary{
					Request:         req,
					Assignments:     assigned,
					Donations:       donationsForRequest(view, req.ID),
					SuggestedDonors: suggested,
					RemainingUnits:  req.Remaining(),
					InventoryUnits:  view.InventoryUnits(req.BloodGroup),
				})
			}
			slices.SortStableFunc(out.Requests, func(a, b RequestSummary) int {
				return b.Request.CreatedAt.Compare(a.Request.CreatedAt)
			})
			return nil
		})
	})
	return out, err
}

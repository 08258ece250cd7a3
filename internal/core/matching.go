package core

import (
	"bloodsync/pkg/domain"
	"cmp"
	"context"
	"slices"
	"strings"
	"time"
)

// DonorMatch is a compatible donor ranked for a request.
type DonorMatch struct {
	Donor        Donor `json:"donor"`
	Score        int   `json:"score"`
	CanDonateNow bool  `json:"can_donate_now"`
}

// MatchResult summarises who and what can supply a request.
type MatchResult struct {
	RequestID        string       `json:"request_id"`
	BloodGroup       BloodGroup   `json:"blood_group"`
	CompatibleDonors []DonorMatch `json:"compatible_donors"`
	TotalCompatible  int          `json:"total_compatible"`
	InventoryUnits   int          `json:"inventory_units"`
	RemainingUnits   int          `json:"remaining_units"`
	Fulfillable      bool         `json:"fulfillable"`
}

// AvailableRequest is an open request a donor could help with.
type AvailableRequest struct {
	Request        BloodRequest `json:"request"`
	RemainingUnits int          `json:"remaining_units"`
}

func matchesLocation(location string, fields ...string) bool {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return true
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), location) {
			return true
		}
	}
	return false
}

// compatibleDonors returns active, available donors whose group can give to
// the recipient group, most recent donors first.
func compatibleDonors(view TransactionView, recipient BloodGroup, location string) []Donor {
	sources := domain.ReceivesFrom(recipient)
	var out []Donor
	for _, d := range view.ListDonors() {
		if !d.Active() || !slices.Contains(sources, d.BloodGroup) {
			continue
		}
		if !matchesLocation(location, d.City, d.State) {
			continue
		}
		out = append(out, d)
	}
	sortByRecentDonation(out)
	return out
}

// sortByRecentDonation orders donors by last donation descending. Donors who
// never donated sort as the oldest.
func sortByRecentDonation(donors []Donor) {
	slices.SortStableFunc(donors, func(a, b Donor) int {
		switch {
		case a.LastDonation == nil && b.LastDonation == nil:
		case a.LastDonation == nil:
			return 1
		case b.LastDonation == nil:
			return -1
		default:
			if c := b.LastDonation.Compare(*a.LastDonation); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func rankMatches(donors []Donor, now time.Time) []DonorMatch {
	matches := make([]DonorMatch, 0, len(donors))
	for _, d := range donors {
		matches = append(matches, DonorMatch{
			Donor:        d,
			Score:        domain.EligibilityScore(d, now),
			CanDonateNow: domain.CanDonate(d.LastDonation, now),
		})
	}
	slices.SortStableFunc(matches, func(a, b DonorMatch) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return matches
}

func matchRequest(view TransactionView, req BloodRequest, now time.Time) MatchResult {
	donors := compatibleDonors(view, req.BloodGroup, req.Location)
	ranked := rankMatches(donors, now)
	if len(ranked) > domain.MatchLimit {
		ranked = ranked[:domain.MatchLimit]
	}
	inventory := view.InventoryUnits(req.BloodGroup)
	remaining := req.Remaining()
	return MatchResult{
		RequestID:        req.ID,
		BloodGroup:       req.BloodGroup,
		CompatibleDonors: ranked,
		TotalCompatible:  len(donors),
		InventoryUnits:   inventory,
		RemainingUnits:   remaining,
		Fulfillable:      inventory >= remaining || len(donors) > 0,
	}
}

func availableRequestsForDonor(view TransactionView, donor Donor) []AvailableRequest {
	targets := domain.DonatesTo(donor.BloodGroup)
	assigned := make(map[string]struct{})
	for _, a := range view.ListAssignments() {
		if a.DonorID == donor.ID {
			assigned[a.RequestID] = struct{}{}
		}
	}
	var out []AvailableRequest
	for _, r := range view.ListRequests() {
		if !r.Status.Open() || !slices.Contains(targets, r.BloodGroup) {
			continue
		}
		if _, ok := assigned[r.ID]; ok {
			continue
		}
		out = append(out, AvailableRequest{Request: r, RemainingUnits: r.Remaining()})
	}
	slices.SortStableFunc(out, func(a, b AvailableRequest) int {
		if c := cmp.Compare(a.Request.Urgency.Rank(), b.Request.Urgency.Rank()); c != 0 {
			return c
		}
		if c := a.Request.CreatedAt.Compare(b.Request.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Request.ID, b.Request.ID)
	})
	return out
}

func hasEligibleDonor(view TransactionView, group BloodGroup, now time.Time) bool {
	for _, d := range compatibleDonors(view, group, "") {
		if domain.CanDonate(d.LastDonation, now) {
			return true
		}
	}
	return false
}

func parseGroup(raw BloodGroup) (BloodGroup, error) {
	return domain.ParseBloodGroup(string(raw))
}

// FindCompatibleDonors lists active, available donors able to give to group,
// optionally filtered by a city or state substring.
func (s *Service) FindCompatibleDonors(ctx context.Context, group BloodGroup, location string) ([]Donor, error) {
	var out []Donor
	err := s.run(ctx, opFindCompatible, func(ctx context.Context) (string, error) {
		g, err := parseGroup(group)
		if err != nil {
			return "", err
		}
		return string(g), s.store.View(ctx, func(view TransactionView) error {
			out = compatibleDonors(view, g, location)
			return nil
		})
	})
	return out, err
}

// MatchRequest ranks compatible donors for a request and reports whether it
// can be fulfilled from donors or inventory.
func (s *Service) MatchRequest(ctx context.Context, requestID string) (MatchResult, error) {
	var out MatchResult
	err := s.run(ctx, opMatchRequest, func(ctx context.Context) (string, error) {
		return requestID, s.store.View(ctx, func(view TransactionView) error {
			req, ok := view.FindRequest(requestID)
			if !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			out = matchRequest(view, req, s.now())
			return nil
		})
	})
	return out, err
}

// FindAvailableRequestsForDonor lists open requests the donor can supply and
// has not already accepted, most urgent and oldest first.
func (s *Service) FindAvailableRequestsForDonor(ctx context.Context, donorID string) ([]AvailableRequest, error) {
	var out []AvailableRequest
	err := s.run(ctx, opAvailableRequests, func(ctx context.Context) (string, error) {
		return donorID, s.store.View(ctx, func(view TransactionView) error {
			donor, ok := view.FindDonor(donorID)
			if !ok {
				return domain.NotFoundError{Entity: EntityDonor, ID: donorID}
			}
			out = availableRequestsForDonor(view, donor)
			return nil
		})
	})
	return out, err
}

// HasEligibleDonor reports whether any compatible, available donor could give
// to group today.
func (s *Service) HasEligibleDonor(ctx context.Context, group BloodGroup) (bool, error) {
	var out bool
	err := s.run(ctx, opHasEligibleDonor, func(ctx context.Context) (string, error) {
		g, err := parseGroup(group)
		if err != nil {
			return "", err
		}
		return string(g), s.store.View(ctx, func(view TransactionView) error {
			out = hasEligibleDonor(view, g, s.now())
			return nil
		})
	})
	return out, err
}

// SearchDonors finds available, active donors by exact blood group and a
// location substring matched against city, state or pincode. Empty filters
// match everything.
func (s *Service) SearchDonors(ctx context.Context, group BloodGroup, location string) ([]Donor, error) {
	var out []Donor
	err := s.run(ctx, opSearchDonors, func(ctx context.Context) (string, error) {
		var want BloodGroup
		if strings.TrimSpace(string(group)) != "" {
			g, err := parseGroup(group)
			if err != nil {
				return "", err
			}
			want = g
		}
		return string(want), s.store.View(ctx, func(view TransactionView) error {
			for _, d := range view.ListDonors() {
				if !d.Active() || (want != "" && d.BloodGroup != want) {
					continue
				}
				if !matchesLocation(location, d.City, d.State, d.Pincode) {
					continue
				}
				out = append(out, d)
			}
			return nil
		})
	})
	return out, err
}

package core

import (
	"bloodsync/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

func TestUniversalDonorMatchedUnavailableExcluded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	universal := mustRegisterDonor(t, svc, domain.ONegative, "Mumbai")
	away := mustRegisterDonor(t, svc, domain.APositive, "Mumbai")
	off := false
	if _, err := svc.UpdateDonorProfile(ctx, away.ID, DonorProfileUpdate{Available: &off}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	req := mustSubmitRequest(t, svc, domain.ABPositive, 2, domain.UrgencyHigh)

	match, err := svc.MatchRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if match.TotalCompatible != 1 || len(match.CompatibleDonors) != 1 || match.CompatibleDonors[0].Donor.ID != universal.ID {
		t.Fatalf("expected only the O- donor, got %+v", match.CompatibleDonors)
	}
	if !match.CompatibleDonors[0].CanDonateNow || match.CompatibleDonors[0].Score != 120 {
		t.Fatalf("unexpected annotation %+v", match.CompatibleDonors[0])
	}
	if !match.Fulfillable || match.RemainingUnits != 2 || match.InventoryUnits != 0 {
		t.Fatalf("unexpected match summary %+v", match)
	}
	if len(req.MatchedDonorIDs) != 1 || req.MatchedDonorIDs[0] != universal.ID {
		t.Fatalf("submission should store matched donors, got %v", req.MatchedDonorIDs)
	}
}

func TestMatchRequestRanksAndCaps(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	var veteran Donor
	for i := 0; i < 12; i++ {
		d := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")
		if i == 7 {
			veteran = d
		}
	}
	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateDonor(veteran.ID, func(d *Donor) error {
			d.TotalDonations = 10
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}
	mustRegisterDonor(t, svc, domain.OPositive, "Delhi")
	req := mustSubmitRequest(t, svc, domain.OPositive, 1, domain.UrgencyNormal)

	match, err := svc.MatchRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if match.TotalCompatible != 12 {
		t.Fatalf("location filter should keep 12 Mumbai donors, got %d", match.TotalCompatible)
	}
	if len(match.CompatibleDonors) != domain.MatchLimit {
		t.Fatalf("expected top %d, got %d", domain.MatchLimit, len(match.CompatibleDonors))
	}
	if match.CompatibleDonors[0].Donor.ID != veteran.ID || match.CompatibleDonors[0].Score != 140 {
		t.Fatalf("expected veteran ranked first, got %+v", match.CompatibleDonors[0])
	}
	for i := 1; i < len(match.CompatibleDonors); i++ {
		if match.CompatibleDonors[i-1].Score < match.CompatibleDonors[i].Score {
			t.Fatalf("scores not descending at %d", i)
		}
	}
	if _, err := svc.MatchRequest(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindCompatibleDonorsOrdersByRecentDonation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	never := mustRegisterDonor(t, svc, domain.ONegative, "Pune")
	old := mustRegisterDonor(t, svc, domain.ONegative, "Pune")
	recent := mustRegisterDonor(t, svc, domain.ANegative, "Pune")
	setLastDonation(t, svc, old.ID, daysAgo(200))
	setLastDonation(t, svc, recent.ID, daysAgo(10))
	mustRegisterDonor(t, svc, domain.BNegative, "Pune")

	donors, err := svc.FindCompatibleDonors(ctx, "a-", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(donors) != 3 {
		t.Fatalf("expected 3 compatible donors, got %d", len(donors))
	}
	if donors[0].ID != recent.ID || donors[1].ID != old.ID || donors[2].ID != never.ID {
		t.Fatalf("unexpected order %s %s %s", donors[0].ID, donors[1].ID, donors[2].ID)
	}
	if _, err := svc.FindCompatibleDonors(ctx, "C+", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	byState, _ := svc.FindCompatibleDonors(ctx, domain.ANegative, "maharash")
	if len(byState) != 3 {
		t.Fatalf("state substring should match case-insensitively, got %d", len(byState))
	}
	elsewhere, _ := svc.FindCompatibleDonors(ctx, domain.ANegative, "Kolkata")
	if len(elsewhere) != 0 {
		t.Fatalf("expected no donors in Kolkata, got %d", len(elsewhere))
	}
}

func TestAvailableRequestsForDonor(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	donor := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")

	oldNormal := mustSubmitRequest(t, svc, domain.APositive, 2, domain.UrgencyNormal)
	clock.advance(time.Hour)
	critical := mustSubmitRequest(t, svc, domain.BPositive, 1, domain.UrgencyCritical)
	clock.advance(time.Hour)
	newNormal := mustSubmitRequest(t, svc, domain.OPositive, 3, domain.UrgencyNormal)
	high := mustSubmitRequest(t, svc, domain.ABPositive, 1, domain.UrgencyHigh)
	mustSubmitRequest(t, svc, domain.ONegative, 1, domain.UrgencyCritical)
	accepted := mustSubmitRequest(t, svc, domain.APositive, 1, domain.UrgencyCritical)
	if _, err := svc.AcceptRequest(ctx, donor.ID, accepted.ID, AcceptInput{}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	filled := mustSubmitRequest(t, svc, domain.OPositive, 1, domain.UrgencyCritical)
	mustAdjust(t, svc, domain.OPositive, 40, AdjustAdd)
	if _, err := svc.WithdrawFromInventory(ctx, filled.ID, 1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	got, err := svc.FindAvailableRequestsForDonor(ctx, donor.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	want := []string{critical.ID, high.ID, oldNormal.ID, newNormal.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].Request.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].Request.ID)
		}
	}
	if got[3].RemainingUnits != 3 {
		t.Fatalf("expected remaining units annotated, got %d", got[3].RemainingUnits)
	}
	if _, err := svc.FindAvailableRequestsForDonor(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAvailableRequestsUnknownCreationSortsOldest(t *testing.T) {
	view := &stubView{requests: []BloodRequest{
		{Base: domain.Base{ID: "b", CreatedAt: refNow}, BloodGroup: domain.APositive, UnitsNeeded: 1, Status: domain.RequestStatusPending, Urgency: "unknown"},
		{Base: domain.Base{ID: "a"}, BloodGroup: domain.APositive, UnitsNeeded: 1, Status: domain.RequestStatusPartial, Urgency: domain.UrgencyNormal},
	}}
	got := availableRequestsForDonor(view, Donor{Base: domain.Base{ID: "d"}, BloodGroup: domain.APositive})
	if len(got) != 2 || got[0].Request.ID != "a" {
		t.Fatalf("absent creation time should sort oldest, got %+v", got)
	}
}

func TestHasEligibleDonorAndSearch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if ok, _ := svc.HasEligibleDonor(ctx, domain.BPositive); ok {
		t.Fatalf("no donors registered yet")
	}
	d := mustRegisterDonor(t, svc, domain.BNegative, "Bangalore")
	setLastDonation(t, svc, d.ID, daysAgo(3))
	if ok, _ := svc.HasEligibleDonor(ctx, domain.BPositive); ok {
		t.Fatalf("donor inside the interval is not eligible")
	}
	setLastDonation(t, svc, d.ID, daysAgo(60))
	if ok, _ := svc.HasEligibleDonor(ctx, domain.BPositive); !ok {
		t.Fatalf("expected eligible donor")
	}

	found, err := svc.SearchDonors(ctx, domain.BNegative, "4000")
	if err != nil || len(found) != 1 {
		t.Fatalf("pincode search: %v %d", err, len(found))
	}
	found, _ = svc.SearchDonors(ctx, domain.BPositive, "")
	if len(found) != 0 {
		t.Fatalf("search uses exact group, got %d", len(found))
	}
	found, _ = svc.SearchDonors(ctx, "", "bangalore")
	if len(found) != 1 {
		t.Fatalf("empty group should match all groups, got %d", len(found))
	}
}

// stubView serves fixed records to the pure helpers.
type stubView struct {
	donors      []Donor
	requests    []BloodRequest
	assignments []Assignment
	inventory   []InventoryEntry
}

func (v *stubView) ListDonors() []Donor                      { return v.donors }
func (v *stubView) FindDonor(string) (Donor, bool)           { return Donor{}, false }
func (v *stubView) ListRequestors() []Requestor              { return nil }
func (v *stubView) FindRequestor(string) (Requestor, bool)   { return Requestor{}, false }
func (v *stubView) ListRequests() []BloodRequest             { return v.requests }
func (v *stubView) FindRequest(string) (BloodRequest, bool)  { return BloodRequest{}, false }
func (v *stubView) ListAssignments() []Assignment            { return v.assignments }
func (v *stubView) FindAssignment(string) (Assignment, bool) { return Assignment{}, false }
func (v *stubView) ListDonations() []Donation                { return nil }
func (v *stubView) FindDonation(string) (Donation, bool)     { return Donation{}, false }
func (v *stubView) ListInventory() []InventoryEntry          { return v.inventory }
func (v *stubView) InventoryUnits(g BloodGroup) int {
	for _, e := range v.inventory {
		if e.BloodGroup == g {
			return e.Units
		}
	}
	return 0
}

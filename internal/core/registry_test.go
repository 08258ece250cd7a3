package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterDonorNormalizesAndValidates(t *testing.T) {
	ctx := context.Background()
	pub := events.NewMemoryPublisher()
	svc, _ := newTestService(t, WithPublisher(pub))

	in := donorInput("ab+", "Pune")
	in.TotalDonations = 9
	in.Available = false
	d, err := svc.RegisterDonor(ctx, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(d.ID, "DON-") || len(d.ID) != len("DON-")+8 {
		t.Fatalf("unexpected donor id %q", d.ID)
	}
	if d.BloodGroup != domain.ABPositive || !d.Available || d.Status != domain.DonorStatusActive || d.TotalDonations != 0 {
		t.Fatalf("registration must start a clean active donor, got %+v", d)
	}
	if len(pub.Of(events.DonorRegistered)) != 1 {
		t.Fatalf("expected donor.registered event")
	}

	bad := []func(*Donor){
		func(d *Donor) { d.Age = 17 },
		func(d *Donor) { d.Age = 66 },
		func(d *Donor) { d.WeightKg = 49.9 },
		func(d *Donor) { d.BloodGroup = "K+" },
		func(d *Donor) { d.Name = "  " },
	}
	for i, mutate := range bad {
		in := donorInput(domain.APositive, "Pune")
		mutate(&in)
		if _, err := svc.RegisterDonor(ctx, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	all, _ := svc.ListDonors(ctx)
	if len(all) != 1 {
		t.Fatalf("invalid registrations must not be stored, got %d", len(all))
	}
}

func TestUpdateDonorProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	d := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")
	phone, city, off := "999", "Thane", false
	updated, err := svc.UpdateDonorProfile(ctx, d.ID, DonorProfileUpdate{Phone: &phone, City: &city, Available: &off})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phone != "999" || updated.City != "Thane" || updated.Available || updated.State != d.State {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if _, err := svc.UpdateDonorProfile(ctx, "ghost", DonorProfileUpdate{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitRequestDefaultsAndRequestorCount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	requestor, err := svc.RegisterRequestor(ctx, Requestor{Name: "Dr. Meera Reddy", City: "Hyderabad"})
	if err != nil {
		t.Fatalf("register requestor: %v", err)
	}
	if requestor.Organization != domain.DefaultOrganization || !strings.HasPrefix(requestor.ID, "REQ-") {
		t.Fatalf("unexpected requestor %+v", requestor)
	}

	guest, err := svc.SubmitRequest(ctx, BloodRequest{PatientName: "Ramesh", BloodGroup: domain.APositive, UnitsNeeded: 2})
	if err != nil {
		t.Fatalf("guest request: %v", err)
	}
	if guest.RequestorID != domain.GuestRequestorID || guest.Urgency != domain.UrgencyNormal || guest.Status != domain.RequestStatusPending {
		t.Fatalf("unexpected defaults %+v", guest)
	}
	if guest.MatchedDonorIDs == nil {
		t.Fatalf("matched donors should be an empty list, not nil")
	}

	owned, err := svc.SubmitRequest(ctx, BloodRequest{
		RequestorID: requestor.ID,
		PatientName: "Lakshmi",
		BloodGroup:  domain.ONegative,
		UnitsNeeded: 1,
		Urgency:     domain.UrgencyCritical,
		City:        "Hyderabad",
	})
	if err != nil {
		t.Fatalf("owned request: %v", err)
	}
	if owned.Location != "Hyderabad" || !strings.HasPrefix(owned.ID, "BR-") {
		t.Fatalf("unexpected request %+v", owned)
	}
	got, _ := svc.GetRequestor(ctx, requestor.ID)
	if got.TotalRequests != 1 {
		t.Fatalf("expected requestor count incremented, got %d", got.TotalRequests)
	}

	invalid := []BloodRequest{
		{PatientName: "x", BloodGroup: domain.APositive, UnitsNeeded: 0},
		{PatientName: "x", BloodGroup: "A", UnitsNeeded: 1},
		{PatientName: "x", BloodGroup: domain.APositive, UnitsNeeded: 1, Urgency: "asap"},
		{BloodGroup: domain.APositive, UnitsNeeded: 1},
	}
	for i, r := range invalid {
		if _, err := svc.SubmitRequest(ctx, r); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := svc.RegisterRequestor(ctx, Requestor{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected requestor name required, got %v", err)
	}
	if _, err := svc.GetRequestor(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetRequest(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNumericIDScheme(t *testing.T) {
	ids, err := NewIDGenerator(IDSchemeNumeric)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	svc, _ := newTestService(t, WithIDGenerator(ids))
	d := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")
	if len(d.ID) != 6 || strings.Trim(d.ID, "0123456789") != "" {
		t.Fatalf("expected six digit id, got %q", d.ID)
	}
	if _, err := NewIDGenerator("uuid7"); err == nil {
		t.Fatalf("expected unknown scheme error")
	}
}

type fixedIDs struct {
	ids []string
	n   int
}

func (f *fixedIDs) NewID(EntityType) string {
	id := f.ids[min(f.n, len(f.ids)-1)]
	f.n++
	return id
}

func TestNextIDRetriesOnCollision(t *testing.T) {
	ids := &fixedIDs{ids: []string{"DON-1", "DON-1", "DON-2"}}
	svc, _ := newTestService(t, WithIDGenerator(ids))
	first := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")
	second := mustRegisterDonor(t, svc, domain.OPositive, "Mumbai")
	if first.ID != "DON-1" || second.ID != "DON-2" {
		t.Fatalf("expected collision retry, got %s and %s", first.ID, second.ID)
	}
}

package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"strings"
)

// DonorProfileUpdate lists the donor fields a donor may edit. Nil fields are
// left unchanged.
type DonorProfileUpdate struct {
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	City      *string `json:"city,omitempty"`
	State     *string `json:"state,omitempty"`
	Available *bool   `json:"available,omitempty"`
}

// RegisterDonor validates and stores a new donor. Registration always starts
// the donor as active and available with no donation history.
func (s *Service) RegisterDonor(ctx context.Context, d Donor) (Donor, error) {
	var out Donor
	err := s.run(ctx, opRegisterDonor, func(ctx context.Context) (string, error) {
		group, err := domain.ParseBloodGroup(string(d.BloodGroup))
		if err != nil {
			return "", err
		}
		d.BloodGroup = group
		d.Name = strings.TrimSpace(d.Name)
		if err := domain.ValidateDonor(d); err != nil {
			return "", err
		}
		d.Available = true
		d.Status = domain.DonorStatusActive
		d.TotalDonations = 0
		d.LastDonation = nil
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			d.Base = domain.Base{ID: s.nextID(tx.Snapshot(), EntityDonor)}
			var err error
			out, err = tx.CreateDonor(d)
			return err
		})
		return out.ID, err
	})
	if err != nil {
		return Donor{}, err
	}
	s.publish(ctx, events.DonorRegistered, out.ID, map[string]any{
		"blood_group": string(out.BloodGroup),
		"city":        out.City,
	})
	return out, nil
}

// UpdateDonorProfile applies the editable profile fields.
func (s *Service) UpdateDonorProfile(ctx context.Context, donorID string, update DonorProfileUpdate) (Donor, error) {
	var out Donor
	err := s.run(ctx, opUpdateDonorProfile, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			out, err = tx.UpdateDonor(donorID, func(d *Donor) error {
				if update.Phone != nil {
					d.Phone = *update.Phone
				}
				if update.Address != nil {
					d.Address = *update.Address
				}
				if update.City != nil {
					d.City = *update.City
				}
				if update.State != nil {
					d.State = *update.State
				}
				if update.Available != nil {
					d.Available = *update.Available
				}
				return nil
			})
			return err
		})
		return donorID, err
	})
	if err != nil {
		return Donor{}, err
	}
	s.publish(ctx, events.DonorUpdated, out.ID, map[string]any{"available": out.Available})
	return out, nil
}

// GetDonor fetches a donor by id.
func (s *Service) GetDonor(ctx context.Context, donorID string) (Donor, error) {
	var out Donor
	err := s.store.View(ctx, func(view TransactionView) error {
		d, ok := view.FindDonor(donorID)
		if !ok {
			return domain.NotFoundError{Entity: EntityDonor, ID: donorID}
		}
		out = d
		return nil
	})
	return out, err
}

// ListDonors returns every donor ordered by id.
func (s *Service) ListDonors(ctx context.Context) ([]Donor, error) {
	var out []Donor
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.ListDonors()
		return nil
	})
	return out, err
}

// RegisterRequestor stores a new hospital or individual requestor.
func (s *Service) RegisterRequestor(ctx context.Context, r Requestor) (Requestor, error) {
	var out Requestor
	err := s.run(ctx, opRegisterRequestor, func(ctx context.Context) (string, error) {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return "", domain.ValidationError{Field: "name", Message: "name is required"}
		}
		if strings.TrimSpace(r.Organization) == "" {
			r.Organization = domain.DefaultOrganization
		}
		r.TotalRequests = 0
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			r.Base = domain.Base{ID: s.nextID(tx.Snapshot(), EntityRequestor)}
			var err error
			out, err = tx.CreateRequestor(r)
			return err
		})
		return out.ID, err
	})
	if err != nil {
		return Requestor{}, err
	}
	s.publish(ctx, events.RequestorRegistered, out.ID, map[string]any{"organization": out.Organization})
	return out, nil
}

// GetRequestor fetches a requestor by id.
func (s *Service) GetRequestor(ctx context.Context, requestorID string) (Requestor, error) {
	var out Requestor
	err := s.store.View(ctx, func(view TransactionView) error {
		r, ok := view.FindRequestor(requestorID)
		if !ok {
			return domain.NotFoundError{Entity: EntityRequestor, ID: requestorID}
		}
		out = r
		return nil
	})
	return out, err
}

// SubmitRequest validates and stores a blood request, counting it against
// the requestor when they are registered, and records the best matching
// donors at submission time.
func (s *Service) SubmitRequest(ctx context.Context, r BloodRequest) (BloodRequest, error) {
	var out BloodRequest
	err := s.run(ctx, opSubmitRequest, func(ctx context.Context) (string, error) {
		group, err := domain.ParseBloodGroup(string(r.BloodGroup))
		if err != nil {
			return "", err
		}
		r.BloodGroup = group
		if r.Urgency == "" {
			r.Urgency = domain.UrgencyNormal
		}
		if err := domain.ValidateRequest(r); err != nil {
			return "", err
		}
		if strings.TrimSpace(r.RequestorID) == "" {
			r.RequestorID = domain.GuestRequestorID
		}
		if r.Location == "" {
			r.Location = r.City
		}
		r.Status = domain.RequestStatusPending
		r.FulfilledUnits = 0
		r.InventoryUsed = 0
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			r.Base = domain.Base{ID: s.nextID(view, EntityRequest)}
			match := matchRequest(view, r, s.now())
			r.MatchedDonorIDs = make([]string, 0, len(match.CompatibleDonors))
			for _, m := range match.CompatibleDonors {
				r.MatchedDonorIDs = append(r.MatchedDonorIDs, m.Donor.ID)
			}
			var err error
			out, err = tx.CreateRequest(r)
			if err != nil {
				return err
			}
			if _, ok := view.FindRequestor(r.RequestorID); ok {
				_, err = tx.UpdateRequestor(r.RequestorID, func(req *Requestor) error {
					req.TotalRequests++
					return nil
				})
			}
			return err
		})
		return out.ID, err
	})
	if err != nil {
		return BloodRequest{}, err
	}
	s.publish(ctx, events.RequestSubmitted, out.ID, map[string]any{
		"blood_group":  string(out.BloodGroup),
		"units_needed": out.UnitsNeeded,
		"urgency":      string(out.Urgency),
		"matched":      len(out.MatchedDonorIDs),
	})
	return out, nil
}

// GetRequest fetches a blood request by id.
func (s *Service) GetRequest(ctx context.Context, requestID string) (BloodRequest, error) {
	var out BloodRequest
	err := s.store.View(ctx, func(view TransactionView) error {
		r, ok := view.FindRequest(requestID)
		if !ok {
			return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
		}
		out = r
		return nil
	})
	return out, err
}

// ListRequests returns every blood request ordered by id.
func (s *Service) ListRequests(ctx context.Context) ([]BloodRequest, error) {
	var out []BloodRequest
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.ListRequests()
		return nil
	})
	return out, err
}

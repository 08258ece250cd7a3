package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// WithdrawalResult describes units drawn from inventory for a request.
type WithdrawalResult struct {
	Request        BloodRequest `json:"request"`
	Donation       Donation     `json:"donation"`
	InventoryUnits int          `json:"inventory_units"`
}

// Units returns a pointer to n for the optional unit fields of inputs.
func Units(n int) *int { return &n }

// DonationInput carries the optional details of a direct donation. Nil
// units default to one.
type DonationInput struct {
	Units  *int
	Center string
	Notes  string
}

// WithdrawFromInventory supplies units from stock to a request. The call is
// rejected when stock or the remaining need is smaller than units.
func (s *Service) WithdrawFromInventory(ctx context.Context, requestID string, units int) (WithdrawalResult, error) {
	var out WithdrawalResult
	err := s.run(ctx, opWithdrawInventory, func(ctx context.Context) (string, error) {
		if units <= 0 {
			return requestID, domain.ValidationError{Field: "units", Message: "units must be greater than 0"}
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			req, ok := view.FindRequest(requestID)
			if !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			available := view.InventoryUnits(req.BloodGroup)
			remaining := req.Remaining()
			if units > available || units > remaining {
				return domain.InsufficientInventoryError{
					BloodGroup: req.BloodGroup,
					Requested:  units,
					Available:  available,
					Remaining:  remaining,
				}
			}
			entry, err := tx.SetInventory(req.BloodGroup, available-units)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateRequest(requestID, func(r *BloodRequest) error {
				r.Credit(units)
				r.InventoryUsed += units
				return nil
			})
			if err != nil {
				return err
			}
			reqID := updated.ID
			donation, err := tx.CreateDonation(Donation{
				Base:        domain.Base{ID: s.nextID(view, EntityDonation)},
				DonorID:     domain.InventoryDonorID,
				DonorName:   domain.InventoryDonorName,
				RequestID:   &reqID,
				PatientName: updated.PatientName,
				BloodGroup:  updated.BloodGroup,
				Units:       units,
				DonatedAt:   s.now(),
				Type:        domain.DonationTypeInventoryWithdrawal,
				Status:      domain.DonationStatusCompleted,
			})
			if err != nil {
				return err
			}
			out = WithdrawalResult{Request: updated, Donation: donation, InventoryUnits: entry.Units}
			return nil
		})
		if err != nil {
			return requestID, err
		}
		s.reportWarnings(ctx, opWithdrawInventory, res)
		return requestID, nil
	})
	if err != nil {
		return WithdrawalResult{}, err
	}
	s.publish(ctx, events.RequestWithdrawn, requestID, map[string]any{
		"units":       units,
		"blood_group": string(out.Request.BloodGroup),
		"status":      string(out.Request.Status),
		"donation_id": out.Donation.ID,
	})
	return out, nil
}

// RecordDonation records a walk-in donation straight into inventory. The
// donor must have waited the minimum interval and may give one to five units.
func (s *Service) RecordDonation(ctx context.Context, donorID string, in DonationInput) (Donation, error) {
	var out Donation
	err := s.run(ctx, opRecordDonation, func(ctx context.Context) (string, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			donor, ok := view.FindDonor(donorID)
			if !ok {
				return domain.NotFoundError{Entity: EntityDonor, ID: donorID}
			}
			now := s.now()
			if !domain.CanDonate(donor.LastDonation, now) {
				return domain.IneligibleDonorError{
					DonorID:       donorID,
					DaysRemaining: domain.DaysUntilEligible(donor.LastDonation, now),
				}
			}
			units := domain.MinUnitsPerDonation
			if in.Units != nil {
				units = *in.Units
			}
			if units < domain.MinUnitsPerDonation || units > domain.MaxUnitsPerDonation {
				return domain.ValidationError{
					Field:   "units",
					Message: fmt.Sprintf("units must be between %d and %d", domain.MinUnitsPerDonation, domain.MaxUnitsPerDonation),
				}
			}
			today := domain.Today(now)
			if _, err := tx.UpdateDonor(donorID, func(d *Donor) error {
				d.LastDonation = &today
				d.TotalDonations++
				return nil
			}); err != nil {
				return err
			}
			current := view.InventoryUnits(donor.BloodGroup)
			if _, err := tx.SetInventory(donor.BloodGroup, applyAdjustment(current, units, AdjustAdd)); err != nil {
				return err
			}
			center := strings.TrimSpace(in.Center)
			if center == "" {
				center = domain.DefaultDonationCenter
			}
			var err error
			out, err = tx.CreateDonation(Donation{
				Base:       domain.Base{ID: s.nextID(view, EntityDonation)},
				DonorID:    donorID,
				DonorName:  donor.Name,
				BloodGroup: donor.BloodGroup,
				Units:      units,
				DonatedAt:  now,
				Center:     center,
				Type:       domain.DonationTypeDirectInventory,
				Status:     domain.DonationStatusCompleted,
				Notes:      in.Notes,
			})
			return err
		})
		if err != nil {
			return donorID, err
		}
		s.reportWarnings(ctx, opRecordDonation, res)
		return out.ID, nil
	})
	if err != nil {
		return Donation{}, err
	}
	s.publish(ctx, events.DonationRecorded, out.ID, map[string]any{
		"donor_id":      out.DonorID,
		"blood_group":   string(out.BloodGroup),
		"units":         out.Units,
		"donation_type": string(out.Type),
	})
	return out, nil
}

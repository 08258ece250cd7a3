package core

import (
	"bloodsync/internal/events"
	"bloodsync/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// AcceptInput carries a donor's offer for a request. Zero units default to one.
type AcceptInput struct {
	UnitsOffered int
	Notes        string
}

// CompletionInput carries the donor's confirmation that they donated. Nil
// units default to the units offered; an empty center defaults to the
// request's hospital.
type CompletionInput struct {
	UnitsDonated *int
	Center       string
}

// CompletionResult is the outcome of a completed assignment.
type CompletionResult struct {
	Assignment Assignment   `json:"assignment"`
	Request    BloodRequest `json:"request"`
	Donation   Donation     `json:"donation"`
	Credited   int          `json:"credited_units"`
}

// AcceptRequest records a donor's offer to supply a request. A donor may
// accept the same request more than once.
func (s *Service) AcceptRequest(ctx context.Context, donorID, requestID string, in AcceptInput) (Assignment, error) {
	var out Assignment
	duplicate := false
	err := s.run(ctx, opAcceptRequest, func(ctx context.Context) (string, error) {
		units := in.UnitsOffered
		if units == 0 {
			units = 1
		}
		if units < 1 {
			return requestID, domain.ValidationError{Field: "units_offered", Message: "units offered must be at least 1"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindDonor(donorID); !ok {
				return domain.NotFoundError{Entity: EntityDonor, ID: donorID}
			}
			if _, ok := view.FindRequest(requestID); !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			for _, a := range view.ListAssignments() {
				if a.DonorID == donorID && a.RequestID == requestID {
					duplicate = true
					break
				}
			}
			now := s.now()
			var err error
			out, err = tx.CreateAssignment(Assignment{
				Base:         domain.Base{ID: s.nextID(view, EntityAssignment)},
				DonorID:      donorID,
				RequestID:    requestID,
				UnitsOffered: units,
				Status:       domain.AssignmentStatusAccepted,
				Notes:        in.Notes,
				AcceptedAt:   &now,
			})
			return err
		})
		return out.ID, err
	})
	if err != nil {
		return Assignment{}, err
	}
	if duplicate {
		s.logger.Warn("donor accepted request more than once", "donor_id", donorID, "request_id", requestID, "assignment_id", out.ID)
	}
	s.publish(ctx, events.AssignmentAccepted, out.ID, map[string]any{
		"donor_id":      donorID,
		"request_id":    requestID,
		"units_offered": out.UnitsOffered,
	})
	return out, nil
}

// ConfirmAssignment lets the requestor confirm an accepted offer on their
// request.
func (s *Service) ConfirmAssignment(ctx context.Context, requestID, assignmentID string) (Assignment, error) {
	var out Assignment
	err := s.run(ctx, opConfirmAssignment, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindRequest(requestID); !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: requestID}
			}
			current, ok := view.FindAssignment(assignmentID)
			if !ok || current.RequestID != requestID {
				return domain.NotFoundError{Entity: EntityAssignment, ID: assignmentID}
			}
			switch current.Status {
			case domain.AssignmentStatusAccepted, domain.AssignmentStatusPending:
			default:
				return domain.TransitionError{
					Entity: EntityAssignment,
					ID:     assignmentID,
					From:   string(current.Status),
					To:     string(domain.AssignmentStatusConfirmedByRequestor),
				}
			}
			now := s.now()
			var err error
			out, err = tx.UpdateAssignment(assignmentID, func(a *Assignment) error {
				a.Status = domain.AssignmentStatusConfirmedByRequestor
				a.ConfirmedAt = &now
				return nil
			})
			return err
		})
		return assignmentID, err
	})
	if err != nil {
		return Assignment{}, err
	}
	s.publish(ctx, events.AssignmentConfirmed, out.ID, map[string]any{
		"donor_id":   out.DonorID,
		"request_id": out.RequestID,
	})
	return out, nil
}

// ConfirmDonation completes an assignment once the donor has given blood.
// The request is credited up to its remaining need while the ledger keeps the
// full units donated. The minimum donation interval is not re-checked.
func (s *Service) ConfirmDonation(ctx context.Context, assignmentID string, in CompletionInput) (CompletionResult, error) {
	var out CompletionResult
	err := s.run(ctx, opConfirmDonation, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindAssignment(assignmentID)
			if !ok {
				return domain.NotFoundError{Entity: EntityAssignment, ID: assignmentID}
			}
			switch current.Status {
			case domain.AssignmentStatusAccepted, domain.AssignmentStatusConfirmedByRequestor:
			default:
				return domain.TransitionError{
					Entity: EntityAssignment,
					ID:     assignmentID,
					From:   string(current.Status),
					To:     string(domain.AssignmentStatusCompleted),
				}
			}
			donor, ok := view.FindDonor(current.DonorID)
			if !ok {
				return domain.NotFoundError{Entity: EntityDonor, ID: current.DonorID}
			}
			req, ok := view.FindRequest(current.RequestID)
			if !ok {
				return domain.NotFoundError{Entity: EntityRequest, ID: current.RequestID}
			}
			units := current.UnitsOffered
			if in.UnitsDonated != nil {
				units = *in.UnitsDonated
			}
			if units <= 0 || units > current.UnitsOffered {
				return domain.ValidationError{
					Field:   "units_donated",
					Message: fmt.Sprintf("units donated must be between 1 and %d", current.UnitsOffered),
				}
			}
			now := s.now()
			assignment, err := tx.UpdateAssignment(assignmentID, func(a *Assignment) error {
				a.Status = domain.AssignmentStatusCompleted
				a.UnitsDonated = units
				a.DonatedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			credited := 0
			updated := req
			if req.Status != domain.RequestStatusFulfilled {
				updated, err = tx.UpdateRequest(req.ID, func(r *BloodRequest) error {
					credited = r.Credit(units)
					return nil
				})
				if err != nil {
					return err
				}
			}
			today := domain.Today(now)
			if _, err := tx.UpdateDonor(donor.ID, func(d *Donor) error {
				d.LastDonation = &today
				d.TotalDonations++
				return nil
			}); err != nil {
				return err
			}
			center := strings.TrimSpace(in.Center)
			if center == "" {
				center = req.HospitalName
			}
			reqID, asgnID := req.ID, assignmentID
			donation, err := tx.CreateDonation(Donation{
				Base:         domain.Base{ID: s.nextID(view, EntityDonation)},
				DonorID:      donor.ID,
				DonorName:    donor.Name,
				RequestID:    &reqID,
				AssignmentID: &asgnID,
				PatientName:  req.PatientName,
				BloodGroup:   donor.BloodGroup,
				Units:        units,
				DonatedAt:    now,
				Center:       center,
				Type:         domain.DonationTypeRequestFulfillment,
				Status:       domain.DonationStatusCompleted,
				Notes:        "Fulfilled request " + req.ID,
			})
			if err != nil {
				return err
			}
			out = CompletionResult{Assignment: assignment, Request: updated, Donation: donation, Credited: credited}
			return nil
		})
		return assignmentID, err
	})
	if err != nil {
		return CompletionResult{}, err
	}
	if out.Credited < out.Donation.Units {
		s.logger.Warn("donation exceeded remaining need", "assignment_id", assignmentID, "request_id", out.Request.ID, "donated", out.Donation.Units, "credited", out.Credited)
	}
	s.publish(ctx, events.AssignmentCompleted, assignmentID, map[string]any{
		"donor_id":    out.Assignment.DonorID,
		"request_id":  out.Request.ID,
		"units":       out.Donation.Units,
		"credited":    out.Credited,
		"status":      string(out.Request.Status),
		"donation_id": out.Donation.ID,
	})
	return out, nil
}

// AssignmentsForDonor lists the donor's open assignments (accepted or legacy
// pending).
func (s *Service) AssignmentsForDonor(ctx context.Context, donorID string) ([]Assignment, error) {
	var out []Assignment
	err := s.run(ctx, opAssignmentsForDonor, func(ctx context.Context) (string, error) {
		return donorID, s.store.View(ctx, func(view TransactionView) error {
			out = openAssignmentsForDonor(view, donorID)
			return nil
		})
	})
	return out, err
}

// AssignmentsForRequest lists every assignment made against a request.
func (s *Service) AssignmentsForRequest(ctx context.Context, requestID string) ([]Assignment, error) {
	var out []Assignment
	err := s.store.View(ctx, func(view TransactionView) error {
		out = assignmentsForRequest(view, requestID)
		return nil
	})
	return out, err
}

func openAssignmentsForDonor(view TransactionView, donorID string) []Assignment {
	var out []Assignment
	for _, a := range view.ListAssignments() {
		if a.DonorID != donorID {
			continue
		}
		if a.Status == domain.AssignmentStatusPending || a.Status == domain.AssignmentStatusAccepted {
			out = append(out, a)
		}
	}
	return out
}

func assignmentsForRequest(view TransactionView, requestID string) []Assignment {
	var out []Assignment
	for _, a := range view.ListAssignments() {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out
}

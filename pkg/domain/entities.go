// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by bloodsync.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDonor identifies a registered blood donor.
	EntityDonor EntityType = "donor"
	// EntityRequestor identifies a hospital or individual submitting requests.
	EntityRequestor EntityType = "requestor"
	// EntityRequest identifies a blood request record.
	EntityRequest EntityType = "blood_request"
	// EntityAssignment identifies a donor's commitment to a request.
	EntityAssignment EntityType = "assignment"
	// EntityDonation identifies an entry of the append-only donation ledger.
	EntityDonation EntityType = "donation"
	// EntityInventory identifies a per-blood-group inventory entry.
	EntityInventory EntityType = "inventory"
)

// DonorStatus captures whether a donor participates in matching.
type DonorStatus string

// Canonical donor statuses.
const (
	DonorStatusActive   DonorStatus = "active"
	DonorStatusInactive DonorStatus = "inactive"
)

// RequestStatus enumerates blood request fulfillment states. Status only moves
// forward: pending -> partial -> fulfilled.
type RequestStatus string

// Canonical request statuses.
const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusPartial   RequestStatus = "partial"
	RequestStatusFulfilled RequestStatus = "fulfilled"
)

// Rank orders request statuses along the fulfillment progression. Unknown
// statuses rank below pending.
func (s RequestStatus) Rank() int {
	switch s {
	case RequestStatusPending:
		return 0
	case RequestStatusPartial:
		return 1
	case RequestStatusFulfilled:
		return 2
	default:
		return -1
	}
}

// Open reports whether the request still accepts units.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusPartial
}

// Urgency classifies how quickly a request must be served.
type Urgency string

// Canonical urgency levels.
const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
)

// Rank returns the sort rank for an urgency level; lower is more urgent.
// Unknown levels rank as normal.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	default:
		return 2
	}
}

// Valid reports whether u is a recognised urgency level.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyNormal:
		return true
	}
	return false
}

// AssignmentStatus enumerates the assignment lifecycle.
type AssignmentStatus string

// Canonical assignment statuses. AssignmentStatusPending is a legacy alias of
// AssignmentStatusAccepted kept for records written by older clients.
const (
	AssignmentStatusPending              AssignmentStatus = "pending"
	AssignmentStatusAccepted             AssignmentStatus = "accepted"
	AssignmentStatusConfirmedByRequestor AssignmentStatus = "confirmed_by_requestor"
	AssignmentStatusCompleted            AssignmentStatus = "completed"
)

// DonationType classifies ledger entries by how the units moved.
type DonationType string

// Canonical donation types.
const (
	DonationTypeDirectInventory     DonationType = "direct_inventory"
	DonationTypeRequestFulfillment  DonationType = "request_fulfillment"
	DonationTypeInventoryWithdrawal DonationType = "inventory_withdrawal"
)

// Valid reports whether t is a recognised donation type.
func (t DonationType) Valid() bool {
	switch t {
	case DonationTypeDirectInventory, DonationTypeRequestFulfillment, DonationTypeInventoryWithdrawal:
		return true
	}
	return false
}

// DonationStatusCompleted is the only status written to the ledger today.
const DonationStatusCompleted = "completed"

// Sentinel values used on inventory withdrawal ledger entries.
const (
	InventoryDonorID   = "INVENTORY"
	InventoryDonorName = "Blood Bank Inventory"
	// GuestRequestorID is recorded on requests submitted without an account.
	GuestRequestorID = "GUEST"
	// DefaultDonationCenter labels direct donations without an explicit center.
	DefaultDonationCenter = "Main Center"
	// DefaultOrganization labels requestors registering without an organization.
	DefaultOrganization = "Individual"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains fields shared by all entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Donor is a registered person who may give blood.
type Donor struct {
	Base
	Name                 string      `json:"name"`
	Email                string      `json:"email"`
	Phone                string      `json:"phone"`
	Age                  int         `json:"age"`
	Gender               string      `json:"gender"`
	BloodGroup           BloodGroup  `json:"blood_group"`
	WeightKg             float64     `json:"weight_kg"`
	Address              string      `json:"address"`
	City                 string      `json:"city"`
	State                string      `json:"state"`
	Pincode              string      `json:"pincode"`
	MedicalHistory       string      `json:"medical_history,omitempty"`
	EmergencyContact     string      `json:"emergency_contact,omitempty"`
	PreferredContactTime string      `json:"preferred_contact_time,omitempty"`
	Available            bool        `json:"available"`
	Status               DonorStatus `json:"status"`
	LastDonation         *time.Time  `json:"last_donation,omitempty"`
	TotalDonations       int         `json:"total_donations"`
}

// Active reports whether the donor is active and currently available.
func (d Donor) Active() bool {
	return d.Available && d.Status == DonorStatusActive
}

// Requestor is a hospital or individual submitting blood requests.
type Requestor struct {
	Base
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Organization  string `json:"organization"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pincode       string `json:"pincode"`
	TotalRequests int    `json:"total_requests"`
}

// BloodRequest tracks units needed for a patient and how many have been
// supplied so far. A zero CreatedAt means the creation time is unknown.
type BloodRequest struct {
	Base
	RequestorID     string        `json:"requestor_id"`
	PatientName     string        `json:"patient_name"`
	PatientAge      int           `json:"patient_age"`
	PatientGender   string        `json:"patient_gender"`
	BloodGroup      BloodGroup    `json:"blood_group"`
	UnitsNeeded     int           `json:"units_needed"`
	FulfilledUnits  int           `json:"fulfilled_units"`
	InventoryUsed   int           `json:"inventory_used"`
	Status          RequestStatus `json:"status"`
	Urgency         Urgency       `json:"urgency"`
	HospitalName    string        `json:"hospital_name"`
	HospitalAddress string        `json:"hospital_address"`
	Location        string        `json:"location"`
	City            string        `json:"city"`
	State           string        `json:"state"`
	ContactName     string        `json:"contact_name"`
	ContactPhone    string        `json:"contact_phone"`
	ContactEmail    string        `json:"contact_email"`
	RequiredDate    *time.Time    `json:"required_date,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	MatchedDonorIDs []string      `json:"matched_donor_ids"`
}

// Remaining returns the units still needed, never negative.
func (r BloodRequest) Remaining() int {
	return max(r.UnitsNeeded-r.FulfilledUnits, 0)
}

// Credit applies supplied units to the request, clamping at the units needed,
// and recomputes the status. It returns the units actually credited. A
// fulfilled request is left untouched.
func (r *BloodRequest) Credit(units int) int {
	if r.Status == RequestStatusFulfilled || units <= 0 {
		return 0
	}
	credited := min(units, r.Remaining())
	r.FulfilledUnits += credited
	r.Status = StatusFor(r.UnitsNeeded, r.FulfilledUnits)
	return credited
}

// StatusFor derives the request status from needed and fulfilled units. It is
// only meaningful after at least one credit; fresh requests start pending.
func StatusFor(needed, fulfilled int) RequestStatus {
	if needed-fulfilled <= 0 {
		return RequestStatusFulfilled
	}
	return RequestStatusPartial
}

// Assignment records a donor's offer to supply units toward a request.
type Assignment struct {
	Base
	DonorID      string           `json:"donor_id"`
	RequestID    string           `json:"request_id"`
	UnitsOffered int              `json:"units_offered"`
	UnitsDonated int              `json:"units_donated,omitempty"`
	Status       AssignmentStatus `json:"status"`
	Notes        string           `json:"notes,omitempty"`
	AcceptedAt   *time.Time       `json:"accepted_at,omitempty"`
	ConfirmedAt  *time.Time       `json:"confirmed_at,omitempty"`
	DonatedAt    *time.Time       `json:"donated_at,omitempty"`
}

// Donation is an immutable ledger entry describing units that moved into
// inventory, to a request, or out of inventory.
type Donation struct {
	Base
	DonorID      string       `json:"donor_id"`
	DonorName    string       `json:"donor_name"`
	RequestID    *string      `json:"request_id,omitempty"`
	AssignmentID *string      `json:"assignment_id,omitempty"`
	PatientName  string       `json:"patient_name,omitempty"`
	BloodGroup   BloodGroup   `json:"blood_group"`
	Units        int          `json:"units"`
	DonatedAt    time.Time    `json:"donated_at"`
	Center       string       `json:"donation_center,omitempty"`
	Type         DonationType `json:"donation_type"`
	Status       string       `json:"status"`
	Notes        string       `json:"notes,omitempty"`
}

// InventoryEntry holds the unit count for one blood group.
type InventoryEntry struct {
	BloodGroup BloodGroup `json:"blood_group"`
	Units      int        `json:"units"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Change describes a mutation applied to an entity within a transaction.
// EntityID carries the record key (the blood group for inventory entries).
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   any
	After    any
}

// Action enumerates supported change operations.
type Action string

const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true when any violation is blocking.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

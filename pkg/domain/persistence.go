package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Donations are append-only, so the
// ledger has no update path.
type Transaction interface {
	Snapshot() TransactionView
	CreateDonor(Donor) (Donor, error)
	UpdateDonor(id string, mutator func(*Donor) error) (Donor, error)
	CreateRequestor(Requestor) (Requestor, error)
	UpdateRequestor(id string, mutator func(*Requestor) error) (Requestor, error)
	CreateRequest(BloodRequest) (BloodRequest, error)
	UpdateRequest(id string, mutator func(*BloodRequest) error) (BloodRequest, error)
	CreateAssignment(Assignment) (Assignment, error)
	UpdateAssignment(id string, mutator func(*Assignment) error) (Assignment, error)
	CreateDonation(Donation) (Donation, error)
	SetInventory(group BloodGroup, units int) (InventoryEntry, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// read paths.
type TransactionView interface {
	ListDonors() []Donor
	FindDonor(id string) (Donor, bool)
	ListRequestors() []Requestor
	FindRequestor(id string) (Requestor, bool)
	ListRequests() []BloodRequest
	FindRequest(id string) (BloodRequest, bool)
	ListAssignments() []Assignment
	FindAssignment(id string) (Assignment, bool)
	ListDonations() []Donation
	FindDonation(id string) (Donation, bool)
	ListInventory() []InventoryEntry
	InventoryUnits(group BloodGroup) int
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetDonor(id string) (Donor, bool)
	ListDonors() []Donor
	GetRequest(id string) (BloodRequest, bool)
	ListRequests() []BloodRequest
	GetAssignment(id string) (Assignment, bool)
	ListAssignments() []Assignment
	ListDonations() []Donation
	ListInventory() []InventoryEntry
}

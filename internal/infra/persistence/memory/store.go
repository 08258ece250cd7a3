// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional
// engine behind the durable backends.
package memory

import (
	"bloodsync/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Donor aliases domain.Donor for in-memory persistence operations.
	Donor = domain.Donor
	// Requestor aliases domain.Requestor.
	Requestor = domain.Requestor
	// BloodRequest aliases domain.BloodRequest.
	BloodRequest = domain.BloodRequest
	// Assignment aliases domain.Assignment.
	Assignment = domain.Assignment
	// Donation aliases domain.Donation.
	Donation = domain.Donation
	// InventoryEntry aliases domain.InventoryEntry.
	InventoryEntry = domain.InventoryEntry
	// BloodGroup aliases domain.BloodGroup.
	BloodGroup = domain.BloodGroup
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// CommitHook runs after rules pass and before the new state becomes visible.
// A non-nil error aborts the commit and leaves the previous state in place.
type CommitHook func(ctx context.Context, changes []Change) error

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook installs a hook invoked with the change set of every
// transaction that is about to commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

type memoryState struct {
	donors      map[string]Donor
	requestors  map[string]Requestor
	requests    map[string]BloodRequest
	assignments map[string]Assignment
	donations   map[string]Donation
	inventory   map[BloodGroup]InventoryEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Donors      map[string]Donor              `json:"donors"`
	Requestors  map[string]Requestor          `json:"requestors"`
	Requests    map[string]BloodRequest       `json:"requests"`
	Assignments map[string]Assignment         `json:"assignments"`
	Donations   map[string]Donation           `json:"donations"`
	Inventory   map[BloodGroup]InventoryEntry `json:"inventory"`
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() Snapshot {
	return snapshotFromMemoryState(newMemoryState())
}

func newMemoryState() memoryState {
	return memoryState{
		donors:      make(map[string]Donor),
		requestors:  make(map[string]Requestor),
		requests:    make(map[string]BloodRequest),
		assignments: make(map[string]Assignment),
		donations:   make(map[string]Donation),
		inventory:   make(map[BloodGroup]InventoryEntry),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Donors:      c.donors,
		Requestors:  c.requestors,
		Requests:    c.requests,
		Assignments: c.assignments,
		Donations:   c.donations,
		Inventory:   c.inventory,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Donors {
		state.donors[k] = cloneDonor(v)
	}
	for k, v := range s.Requestors {
		state.requestors[k] = v
	}
	for k, v := range s.Requests {
		state.requests[k] = cloneRequest(v)
	}
	for k, v := range s.Assignments {
		state.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.Donations {
		state.donations[k] = cloneDonation(v)
	}
	for k, v := range s.Inventory {
		state.inventory[k] = v
	}
	return state
}

// normalizeSnapshot fills defaults for records written before a field existed.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	for id, d := range snapshot.Donors {
		if d.ID == "" {
			d.ID = id
		}
		if d.Status == "" {
			d.Status = domain.DonorStatusActive
		}
		snapshot.Donors[id] = d
	}
	for id, r := range snapshot.Requests {
		if r.ID == "" {
			r.ID = id
		}
		if r.Status == "" {
			r.Status = domain.RequestStatusPending
		}
		if r.Urgency == "" {
			r.Urgency = domain.UrgencyNormal
		}
		snapshot.Requests[id] = r
	}
	for id, a := range snapshot.Assignments {
		if a.ID == "" {
			a.ID = id
		}
		snapshot.Assignments[id] = a
	}
	for group, entry := range snapshot.Inventory {
		entry.BloodGroup = group
		snapshot.Inventory[group] = entry
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.donors {
		cloned.donors[k] = cloneDonor(v)
	}
	for k, v := range s.requestors {
		cloned.requestors[k] = v
	}
	for k, v := range s.requests {
		cloned.requests[k] = cloneRequest(v)
	}
	for k, v := range s.assignments {
		cloned.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.donations {
		cloned.donations[k] = cloneDonation(v)
	}
	for k, v := range s.inventory {
		cloned.inventory[k] = v
	}
	return cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneDonor(d Donor) Donor {
	d.LastDonation = cloneTime(d.LastDonation)
	return d
}

func cloneRequest(r BloodRequest) BloodRequest {
	r.RequiredDate = cloneTime(r.RequiredDate)
	r.MatchedDonorIDs = slices.Clone(r.MatchedDonorIDs)
	return r
}

func cloneAssignment(a Assignment) Assignment {
	a.AcceptedAt = cloneTime(a.AcceptedAt)
	a.ConfirmedAt = cloneTime(a.ConfirmedAt)
	a.DonatedAt = cloneTime(a.DonatedAt)
	return a
}

func cloneDonation(d Donation) Donation {
	d.RequestID = cloneString(d.RequestID)
	d.AssignmentID = cloneString(d.AssignmentID)
	return d
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListDonors returns all donors ordered by identifier.
func (v transactionView) ListDonors() []Donor {
	out := make([]Donor, 0, len(v.state.donors))
	for _, d := range v.state.donors {
		out = append(out, cloneDonor(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindDonor retrieves a donor by id.
func (v transactionView) FindDonor(id string) (Donor, bool) {
	d, ok := v.state.donors[id]
	if !ok {
		return Donor{}, false
	}
	return cloneDonor(d), true
}

// ListRequestors returns all requestors ordered by identifier.
func (v transactionView) ListRequestors() []Requestor {
	out := make([]Requestor, 0, len(v.state.requestors))
	for _, r := range v.state.requestors {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindRequestor retrieves a requestor by id.
func (v transactionView) FindRequestor(id string) (Requestor, bool) {
	r, ok := v.state.requestors[id]
	return r, ok
}

// ListRequests returns all blood requests ordered by identifier.
func (v transactionView) ListRequests() []BloodRequest {
	out := make([]BloodRequest, 0, len(v.state.requests))
	for _, r := range v.state.requests {
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindRequest retrieves a blood request by id.
func (v transactionView) FindRequest(id string) (BloodRequest, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return BloodRequest{}, false
	}
	return cloneRequest(r), true
}

// ListAssignments returns all assignments ordered by identifier.
func (v transactionView) ListAssignments() []Assignment {
	out := make([]Assignment, 0, len(v.state.assignments))
	for _, a := range v.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindAssignment retrieves an assignment by id.
func (v transactionView) FindAssignment(id string) (Assignment, bool) {
	a, ok := v.state.assignments[id]
	if !ok {
		return Assignment{}, false
	}
	return cloneAssignment(a), true
}

// ListDonations returns the ledger in chronological order.
func (v transactionView) ListDonations() []Donation {
	out := make([]Donation, 0, len(v.state.donations))
	for _, d := range v.state.donations {
		out = append(out, cloneDonation(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DonatedAt.Equal(out[j].DonatedAt) {
			return out[i].DonatedAt.Before(out[j].DonatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindDonation retrieves a ledger entry by id.
func (v transactionView) FindDonation(id string) (Donation, bool) {
	d, ok := v.state.donations[id]
	if !ok {
		return Donation{}, false
	}
	return cloneDonation(d), true
}

// ListInventory returns inventory entries in canonical blood group order.
// Groups without an entry are omitted.
func (v transactionView) ListInventory() []InventoryEntry {
	out := make([]InventoryEntry, 0, len(v.state.inventory))
	for _, g := range domain.AllBloodGroups() {
		if entry, ok := v.state.inventory[g]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// InventoryUnits returns the units held for a group, zero when unknown.
func (v transactionView) InventoryUnits(group BloodGroup) int {
	return v.state.inventory[group].Units
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.changes); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateDonor stores a new donor within the transaction. A preset CreatedAt
// is kept so imported registrations retain their original timestamp.
func (tx *transaction) CreateDonor(d Donor) (Donor, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.donors[d.ID]; exists {
		return Donor{}, fmt.Errorf("donor %q already exists", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = tx.now
	}
	d.UpdatedAt = tx.now
	tx.state.donors[d.ID] = cloneDonor(d)
	tx.recordChange(Change{Entity: domain.EntityDonor, Action: domain.ActionCreate, EntityID: d.ID, After: cloneDonor(d)})
	return cloneDonor(d), nil
}

// UpdateDonor mutates a donor using the provided mutator function.
func (tx *transaction) UpdateDonor(id string, mutator func(*Donor) error) (Donor, error) {
	current, ok := tx.state.donors[id]
	if !ok {
		return Donor{}, domain.NotFoundError{Entity: domain.EntityDonor, ID: id}
	}
	before := cloneDonor(current)
	if err := mutator(&current); err != nil {
		return Donor{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.donors[id] = cloneDonor(current)
	tx.recordChange(Change{Entity: domain.EntityDonor, Action: domain.ActionUpdate, EntityID: id, Before: before, After: cloneDonor(current)})
	return cloneDonor(current), nil
}

// CreateRequestor stores a new requestor.
func (tx *transaction) CreateRequestor(r Requestor) (Requestor, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requestors[r.ID]; exists {
		return Requestor{}, fmt.Errorf("requestor %q already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	r.UpdatedAt = tx.now
	tx.state.requestors[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRequestor, Action: domain.ActionCreate, EntityID: r.ID, After: r})
	return r, nil
}

// UpdateRequestor mutates a requestor.
func (tx *transaction) UpdateRequestor(id string, mutator func(*Requestor) error) (Requestor, error) {
	current, ok := tx.state.requestors[id]
	if !ok {
		return Requestor{}, domain.NotFoundError{Entity: domain.EntityRequestor, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Requestor{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.requestors[id] = current
	tx.recordChange(Change{Entity: domain.EntityRequestor, Action: domain.ActionUpdate, EntityID: id, Before: before, After: current})
	return current, nil
}

// CreateRequest stores a new blood request.
func (tx *transaction) CreateRequest(r BloodRequest) (BloodRequest, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return BloodRequest{}, fmt.Errorf("blood request %q already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	r.UpdatedAt = tx.now
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, EntityID: r.ID, After: cloneRequest(r)})
	return cloneRequest(r), nil
}

// UpdateRequest mutates a blood request.
func (tx *transaction) UpdateRequest(id string, mutator func(*BloodRequest) error) (BloodRequest, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return BloodRequest{}, domain.NotFoundError{Entity: domain.EntityRequest, ID: id}
	}
	before := cloneRequest(current)
	if err := mutator(&current); err != nil {
		return BloodRequest{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, EntityID: id, Before: before, After: cloneRequest(current)})
	return cloneRequest(current), nil
}

// CreateAssignment stores a new assignment.
func (tx *transaction) CreateAssignment(a Assignment) (Assignment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return Assignment{}, fmt.Errorf("assignment %q already exists", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = tx.now
	}
	a.UpdatedAt = tx.now
	tx.state.assignments[a.ID] = cloneAssignment(a)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionCreate, EntityID: a.ID, After: cloneAssignment(a)})
	return cloneAssignment(a), nil
}

// UpdateAssignment mutates an assignment.
func (tx *transaction) UpdateAssignment(id string, mutator func(*Assignment) error) (Assignment, error) {
	current, ok := tx.state.assignments[id]
	if !ok {
		return Assignment{}, domain.NotFoundError{Entity: domain.EntityAssignment, ID: id}
	}
	before := cloneAssignment(current)
	if err := mutator(&current); err != nil {
		return Assignment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.assignments[id] = cloneAssignment(current)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionUpdate, EntityID: id, Before: before, After: cloneAssignment(current)})
	return cloneAssignment(current), nil
}

// CreateDonation appends an entry to the donation ledger.
func (tx *transaction) CreateDonation(d Donation) (Donation, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.donations[d.ID]; exists {
		return Donation{}, fmt.Errorf("donation %q already exists", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = tx.now
	}
	if d.DonatedAt.IsZero() {
		d.DonatedAt = tx.now
	}
	d.UpdatedAt = tx.now
	tx.state.donations[d.ID] = cloneDonation(d)
	tx.recordChange(Change{Entity: domain.EntityDonation, Action: domain.ActionCreate, EntityID: d.ID, After: cloneDonation(d)})
	return cloneDonation(d), nil
}

// SetInventory records the unit count for a blood group. Negative counts are
// stored as given so the rules engine can reject them with context.
func (tx *transaction) SetInventory(group BloodGroup, units int) (InventoryEntry, error) {
	if !group.Valid() {
		return InventoryEntry{}, domain.ValidationError{Field: "blood_group", Message: "unknown blood group " + string(group)}
	}
	before, existed := tx.state.inventory[group]
	entry := InventoryEntry{BloodGroup: group, Units: units, UpdatedAt: tx.now}
	tx.state.inventory[group] = entry
	change := Change{Entity: domain.EntityInventory, Action: domain.ActionCreate, EntityID: string(group), After: entry}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.recordChange(change)
	return entry, nil
}

// GetDonor returns a donor by id.
func (s *Store) GetDonor(id string) (Donor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindDonor(id)
}

// ListDonors returns all donors.
func (s *Store) ListDonors() []Donor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListDonors()
}

// GetRequestor returns a requestor by id.
func (s *Store) GetRequestor(id string) (Requestor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindRequestor(id)
}

// ListRequestors returns all requestors.
func (s *Store) ListRequestors() []Requestor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRequestors()
}

// GetRequest returns a blood request by id.
func (s *Store) GetRequest(id string) (BloodRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindRequest(id)
}

// ListRequests returns all blood requests.
func (s *Store) ListRequests() []BloodRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRequests()
}

// GetAssignment returns an assignment by id.
func (s *Store) GetAssignment(id string) (Assignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindAssignment(id)
}

// ListAssignments returns all assignments.
func (s *Store) ListAssignments() []Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAssignments()
}

// ListDonations returns the donation ledger in chronological order.
func (s *Store) ListDonations() []Donation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListDonations()
}

// ListInventory returns all inventory entries.
func (s *Store) ListInventory() []InventoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListInventory()
}

// InventoryUnits returns the units held for a group.
func (s *Store) InventoryUnits(group BloodGroup) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).InventoryUnits(group)
}

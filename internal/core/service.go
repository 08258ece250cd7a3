package core

import (
	"bloodsync/internal/blob"
	"bloodsync/internal/events"
	"bloodsync/internal/infra/persistence/memory"
	"context"
	"time"
)

// Service exposes the blood bank operations: registration, matching,
// inventory, fulfillment and assignments. Every mutation runs in a single
// store transaction so invariants are checked by the rules engine before
// commit.
type Service struct {
	store     PersistentStore
	clock     Clock
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	ids       IDGenerator
	publisher events.Publisher
	ledger    blob.Store
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:     store,
		clock:     o.clock,
		logger:    o.logger,
		audit:     o.audit,
		metrics:   o.metrics,
		tracer:    o.tracer,
		ids:       o.ids,
		publisher: o.publisher,
		ledger:    o.ledger,
	}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine installs the default rules.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	store := memory.NewStore(engine, memory.WithClock(o.clock.Now))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

type operationMetadata struct {
	entity EntityType
	action Action
}

// Operation names reported to logs, metrics, traces and audit.
const (
	opRegisterDonor       = "register_donor"
	opUpdateDonorProfile  = "update_donor_profile"
	opRegisterRequestor   = "register_requestor"
	opSubmitRequest       = "submit_request"
	opAdjustInventory     = "adjust_inventory"
	opSeedInventory       = "seed_inventory"
	opSeedDonors          = "seed_donors"
	opWithdrawInventory   = "withdraw_inventory"
	opRecordDonation      = "record_donation"
	opAcceptRequest       = "accept_request"
	opConfirmAssignment   = "confirm_assignment"
	opConfirmDonation     = "confirm_donation"
	opExportLedger        = "export_ledger"
	opMatchRequest        = "match_request"
	opFindCompatible      = "find_compatible_donors"
	opAvailableRequests   = "find_available_requests"
	opSearchDonors        = "search_donors"
	opStatistics          = "statistics"
	opDonorDashboard      = "donor_dashboard"
	opRequestDetails      = "request_details"
	opRequestorDashboard  = "requestor_dashboard"
	opHasEligibleDonor    = "has_eligible_donor"
	opAssignmentsForDonor = "assignments_for_donor"
)

var auditedOperations = map[string]operationMetadata{
	opRegisterDonor:      {entity: EntityDonor, action: ActionCreate},
	opUpdateDonorProfile: {entity: EntityDonor, action: ActionUpdate},
	opRegisterRequestor:  {entity: EntityRequestor, action: ActionCreate},
	opSubmitRequest:      {entity: EntityRequest, action: ActionCreate},
	opAdjustInventory:    {entity: EntityInventory, action: ActionUpdate},
	opSeedInventory:      {entity: EntityInventory, action: ActionCreate},
	opSeedDonors:         {entity: EntityDonor, action: ActionCreate},
	opWithdrawInventory:  {entity: EntityRequest, action: ActionUpdate},
	opRecordDonation:     {entity: EntityDonation, action: ActionCreate},
	opAcceptRequest:      {entity: EntityAssignment, action: ActionCreate},
	opConfirmAssignment:  {entity: EntityAssignment, action: ActionUpdate},
	opConfirmDonation:    {entity: EntityAssignment, action: ActionUpdate},
	opExportLedger:       {entity: EntityDonation, action: ActionCreate},
}

// run instruments an operation. fn returns the id of the primary entity it
// touched so audit entries and logs can reference it.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	id, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", id, "duration", elapsed, "error", err)
		s.recordAudit(ctx, op, id, elapsed, err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", id, "duration", elapsed)
	s.recordAudit(ctx, op, id, elapsed, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op, id string, elapsed time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// publish delivers an event; failures are logged and never fail the caller
// because the mutation has already committed.
func (s *Service) publish(ctx context.Context, t events.Type, entityID string, data map[string]any) {
	event := events.Event{Type: t, EntityID: entityID, OccurredAt: s.now(), Data: data}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "event", string(t), "entity_id", entityID, "error", err)
	}
}

// reportWarnings logs non-blocking violations and raises critical stock events.
func (s *Service) reportWarnings(ctx context.Context, op string, res Result) {
	for _, v := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
		if v.Rule == criticalStockRuleName {
			s.publish(ctx, events.InventoryCritical, v.EntityID, map[string]any{"message": v.Message})
		}
	}
}

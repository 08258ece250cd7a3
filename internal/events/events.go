// Package events publishes domain events emitted after committed mutations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Type names a domain event.
type Type string

// Published event types.
const (
	DonorRegistered     Type = "donor.registered"
	DonorUpdated        Type = "donor.updated"
	RequestorRegistered Type = "requestor.registered"
	RequestSubmitted    Type = "request.submitted"
	RequestWithdrawn    Type = "request.withdrawn"
	InventoryAdjusted   Type = "inventory.adjusted"
	InventoryCritical   Type = "inventory.critical"
	DonationRecorded    Type = "donation.recorded"
	AssignmentAccepted  Type = "assignment.accepted"
	AssignmentConfirmed Type = "assignment.confirmed"
	AssignmentCompleted Type = "assignment.completed"
	LedgerExported      Type = "ledger.exported"
)

// Event is the wire shape of a published domain event.
type Event struct {
	Type       Type           `json:"type"`
	EntityID   string         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Encode renders the event as JSON.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return data, nil
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher retains events in process, for tests and single-node setups.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher returns an empty in-process publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

// Events returns a copy of the published events in order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Of returns the published events of the given type.
func (p *MemoryPublisher) Of(t Type) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

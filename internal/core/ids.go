package core

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces record identifiers.
type IDGenerator interface {
	NewID(entity EntityType) string
}

// IDScheme selects an identifier format.
type IDScheme string

// Supported identifier schemes.
const (
	IDSchemePrefixed IDScheme = "prefixed"
	IDSchemeNumeric  IDScheme = "numeric"
)

// NewIDGenerator returns the generator for a scheme, defaulting to prefixed.
func NewIDGenerator(scheme IDScheme) (IDGenerator, error) {
	switch scheme {
	case "", IDSchemePrefixed:
		return NewPrefixedIDGenerator(), nil
	case IDSchemeNumeric:
		return NumericIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %s", scheme)
	}
}

var idPrefixes = map[EntityType]string{
	EntityDonor:      "DON-",
	EntityRequestor:  "REQ-",
	EntityRequest:    "BR-",
	EntityDonation:   "DN-",
	EntityAssignment: "ASGN-",
}

// PrefixedIDGenerator emits ids such as DON-1A2B3C4D: an entity prefix followed
// by eight upper-case hex characters of a random UUID.
type PrefixedIDGenerator struct {
	newUUID func() uuid.UUID
}

// NewPrefixedIDGenerator returns a generator backed by random UUIDs.
func NewPrefixedIDGenerator() PrefixedIDGenerator {
	return PrefixedIDGenerator{newUUID: uuid.New}
}

// NewID implements IDGenerator.
func (g PrefixedIDGenerator) NewID(entity EntityType) string {
	gen := g.newUUID
	if gen == nil {
		gen = uuid.New
	}
	hex := strings.ReplaceAll(gen().String(), "-", "")
	return idPrefixes[entity] + strings.ToUpper(hex[:8])
}

// NumericIDGenerator emits random six-digit ids.
type NumericIDGenerator struct{}

// NewID implements IDGenerator.
func (NumericIDGenerator) NewID(EntityType) string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

const maxIDAttempts = 16

// nextID draws identifiers until one is unused in the view.
func (s *Service) nextID(view TransactionView, entity EntityType) string {
	var id string
	for range maxIDAttempts {
		id = s.ids.NewID(entity)
		if !idTaken(view, entity, id) {
			return id
		}
	}
	return id
}

func idTaken(view TransactionView, entity EntityType, id string) bool {
	var ok bool
	switch entity {
	case EntityDonor:
		_, ok = view.FindDonor(id)
	case EntityRequestor:
		_, ok = view.FindRequestor(id)
	case EntityRequest:
		_, ok = view.FindRequest(id)
	case EntityAssignment:
		_, ok = view.FindAssignment(id)
	case EntityDonation:
		_, ok = view.FindDonation(id)
	}
	return ok
}

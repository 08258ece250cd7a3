package memory

import (
	"bloodsync/pkg/domain"
	"encoding/json"
	"fmt"
)

// Bucket names used by record-oriented backends.
const (
	BucketDonors      = "donors"
	BucketRequestors  = "requestors"
	BucketRequests    = "requests"
	BucketAssignments = "assignments"
	BucketDonations   = "donations"
	BucketInventory   = "inventory"
)

// Buckets lists every bucket in load order.
var Buckets = []string{BucketDonors, BucketRequestors, BucketRequests, BucketAssignments, BucketDonations, BucketInventory}

// BucketFor maps an entity type to its bucket name.
func BucketFor(entity domain.EntityType) (string, error) {
	switch entity {
	case domain.EntityDonor:
		return BucketDonors, nil
	case domain.EntityRequestor:
		return BucketRequestors, nil
	case domain.EntityRequest:
		return BucketRequests, nil
	case domain.EntityAssignment:
		return BucketAssignments, nil
	case domain.EntityDonation:
		return BucketDonations, nil
	case domain.EntityInventory:
		return BucketInventory, nil
	default:
		return "", fmt.Errorf("no bucket for entity %s", entity)
	}
}

// Record is a single keyed row written by a durable backend.
type Record struct {
	Bucket  string
	ID      string
	Payload []byte
	Deleted bool
}

// RecordsFromChanges collapses a change set into the latest payload per key,
// preserving first-seen order.
func RecordsFromChanges(changes []Change) ([]Record, error) {
	index := make(map[string]int, len(changes))
	var out []Record
	for _, change := range changes {
		bucket, err := BucketFor(change.Entity)
		if err != nil {
			return nil, err
		}
		rec := Record{Bucket: bucket, ID: change.EntityID}
		if change.Action == domain.ActionDelete || change.After == nil {
			rec.Deleted = true
		} else {
			payload, err := json.Marshal(change.After)
			if err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", bucket, change.EntityID, err)
			}
			rec.Payload = payload
		}
		key := bucket + "/" + change.EntityID
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

// Apply decodes a stored record into the snapshot.
func (s *Snapshot) Apply(bucket, id string, payload []byte) error {
	s.ensureMaps()
	var err error
	switch bucket {
	case BucketDonors:
		var v Donor
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Donors[id] = v
		}
	case BucketRequestors:
		var v Requestor
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Requestors[id] = v
		}
	case BucketRequests:
		var v BloodRequest
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Requests[id] = v
		}
	case BucketAssignments:
		var v Assignment
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Assignments[id] = v
		}
	case BucketDonations:
		var v Donation
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Donations[id] = v
		}
	case BucketInventory:
		var v InventoryEntry
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Inventory[BloodGroup(id)] = v
		}
	default:
		return fmt.Errorf("unknown bucket %s", bucket)
	}
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", bucket, id, err)
	}
	return nil
}

func (s *Snapshot) ensureMaps() {
	if s.Donors == nil {
		s.Donors = make(map[string]Donor)
	}
	if s.Requestors == nil {
		s.Requestors = make(map[string]Requestor)
	}
	if s.Requests == nil {
		s.Requests = make(map[string]BloodRequest)
	}
	if s.Assignments == nil {
		s.Assignments = make(map[string]Assignment)
	}
	if s.Donations == nil {
		s.Donations = make(map[string]Donation)
	}
	if s.Inventory == nil {
		s.Inventory = make(map[BloodGroup]InventoryEntry)
	}
}

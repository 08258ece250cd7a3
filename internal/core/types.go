package core

import "bloodsync/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	BloodGroup         = domain.BloodGroup
	Donor              = domain.Donor
	Requestor          = domain.Requestor
	BloodRequest       = domain.BloodRequest
	Assignment         = domain.Assignment
	Donation           = domain.Donation
	InventoryEntry     = domain.InventoryEntry
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityDonor      = domain.EntityDonor
	EntityRequestor  = domain.EntityRequestor
	EntityRequest    = domain.EntityRequest
	EntityAssignment = domain.EntityAssignment
	EntityDonation   = domain.EntityDonation
	EntityInventory  = domain.EntityInventory
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

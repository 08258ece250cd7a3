package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every typed error below matches exactly one of them via
// errors.Is so callers can branch on the kind without type switches.
var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrIneligibleDonor       = errors.New("donor not eligible")
	ErrBackendUnavailable    = errors.New("backend unavailable")
)

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError reports an operation attempted from a state that does not allow it.
type TransitionError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot move %s %s from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InsufficientInventoryError reports a withdrawal larger than stock or need.
type InsufficientInventoryError struct {
	BloodGroup BloodGroup
	Requested  int
	Available  int
	Remaining  int
}

func (e InsufficientInventoryError) Error() string {
	if e.Requested > e.Available {
		return fmt.Sprintf("only %d units of %s available, %d requested", e.Available, e.BloodGroup, e.Requested)
	}
	return fmt.Sprintf("request needs %d more units of %s, %d requested", e.Remaining, e.BloodGroup, e.Requested)
}

// Is matches ErrInsufficientInventory.
func (e InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// IneligibleDonorError reports a donation attempted inside the minimum interval.
type IneligibleDonorError struct {
	DonorID       string
	DaysRemaining int
}

func (e IneligibleDonorError) Error() string {
	return fmt.Sprintf("donor %s can donate again in %d days", e.DonorID, e.DaysRemaining)
}

// Is matches ErrIneligibleDonor.
func (e IneligibleDonorError) Is(target error) bool { return target == ErrIneligibleDonor }

// BackendUnavailableError wraps a storage or transport failure.
type BackendUnavailableError struct {
	Backend string
	Op      string
	Err     error
}

func (e BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e BackendUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrBackendUnavailable.
func (e BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cause := errors.New("connection refused")
	cases := []struct {
		err  error
		kind error
	}{
		{NotFoundError{Entity: EntityDonor, ID: "DON-1"}, ErrNotFound},
		{ValidationError{Field: "units", Message: "must be positive"}, ErrValidation},
		{TransitionError{Entity: EntityAssignment, ID: "A", From: "completed", To: "completed"}, ErrInvalidTransition},
		{InsufficientInventoryError{BloodGroup: OPositive, Requested: 5, Available: 2}, ErrInsufficientInventory},
		{IneligibleDonorError{DonorID: "DON-1", DaysRemaining: 3}, ErrIneligibleDonor},
		{BackendUnavailableError{Backend: "dynamodb", Op: "put", Err: cause}, ErrBackendUnavailable},
	}
	kinds := []error{ErrNotFound, ErrValidation, ErrInvalidTransition, ErrInsufficientInventory, ErrIneligibleDonor, ErrBackendUnavailable}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		for _, kind := range kinds {
			if got := errors.Is(wrapped, kind); got != (kind == tc.kind) {
				t.Fatalf("%T: errors.Is(%v) = %v", tc.err, kind, got)
			}
		}
		if tc.err.Error() == "" {
			t.Fatalf("%T: empty message", tc.err)
		}
	}
}

func TestBackendUnavailableUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("persist: %w", BackendUnavailableError{Backend: "postgres", Op: "commit", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	var target BackendUnavailableError
	if !errors.As(err, &target) || target.Backend != "postgres" {
		t.Fatalf("expected errors.As to extract backend error")
	}
}

func TestInsufficientInventoryMessages(t *testing.T) {
	stock := InsufficientInventoryError{BloodGroup: ANegative, Requested: 9, Available: 3, Remaining: 10}
	need := InsufficientInventoryError{BloodGroup: ANegative, Requested: 2, Available: 30, Remaining: 1}
	if stock.Error() == need.Error() {
		t.Fatalf("expected distinct messages for stock and need failures")
	}
}

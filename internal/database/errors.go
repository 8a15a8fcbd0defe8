package database

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAttendance is returned when an admitted attendance event
	// already exists for the member on the same calendar day. The uniqueness
	// is enforced by a storage constraint, so two racing check-ins resolve
	// to exactly one admitted event.
	ErrDuplicateAttendance = errors.New("attendance already recorded for today")

	// ErrMemberNotFound is returned when a member id does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrNoActiveBiometric is returned when a subject has no active
	// enrollment to deactivate.
	ErrNoActiveBiometric = errors.New("no active biometric record")
)

// DimensionError reports an embedding whose length does not match the
// configured dimension. Such vectors never reach storage.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

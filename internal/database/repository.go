package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BiometricReader provides read-only access to biometric enrollments.
type BiometricReader interface {
	// SearchNearest finds the k most similar active embeddings, ordered by
	// descending similarity. Ties on similarity are broken by ascending
	// record id so results are deterministic.
	SearchNearest(ctx context.Context, embedding []float32, k int) ([]SubjectMatch, error)
	// GetActive retrieves the active record for a subject, nil if none.
	GetActive(ctx context.Context, subjectID uuid.UUID, typ BiometricType) (*BiometricRecord, error)
	// ActiveRecords returns all active enrollments, used to build the
	// in-memory search index.
	ActiveRecords(ctx context.Context) ([]BiometricRecord, error)
	// Count returns the total number of active enrollments.
	Count(ctx context.Context) (int, error)
}

// BiometricWriter provides write access to biometric enrollments.
type BiometricWriter interface {
	BiometricReader

	// Store persists a new enrollment. Within a single transaction it
	// deactivates the prior active record for (subjectID, typ) and inserts
	// the new one, serialized per subject so concurrent re-enrollments
	// cannot both end up active.
	Store(ctx context.Context, rec *BiometricRecord) (*BiometricRecord, error)

	// Deactivate soft-deletes the active record for a subject without
	// enrolling a replacement. Returns ErrNoActiveBiometric if none exists.
	Deactivate(ctx context.Context, subjectID uuid.UUID, typ BiometricType) error
}

// AttendanceStore persists check-in outcomes.
type AttendanceStore interface {
	// Record inserts an attendance event. An admitted event that collides
	// with an existing admitted event for the same member and day fails
	// with ErrDuplicateAttendance; the constraint lives in storage, so the
	// guarantee holds across process instances.
	Record(ctx context.Context, memberID uuid.UUID, outcome AttendanceOutcome, at time.Time) (*AttendanceEvent, error)

	// HasAdmittedOn reports whether an admitted event exists for the member
	// on the given calendar day.
	HasAdmittedOn(ctx context.Context, memberID uuid.UUID, day time.Time) (bool, error)

	// ListByDay returns all events for a calendar day, newest first.
	ListByDay(ctx context.Context, day time.Time) ([]AttendanceEvent, error)
}

// MemberDirectory is the read-only collaborator boundary for member and
// subscription state. This core never writes through it.
type MemberDirectory interface {
	// GetMember retrieves a member, ErrMemberNotFound if the id is unknown.
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)

	// GetActiveSubscription returns the member's current subscription, the
	// one with the latest end date regardless of status, or nil if none
	// exists. Status rules belong to the access decision, not the store.
	GetActiveSubscription(ctx context.Context, memberID uuid.UUID) (*Subscription, error)
}

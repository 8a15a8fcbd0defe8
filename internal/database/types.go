package database

import (
	"time"

	"github.com/google/uuid"
)

// BiometricType identifies the kind of biometric stored for a subject.
// Only face embeddings exist today; the type is kept explicit because the
// single-active-record invariant is scoped per (subject, type).
type BiometricType string

const BiometricTypeFace BiometricType = "face"

// BiometricRecord is one enrollment of a subject's face embedding.
// At most one record per (SubjectID, Type) has Active=true; re-enrollment
// deactivates the previous record but never deletes it.
type BiometricRecord struct {
	ID             uuid.UUID
	SubjectID      uuid.UUID
	Type           BiometricType
	Embedding      []float32 // L2-normalized, length config.EmbeddingDim
	Thumbnail      []byte    // ciphertext, sealed with the configured key
	ThumbnailNonce []byte
	Active         bool
	CreatedAt      time.Time
}

// SubjectMatch is a nearest-neighbor search hit.
type SubjectMatch struct {
	RecordID   uuid.UUID
	SubjectID  uuid.UUID
	Similarity float64 // cosine similarity, [-1, 1]
}

// AttendanceOutcome is the terminal result of a check-in attempt.
type AttendanceOutcome string

const (
	OutcomeAdmitted AttendanceOutcome = "admitted"
	OutcomeDenied   AttendanceOutcome = "denied"
)

// AttendanceEvent is an immutable record of a check-in attempt. Only one
// admitted event may exist per (MemberID, Day); denied attempts are kept
// for auditing and do not count against the daily limit.
type AttendanceEvent struct {
	ID          uuid.UUID
	MemberID    uuid.UUID
	Outcome     AttendanceOutcome
	CheckedInAt time.Time
	Day         time.Time // calendar day of CheckedInAt, date only
}

// Member is the collaborator-owned view of a gym member. Read-only here.
type Member struct {
	ID     uuid.UUID
	Active bool
}

// SubscriptionStatus mirrors the collaborator's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionExpired        SubscriptionStatus = "expired"
	SubscriptionScheduled      SubscriptionStatus = "scheduled"
	SubscriptionCanceled       SubscriptionStatus = "canceled"
)

// Subscription is the collaborator-owned view of a member's plan. Read-only here.
type Subscription struct {
	ID        uuid.UUID
	MemberID  uuid.UUID
	Status    SubscriptionStatus
	StartDate time.Time
	EndDate   time.Time
}

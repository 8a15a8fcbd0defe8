// Package checkin orchestrates one check-in or registration request: image
// validation, identity resolution, access decision, and attendance
// recording. The flow is a linear state machine; no state is re-entered
// and nothing touches storage until the image has been validated and
// matched.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/access"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/extractor"
	"github.com/gymgate/gymgate/internal/imaging"
	"github.com/gymgate/gymgate/internal/notify"
	"github.com/gymgate/gymgate/internal/recognizer"
	"github.com/gymgate/gymgate/internal/seal"
)

// State tracks the check-in pipeline position. Terminal states are Done,
// Denied, and Failed.
type State string

const (
	StateReceived   State = "received"
	StateExtracting State = "extracting"
	StateMatching   State = "matching"
	StateValidating State = "validating"
	StateRecording  State = "recording"
	StateDone       State = "done"
	StateDenied     State = "denied"
	StateFailed     State = "failed"
)

// FailureReason classifies terminal failures (as opposed to business
// denials, which carry an access.DenialReason).
type FailureReason string

const (
	FailureNoFace        FailureReason = "no_face_detected"
	FailureMultipleFaces FailureReason = "multiple_faces_detected"
	FailureInvalidImage  FailureReason = "invalid_image"
	FailureNotRecognized FailureReason = "identity_not_recognized"
	FailureTimeout       FailureReason = "timeout"
	FailureStorage       FailureReason = "storage_unavailable"
	FailureConfiguration FailureReason = "configuration_error"
)

// Result is the terminal outcome of a check-in attempt.
type Result struct {
	State         State
	MemberID      uuid.UUID
	Similarity    float64
	DenialReason  access.DenialReason // set when State == StateDenied
	FailureReason FailureReason       // set when State == StateFailed
}

// Service composes the check-in and registration flows.
type Service struct {
	resolver   *recognizer.Resolver
	extractor  extractor.Extractor
	biometrics database.BiometricWriter
	members    database.MemberDirectory
	attendance database.AttendanceStore
	keeper     *seal.Keeper
	notifier   notify.Notifier
	maxRetries int

	now func() time.Time
}

// NewService wires the check-in service. maxRetries bounds transient
// storage retries.
func NewService(
	resolver *recognizer.Resolver,
	ext extractor.Extractor,
	biometrics database.BiometricWriter,
	members database.MemberDirectory,
	attendance database.AttendanceStore,
	keeper *seal.Keeper,
	notifier notify.Notifier,
	maxRetries int,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		resolver:   resolver,
		extractor:  ext,
		biometrics: biometrics,
		members:    members,
		attendance: attendance,
		keeper:     keeper,
		notifier:   notifier,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// CheckIn runs the full pipeline for a submitted face image and always
// returns a terminal Result.
func (s *Service) CheckIn(ctx context.Context, imageData []byte) *Result {
	// RECEIVED -> EXTRACTING: validate the image before anything else.
	if _, err := imaging.Decode(imageData); err != nil {
		return &Result{State: StateFailed, FailureReason: FailureInvalidImage}
	}

	// EXTRACTING -> MATCHING: extraction failures never reach storage.
	resolution, err := s.resolver.Resolve(ctx, imageData)
	if err != nil {
		return &Result{State: StateFailed, FailureReason: classifyResolveError(err)}
	}

	// MATCHING -> VALIDATING: unmatched faces terminate here.
	if !resolution.Matched {
		return &Result{State: StateFailed, FailureReason: FailureNotRecognized}
	}

	memberID := resolution.SubjectID
	verdict, failure := s.validate(ctx, memberID)
	if failure != "" {
		return &Result{State: StateFailed, MemberID: memberID, FailureReason: failure}
	}

	if !verdict.Admitted {
		// A denied attempt is audited but never satisfies the daily
		// admit constraint.
		s.auditDenied(ctx, memberID, verdict.Reason)
		return &Result{
			State:        StateDenied,
			MemberID:     memberID,
			Similarity:   resolution.Similarity,
			DenialReason: verdict.Reason,
		}
	}

	// VALIDATING -> RECORDING: the only step with side effects.
	if res := s.record(ctx, memberID, resolution.Similarity); res != nil {
		return res
	}

	s.notifier.Notify(notify.EventCheckInAdmitted, map[string]any{
		"member_id":  memberID.String(),
		"similarity": resolution.Similarity,
	})

	return &Result{
		State:      StateDone,
		MemberID:   memberID,
		Similarity: resolution.Similarity,
	}
}

// validate gathers member, subscription, and attendance state and runs the
// pure access decision. Reads are retried on transient failures.
func (s *Service) validate(ctx context.Context, memberID uuid.UUID) (access.Verdict, FailureReason) {
	var member *database.Member
	err := s.withRetry(ctx, func() error {
		var err error
		member, err = s.members.GetMember(ctx, memberID)
		if errors.Is(err, database.ErrMemberNotFound) {
			member = nil
			return nil
		}
		return err
	})
	if err != nil {
		return access.Verdict{}, classifyStorageError(err)
	}

	var sub *database.Subscription
	err = s.withRetry(ctx, func() error {
		var err error
		sub, err = s.members.GetActiveSubscription(ctx, memberID)
		return err
	})
	if err != nil {
		return access.Verdict{}, classifyStorageError(err)
	}

	var hasToday bool
	err = s.withRetry(ctx, func() error {
		var err error
		hasToday, err = s.attendance.HasAdmittedOn(ctx, memberID, s.now())
		return err
	})
	if err != nil {
		return access.Verdict{}, classifyStorageError(err)
	}

	return access.Decide(member, sub, hasToday, s.now()), ""
}

// record persists the admitted attendance. A duplicate constraint means a
// concurrent check-in won the day; it surfaces as a denial, not an error.
// Returns nil when the event committed.
func (s *Service) record(ctx context.Context, memberID uuid.UUID, similarity float64) *Result {
	err := s.withRetry(ctx, func() error {
		_, err := s.attendance.Record(ctx, memberID, database.OutcomeAdmitted, s.now())
		if errors.Is(err, database.ErrDuplicateAttendance) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, database.ErrDuplicateAttendance) {
		s.auditDenied(ctx, memberID, access.ReasonAlreadyCheckedIn)
		return &Result{
			State:        StateDenied,
			MemberID:     memberID,
			Similarity:   similarity,
			DenialReason: access.ReasonAlreadyCheckedIn,
		}
	}
	return &Result{State: StateFailed, MemberID: memberID, FailureReason: classifyStorageError(err)}
}

// auditDenied logs a denied attempt best-effort and fires the denial
// notification. Failures here never change the verdict.
func (s *Service) auditDenied(ctx context.Context, memberID uuid.UUID, reason access.DenialReason) {
	if _, err := s.attendance.Record(ctx, memberID, database.OutcomeDenied, s.now()); err != nil {
		log.Printf("checkin: recording denied attempt for %s: %v", memberID, err)
	}
	s.notifier.Notify(notify.EventCheckInDenied, map[string]any{
		"member_id": memberID.String(),
		"reason":    string(reason),
		"message":   notify.ReasonMessage(string(reason)),
	})
}

// RegisterResult is the outcome of a biometric registration.
type RegisterResult struct {
	BiometricID uuid.UUID
	SubjectID   uuid.UUID
}

// Register enrolls a face for a subject: validate, extract, thumbnail,
// seal, store. The store deactivates any previous enrollment in the same
// transaction.
func (s *Service) Register(ctx context.Context, subjectID uuid.UUID, imageData []byte) (*RegisterResult, error) {
	img, err := imaging.Decode(imageData)
	if err != nil {
		return nil, &extractor.ExtractionError{Code: extractor.InvalidImage, Message: "undecodable image"}
	}

	embedding, err := s.extractor.Extract(ctx, imageData)
	if err != nil {
		return nil, err
	}

	thumb, err := imaging.Thumbnail(img)
	if err != nil {
		return nil, fmt.Errorf("creating thumbnail: %w", err)
	}

	sealed, nonce, err := s.keeper.Seal(thumb)
	if err != nil {
		// Bad key material is fatal configuration, never retried.
		return nil, fmt.Errorf("sealing thumbnail: %w", err)
	}

	var stored *database.BiometricRecord
	err = s.withRetry(ctx, func() error {
		var err error
		stored, err = s.biometrics.Store(ctx, &database.BiometricRecord{
			SubjectID:      subjectID,
			Type:           database.BiometricTypeFace,
			Embedding:      database.Normalize(embedding),
			Thumbnail:      sealed,
			ThumbnailNonce: nonce,
		})
		var dimErr *database.DimensionError
		if errors.As(err, &dimErr) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(notify.EventBiometricRegistered, map[string]any{
		"subject_id":   subjectID.String(),
		"biometric_id": stored.ID.String(),
	})

	return &RegisterResult{BiometricID: stored.ID, SubjectID: subjectID}, nil
}

// Remove deactivates a subject's active enrollment.
func (s *Service) Remove(ctx context.Context, subjectID uuid.UUID) error {
	err := s.withRetry(ctx, func() error {
		err := s.biometrics.Deactivate(ctx, subjectID, database.BiometricTypeFace)
		if errors.Is(err, database.ErrNoActiveBiometric) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(notify.EventBiometricRemoved, map[string]any{
		"subject_id": subjectID.String(),
	})
	return nil
}

// AttendanceToday lists today's attendance events.
func (s *Service) AttendanceToday(ctx context.Context) ([]database.AttendanceEvent, error) {
	return s.attendance.ListByDay(ctx, s.now())
}

// withRetry runs fn with bounded exponential backoff, honoring context
// cancellation. Permanent errors pass through immediately.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxRetries)), ctx)
	return backoff.Retry(fn, policy)
}

// classifyResolveError maps resolver failures to terminal reasons.
func classifyResolveError(err error) FailureReason {
	var extErr *extractor.ExtractionError
	if errors.As(err, &extErr) {
		switch extErr.Code {
		case extractor.NoFaceDetected:
			return FailureNoFace
		case extractor.MultipleFacesDetected:
			return FailureMultipleFaces
		default:
			return FailureInvalidImage
		}
	}
	var dimErr *database.DimensionError
	if errors.As(err, &dimErr) {
		// The extractor returned a vector the store would reject; the
		// model and configuration disagree.
		return FailureConfiguration
	}
	return classifyStorageError(err)
}

// classifyStorageError distinguishes timeouts from exhausted retries.
func classifyStorageError(err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	return FailureStorage
}

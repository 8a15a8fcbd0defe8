package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Record inserts an attendance event. The partial unique index on
// (member_id, day) for admitted outcomes makes the once-per-day guarantee
// hold under concurrency and across process instances; a violation is
// translated to ErrDuplicateAttendance.
func (r *AttendanceRepository) Record(ctx context.Context, memberID uuid.UUID, outcome database.AttendanceOutcome, at time.Time) (*database.AttendanceEvent, error) {
	at = at.UTC()
	event := &database.AttendanceEvent{
		ID:          uuid.New(),
		MemberID:    memberID,
		Outcome:     outcome,
		CheckedInAt: at,
		Day:         at.Truncate(24 * time.Hour),
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (id, member_id, outcome, checked_in_at, day)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.MemberID, string(event.Outcome), event.CheckedInAt, event.Day)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, database.ErrDuplicateAttendance
		}
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	return event, nil
}

// HasAdmittedOn reports whether an admitted event exists for the member on
// the given calendar day.
func (r *AttendanceRepository) HasAdmittedOn(ctx context.Context, memberID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE member_id = $1 AND day = $2 AND outcome = 'admitted'
		)
	`, memberID, day.UTC().Truncate(24*time.Hour)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// ListByDay returns all events for a calendar day, newest first.
func (r *AttendanceRepository) ListByDay(ctx context.Context, day time.Time) ([]database.AttendanceEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, outcome, checked_in_at, day
		FROM attendance
		WHERE day = $1
		ORDER BY checked_in_at DESC
	`, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var ev database.AttendanceEvent
		var outcome string
		if err := rows.Scan(&ev.ID, &ev.MemberID, &outcome, &ev.CheckedInAt, &ev.Day); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		ev.Outcome = database.AttendanceOutcome(outcome)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return events, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/database"
)

// MemberRepository reads collaborator-owned member and subscription state.
// This service never writes these tables.
type MemberRepository struct {
	pool *Pool
}

// NewMemberRepository creates a new read-only member repository.
func NewMemberRepository(pool *Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// GetMember retrieves a member by id.
func (r *MemberRepository) GetMember(ctx context.Context, id uuid.UUID) (*database.Member, error) {
	var m database.Member
	err := r.pool.QueryRow(ctx, "SELECT id, active FROM members WHERE id = $1", id).
		Scan(&m.ID, &m.Active)
	if err == sql.ErrNoRows {
		return nil, database.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &m, nil
}

// GetActiveSubscription returns the member's current subscription, the one
// with the latest end date, or nil if none exists. Status filtering is the
// access validator's job; an expired subscription must surface as expired,
// not as missing.
func (r *MemberRepository) GetActiveSubscription(ctx context.Context, memberID uuid.UUID) (*database.Subscription, error) {
	var s database.Subscription
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, member_id, status, start_date, end_date
		FROM subscriptions
		WHERE member_id = $1
		ORDER BY end_date DESC
		LIMIT 1
	`, memberID).Scan(&s.ID, &s.MemberID, &status, &s.StartDate, &s.EndDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	s.Status = database.SubscriptionStatus(status)
	return &s, nil
}

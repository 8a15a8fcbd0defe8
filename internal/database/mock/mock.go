// Package mock provides in-memory implementations of the storage
// interfaces for testing. The mocks enforce the same invariants as the
// PostgreSQL repositories: one active enrollment per subject and one
// admitted attendance per member per day.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/database"
)

// BiometricStore is a mock implementation of database.BiometricWriter.
type BiometricStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*database.BiometricRecord

	// Error injection
	StoreError      error
	SearchError     error
	DeactivateError error
}

// NewBiometricStore creates an empty mock biometric store.
func NewBiometricStore() *BiometricStore {
	return &BiometricStore{
		records: make(map[uuid.UUID]*database.BiometricRecord),
	}
}

// Store deactivates the prior active record for the subject/type and
// inserts the new one, mirroring the transactional repository.
func (m *BiometricStore) Store(ctx context.Context, rec *database.BiometricRecord) (*database.BiometricRecord, error) {
	if m.StoreError != nil {
		return nil, m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true

	for _, existing := range m.records {
		if existing.SubjectID == stored.SubjectID && existing.Type == stored.Type {
			existing.Active = false
		}
	}
	m.records[stored.ID] = &stored

	out := stored
	return &out, nil
}

// Deactivate soft-deletes the active record for a subject.
func (m *BiometricStore) Deactivate(ctx context.Context, subjectID uuid.UUID, typ database.BiometricType) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, rec := range m.records {
		if rec.SubjectID == subjectID && rec.Type == typ && rec.Active {
			rec.Active = false
			found = true
		}
	}
	if !found {
		return database.ErrNoActiveBiometric
	}
	return nil
}

// GetActive retrieves the active record for a subject, nil if none.
func (m *BiometricStore) GetActive(ctx context.Context, subjectID uuid.UUID, typ database.BiometricType) (*database.BiometricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.SubjectID == subjectID && rec.Type == typ && rec.Active {
			out := *rec
			return &out, nil
		}
	}
	return nil, nil
}

// ActiveRecords returns all active enrollments.
func (m *BiometricStore) ActiveRecords(ctx context.Context) ([]database.BiometricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.BiometricRecord
	for _, rec := range m.records {
		if rec.Active {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Count returns the number of active enrollments.
func (m *BiometricStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.records {
		if rec.Active {
			count++
		}
	}
	return count, nil
}

// AllRecords returns every record including inactive history, for
// asserting the soft-delete invariant.
func (m *BiometricStore) AllRecords() []database.BiometricRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.BiometricRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out
}

// SearchNearest brute-forces cosine similarity over active records,
// breaking similarity ties on ascending record id like the repository.
func (m *BiometricStore) SearchNearest(ctx context.Context, embedding []float32, k int) ([]database.SubjectMatch, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []database.SubjectMatch
	for _, rec := range m.records {
		if !rec.Active {
			continue
		}
		matches = append(matches, database.SubjectMatch{
			RecordID:   rec.ID,
			SubjectID:  rec.SubjectID,
			Similarity: database.CosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].RecordID.String() < matches[j].RecordID.String()
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// AttendanceStore is a mock implementation of database.AttendanceStore.
type AttendanceStore struct {
	mu     sync.Mutex
	events []database.AttendanceEvent

	// Error injection
	RecordError error
	QueryError  error
}

// NewAttendanceStore creates an empty mock attendance store.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{}
}

func day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Record inserts an event, enforcing the one-admitted-per-day constraint.
func (m *AttendanceStore) Record(ctx context.Context, memberID uuid.UUID, outcome database.AttendanceOutcome, at time.Time) (*database.AttendanceEvent, error) {
	if m.RecordError != nil {
		return nil, m.RecordError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := day(at)
	if outcome == database.OutcomeAdmitted {
		for _, ev := range m.events {
			if ev.MemberID == memberID && ev.Outcome == database.OutcomeAdmitted && ev.Day.Equal(d) {
				return nil, database.ErrDuplicateAttendance
			}
		}
	}

	event := database.AttendanceEvent{
		ID:          uuid.New(),
		MemberID:    memberID,
		Outcome:     outcome,
		CheckedInAt: at.UTC(),
		Day:         d,
	}
	m.events = append(m.events, event)
	return &event, nil
}

// HasAdmittedOn reports an admitted event for the member on the day.
func (m *AttendanceStore) HasAdmittedOn(ctx context.Context, memberID uuid.UUID, dayAt time.Time) (bool, error) {
	if m.QueryError != nil {
		return false, m.QueryError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := day(dayAt)
	for _, ev := range m.events {
		if ev.MemberID == memberID && ev.Outcome == database.OutcomeAdmitted && ev.Day.Equal(d) {
			return true, nil
		}
	}
	return false, nil
}

// ListByDay returns all events for the day, newest first.
func (m *AttendanceStore) ListByDay(ctx context.Context, dayAt time.Time) ([]database.AttendanceEvent, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := day(dayAt)
	var out []database.AttendanceEvent
	for _, ev := range m.events {
		if ev.Day.Equal(d) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	return out, nil
}

// Events returns a copy of everything recorded.
func (m *AttendanceStore) Events() []database.AttendanceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AttendanceEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MemberDirectory is a mock implementation of database.MemberDirectory.
type MemberDirectory struct {
	mu            sync.RWMutex
	members       map[uuid.UUID]database.Member
	subscriptions map[uuid.UUID]database.Subscription

	// Error injection
	MemberError       error
	SubscriptionError error
}

// NewMemberDirectory creates an empty mock member directory.
func NewMemberDirectory() *MemberDirectory {
	return &MemberDirectory{
		members:       make(map[uuid.UUID]database.Member),
		subscriptions: make(map[uuid.UUID]database.Subscription),
	}
}

// AddMember registers a member in the mock directory.
func (m *MemberDirectory) AddMember(member database.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.ID] = member
}

// SetSubscription sets the member's active subscription.
func (m *MemberDirectory) SetSubscription(sub database.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.MemberID] = sub
}

// GetMember retrieves a member by id.
func (m *MemberDirectory) GetMember(ctx context.Context, id uuid.UUID) (*database.Member, error) {
	if m.MemberError != nil {
		return nil, m.MemberError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, database.ErrMemberNotFound
	}
	out := member
	return &out, nil
}

// GetActiveSubscription returns the member's current subscription or nil.
func (m *MemberDirectory) GetActiveSubscription(ctx context.Context, memberID uuid.UUID) (*database.Subscription, error) {
	if m.SubscriptionError != nil {
		return nil, m.SubscriptionError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[memberID]
	if !ok {
		return nil, nil
	}
	out := sub
	return &out, nil
}

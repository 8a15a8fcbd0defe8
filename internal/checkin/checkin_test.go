package checkin

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/access"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/database/mock"
	"github.com/gymgate/gymgate/internal/extractor"
	"github.com/gymgate/gymgate/internal/notify"
	"github.com/gymgate/gymgate/internal/recognizer"
	"github.com/gymgate/gymgate/internal/seal"
)

const testDim = 8

// stubExtractor returns a canned embedding or error.
type stubExtractor struct {
	embedding []float32
	err       error
}

func (s *stubExtractor) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

// captureNotifier records published events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) Notify(event string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

// testImage encodes a decodable JPEG large enough to pass validation.
func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func testEmbedding(hot int) []float32 {
	v := make([]float32, testDim)
	v[hot] = 1
	return v
}

type fixture struct {
	service    *Service
	biometrics *mock.BiometricStore
	members    *mock.MemberDirectory
	attendance *mock.AttendanceStore
	notifier   *captureNotifier
	extractor  *stubExtractor
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	biometrics := mock.NewBiometricStore()
	members := mock.NewMemberDirectory()
	attendance := mock.NewAttendanceStore()
	notifier := &captureNotifier{}
	ext := &stubExtractor{embedding: testEmbedding(0)}

	key := make([]byte, 32)
	for i := range key {
		key[i] = 0x42
	}
	keeper, err := seal.NewKeeper(key)
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	resolver := recognizer.NewResolver(ext, biometrics, config.RecognitionConfig{Threshold: 0.6, Dim: testDim})
	service := NewService(resolver, ext, biometrics, members, attendance, keeper, notifier, 1)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	return &fixture{
		service:    service,
		biometrics: biometrics,
		members:    members,
		attendance: attendance,
		notifier:   notifier,
		extractor:  ext,
		now:        now,
	}
}

// enrollMember sets up an enrolled, active member with a valid subscription.
func (f *fixture) enrollMember(t *testing.T) uuid.UUID {
	t.Helper()

	memberID := uuid.New()
	f.members.AddMember(database.Member{ID: memberID, Active: true})
	f.members.SetSubscription(database.Subscription{
		ID:       uuid.New(),
		MemberID: memberID,
		Status:   database.SubscriptionActive,
		EndDate:  f.now.AddDate(0, 1, 0),
	})

	_, err := f.biometrics.Store(context.Background(), &database.BiometricRecord{
		SubjectID: memberID,
		Type:      database.BiometricTypeFace,
		Embedding: testEmbedding(0),
	})
	if err != nil {
		t.Fatalf("enrolling member: %v", err)
	}
	return memberID
}

func TestCheckIn_Admitted(t *testing.T) {
	f := newFixture(t)
	memberID := f.enrollMember(t)

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateDone {
		t.Fatalf("state = %s, want %s (failure %q, denial %q)", res.State, StateDone, res.FailureReason, res.DenialReason)
	}
	if res.MemberID != memberID {
		t.Errorf("member = %s, want %s", res.MemberID, memberID)
	}
	if res.Similarity < 0.99 {
		t.Errorf("similarity = %v, want ~1.0", res.Similarity)
	}

	events := f.attendance.Events()
	if len(events) != 1 {
		t.Fatalf("got %d attendance events, want 1", len(events))
	}
	if events[0].Outcome != database.OutcomeAdmitted {
		t.Errorf("outcome = %s, want admitted", events[0].Outcome)
	}
	if !f.notifier.has(notify.EventCheckInAdmitted) {
		t.Error("admitted notification not published")
	}
}

func TestCheckIn_SecondSameDayDenied(t *testing.T) {
	f := newFixture(t)
	memberID := f.enrollMember(t)

	first := f.service.CheckIn(context.Background(), testImage(t))
	if first.State != StateDone {
		t.Fatalf("first check-in state = %s, want done", first.State)
	}

	second := f.service.CheckIn(context.Background(), testImage(t))
	if second.State != StateDenied {
		t.Fatalf("second check-in state = %s, want denied", second.State)
	}
	if second.DenialReason != access.ReasonAlreadyCheckedIn {
		t.Errorf("reason = %q, want %q", second.DenialReason, access.ReasonAlreadyCheckedIn)
	}

	// Exactly one admitted event; the denied attempt is audited.
	admitted := 0
	for _, ev := range f.attendance.Events() {
		if ev.MemberID == memberID && ev.Outcome == database.OutcomeAdmitted {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("admitted events = %d, want 1", admitted)
	}
}

func TestCheckIn_DeniedExpiredSubscription(t *testing.T) {
	f := newFixture(t)
	memberID := f.enrollMember(t)
	f.members.SetSubscription(database.Subscription{
		ID:       uuid.New(),
		MemberID: memberID,
		Status:   database.SubscriptionExpired,
		EndDate:  f.now.AddDate(0, -1, 0),
	})

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateDenied {
		t.Fatalf("state = %s, want denied", res.State)
	}
	if res.DenialReason != access.ReasonSubscriptionExpired {
		t.Errorf("reason = %q, want %q", res.DenialReason, access.ReasonSubscriptionExpired)
	}

	// The denial is audited but never recorded as admitted.
	for _, ev := range f.attendance.Events() {
		if ev.Outcome == database.OutcomeAdmitted {
			t.Error("denied check-in produced an admitted event")
		}
	}
	if !f.notifier.has(notify.EventCheckInDenied) {
		t.Error("denied notification not published")
	}
}

func TestCheckIn_DeniedAttemptDoesNotBlockLaterAdmission(t *testing.T) {
	f := newFixture(t)
	memberID := f.enrollMember(t)

	// Expired subscription: first attempt denied and audited.
	f.members.SetSubscription(database.Subscription{
		ID:       uuid.New(),
		MemberID: memberID,
		Status:   database.SubscriptionExpired,
		EndDate:  f.now.AddDate(0, -1, 0),
	})
	if res := f.service.CheckIn(context.Background(), testImage(t)); res.State != StateDenied {
		t.Fatalf("first attempt state = %s, want denied", res.State)
	}

	// Subscription renewed the same day: the audited denial must not
	// count against the daily limit.
	f.members.SetSubscription(database.Subscription{
		ID:       uuid.New(),
		MemberID: memberID,
		Status:   database.SubscriptionActive,
		EndDate:  f.now.AddDate(0, 1, 0),
	})
	if res := f.service.CheckIn(context.Background(), testImage(t)); res.State != StateDone {
		t.Fatalf("second attempt state = %s (denial %q), want done", res.State, res.DenialReason)
	}
}

func TestCheckIn_DeniedUnknownMember(t *testing.T) {
	f := newFixture(t)

	// Enrollment exists but the member record is gone from the directory.
	orphan := uuid.New()
	_, err := f.biometrics.Store(context.Background(), &database.BiometricRecord{
		SubjectID: orphan,
		Type:      database.BiometricTypeFace,
		Embedding: testEmbedding(0),
	})
	if err != nil {
		t.Fatalf("enrolling: %v", err)
	}

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateDenied {
		t.Fatalf("state = %s, want denied", res.State)
	}
	if res.DenialReason != access.ReasonInactiveClient {
		t.Errorf("reason = %q, want %q", res.DenialReason, access.ReasonInactiveClient)
	}
}

func TestCheckIn_NotRecognized(t *testing.T) {
	f := newFixture(t)
	// No enrollments at all.

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.FailureReason != FailureNotRecognized {
		t.Errorf("failure = %q, want %q", res.FailureReason, FailureNotRecognized)
	}
	if len(f.attendance.Events()) != 0 {
		t.Error("unrecognized check-in must not touch attendance")
	}
}

func TestCheckIn_ExtractionFailures(t *testing.T) {
	tests := []struct {
		code extractor.FailureCode
		want FailureReason
	}{
		{extractor.NoFaceDetected, FailureNoFace},
		{extractor.MultipleFacesDetected, FailureMultipleFaces},
		{extractor.InvalidImage, FailureInvalidImage},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			f := newFixture(t)
			f.enrollMember(t)
			f.extractor.err = &extractor.ExtractionError{Code: tc.code, Message: "extraction failed"}

			res := f.service.CheckIn(context.Background(), testImage(t))

			if res.State != StateFailed {
				t.Fatalf("state = %s, want failed", res.State)
			}
			if res.FailureReason != tc.want {
				t.Errorf("failure = %q, want %q", res.FailureReason, tc.want)
			}
			if len(f.attendance.Events()) != 0 {
				t.Error("extraction failure must not touch attendance")
			}
		})
	}
}

func TestCheckIn_UndecodableImage(t *testing.T) {
	f := newFixture(t)
	f.enrollMember(t)

	res := f.service.CheckIn(context.Background(), []byte("not an image"))

	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.FailureReason != FailureInvalidImage {
		t.Errorf("failure = %q, want %q", res.FailureReason, FailureInvalidImage)
	}
}

func TestCheckIn_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.enrollMember(t)
	f.members.MemberError = errors.New("connection refused")

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.FailureReason != FailureStorage {
		t.Errorf("failure = %q, want %q", res.FailureReason, FailureStorage)
	}
}

func TestCheckIn_DuplicateRaceSurfacesAsDenial(t *testing.T) {
	// A concurrent check-in can win between the validation read and the
	// write; the unique constraint violation must resolve as a denial.
	f := newFixture(t)
	f.enrollMember(t)
	f.attendance.RecordError = database.ErrDuplicateAttendance

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateDenied {
		t.Fatalf("state = %s, want denied", res.State)
	}
	if res.DenialReason != access.ReasonAlreadyCheckedIn {
		t.Errorf("reason = %q, want %q", res.DenialReason, access.ReasonAlreadyCheckedIn)
	}
}

func TestCheckIn_DimensionMismatchIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.enrollMember(t)
	f.extractor.embedding = make([]float32, testDim+1)
	f.extractor.embedding[0] = 1

	res := f.service.CheckIn(context.Background(), testImage(t))

	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.FailureReason != FailureConfiguration {
		t.Errorf("failure = %q, want %q", res.FailureReason, FailureConfiguration)
	}
}

func TestRegister_StoresSealedThumbnail(t *testing.T) {
	f := newFixture(t)
	subjectID := uuid.New()

	result, err := f.service.Register(context.Background(), subjectID, testImage(t))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.SubjectID != subjectID {
		t.Errorf("subject = %s, want %s", result.SubjectID, subjectID)
	}

	rec, err := f.biometrics.GetActive(context.Background(), subjectID, database.BiometricTypeFace)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if rec == nil {
		t.Fatal("no active enrollment stored")
	}
	if len(rec.Thumbnail) == 0 || len(rec.ThumbnailNonce) == 0 {
		t.Fatal("thumbnail or nonce missing")
	}
	if !f.notifier.has(notify.EventBiometricRegistered) {
		t.Error("registration notification not published")
	}

	// The stored thumbnail must be ciphertext the keeper can open.
	key := make([]byte, 32)
	for i := range key {
		key[i] = 0x42
	}
	keeper, err := seal.NewKeeper(key)
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}
	thumb, err := keeper.Open(rec.Thumbnail, rec.ThumbnailNonce)
	if err != nil {
		t.Fatalf("opening stored thumbnail: %v", err)
	}
	if len(thumb) == 0 {
		t.Error("opened thumbnail is empty")
	}
}

func TestRegister_ReplacesPreviousEnrollment(t *testing.T) {
	f := newFixture(t)
	subjectID := uuid.New()

	first, err := f.service.Register(context.Background(), subjectID, testImage(t))
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := f.service.Register(context.Background(), subjectID, testImage(t))
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}

	active := 0
	for _, rec := range f.biometrics.AllRecords() {
		if rec.SubjectID != subjectID {
			continue
		}
		if rec.Active {
			active++
			if rec.ID != second.BiometricID {
				t.Errorf("active record is %s, want the newest %s", rec.ID, second.BiometricID)
			}
		} else if rec.ID != first.BiometricID {
			t.Errorf("inactive record is %s, want the replaced %s", rec.ID, first.BiometricID)
		}
	}
	if active != 1 {
		t.Errorf("active enrollments = %d, want exactly 1", active)
	}
}

func TestRegister_NormalizesEmbedding(t *testing.T) {
	f := newFixture(t)
	f.extractor.embedding = []float32{3, 4, 0, 0, 0, 0, 0, 0}

	subjectID := uuid.New()
	if _, err := f.service.Register(context.Background(), subjectID, testImage(t)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := f.biometrics.GetActive(context.Background(), subjectID, database.BiometricTypeFace)
	if err != nil || rec == nil {
		t.Fatalf("GetActive: rec=%v err=%v", rec, err)
	}

	var norm float64
	for _, x := range rec.Embedding {
		norm += float64(x) * float64(x)
	}
	if norm < 0.999 || norm > 1.001 {
		t.Errorf("stored embedding norm^2 = %v, want 1", norm)
	}
}

func TestRegister_ExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = &extractor.ExtractionError{Code: extractor.NoFaceDetected, Message: "no face"}

	_, err := f.service.Register(context.Background(), uuid.New(), testImage(t))
	var extErr *extractor.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("Register = %v, want *ExtractionError", err)
	}
	if n, _ := f.biometrics.Count(context.Background()); n != 0 {
		t.Error("failed registration must not store an enrollment")
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	subjectID := uuid.New()

	if _, err := f.service.Register(context.Background(), subjectID, testImage(t)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.service.Remove(context.Background(), subjectID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	rec, err := f.biometrics.GetActive(context.Background(), subjectID, database.BiometricTypeFace)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if rec != nil {
		t.Error("enrollment still active after Remove")
	}
	if !f.notifier.has(notify.EventBiometricRemoved) {
		t.Error("removal notification not published")
	}
}

func TestRemove_NoActiveEnrollment(t *testing.T) {
	f := newFixture(t)

	err := f.service.Remove(context.Background(), uuid.New())
	if !errors.Is(err, database.ErrNoActiveBiometric) {
		t.Errorf("Remove = %v, want ErrNoActiveBiometric", err)
	}
}

func TestAttendanceToday(t *testing.T) {
	f := newFixture(t)
	memberID := f.enrollMember(t)

	if res := f.service.CheckIn(context.Background(), testImage(t)); res.State != StateDone {
		t.Fatalf("check-in state = %s, want done", res.State)
	}

	events, err := f.service.AttendanceToday(context.Background())
	if err != nil {
		t.Fatalf("AttendanceToday: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].MemberID != memberID {
		t.Errorf("event member = %s, want %s", events[0].MemberID, memberID)
	}
}

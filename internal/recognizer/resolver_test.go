package recognizer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/database/mock"
	"github.com/gymgate/gymgate/internal/extractor"
)

// stubExtractor returns a canned embedding or error.
type stubExtractor struct {
	embedding []float32
	err       error
	calls     int
}

func (s *stubExtractor) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

// testEmbedding builds a dim-length vector with one hot dimension.
func testEmbedding(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func testConfig() config.RecognitionConfig {
	return config.RecognitionConfig{Threshold: 0.6, Dim: 8}
}

func enroll(t *testing.T, store *mock.BiometricStore, subjectID uuid.UUID, embedding []float32) {
	t.Helper()
	_, err := store.Store(context.Background(), &database.BiometricRecord{
		SubjectID: subjectID,
		Type:      database.BiometricTypeFace,
		Embedding: embedding,
	})
	if err != nil {
		t.Fatalf("enrolling: %v", err)
	}
}

func TestResolve_Match(t *testing.T) {
	store := mock.NewBiometricStore()
	subject := uuid.New()
	enroll(t, store, subject, testEmbedding(8, 0))

	ext := &stubExtractor{embedding: testEmbedding(8, 0)}
	resolver := NewResolver(ext, store, testConfig())

	res, err := resolver.Resolve(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.SubjectID != subject {
		t.Errorf("subject = %s, want %s", res.SubjectID, subject)
	}
	if res.Similarity < 0.99 {
		t.Errorf("similarity = %v, want ~1.0", res.Similarity)
	}
}

func TestResolve_BelowThreshold(t *testing.T) {
	store := mock.NewBiometricStore()
	// Orthogonal enrollment: similarity 0, well below 0.6.
	enroll(t, store, uuid.New(), testEmbedding(8, 1))

	ext := &stubExtractor{embedding: testEmbedding(8, 0)}
	resolver := NewResolver(ext, store, testConfig())

	res, err := resolver.Resolve(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Matched {
		t.Errorf("similarity below threshold should not match, got subject %s", res.SubjectID)
	}
}

func TestResolve_JustBelowThreshold(t *testing.T) {
	store := mock.NewBiometricStore()
	// cos(a, query) = 0.55 by construction: a = 0.55*q + sqrt(1-0.55^2)*orthogonal.
	a := make([]float32, 8)
	a[0] = 0.55
	a[1] = 0.8351646 // sqrt(1 - 0.55^2)
	enroll(t, store, uuid.New(), a)

	ext := &stubExtractor{embedding: testEmbedding(8, 0)}
	resolver := NewResolver(ext, store, testConfig())

	res, err := resolver.Resolve(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Matched {
		t.Errorf("similarity 0.55 must not clear threshold 0.6")
	}
}

func TestResolve_EmptyStore(t *testing.T) {
	resolver := NewResolver(&stubExtractor{embedding: testEmbedding(8, 0)}, mock.NewBiometricStore(), testConfig())

	res, err := resolver.Resolve(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Matched {
		t.Error("empty store should never match")
	}
}

func TestResolve_ExtractionFailureShortCircuits(t *testing.T) {
	store := mock.NewBiometricStore()
	store.SearchError = errors.New("search must not run")

	extErr := &extractor.ExtractionError{Code: extractor.NoFaceDetected, Message: "no face"}
	resolver := NewResolver(&stubExtractor{err: extErr}, store, testConfig())

	_, err := resolver.Resolve(context.Background(), []byte("image"))
	var got *extractor.ExtractionError
	if !errors.As(err, &got) {
		t.Fatalf("Resolve = %v, want the extraction error", err)
	}
	if got.Code != extractor.NoFaceDetected {
		t.Errorf("code = %q, want %q", got.Code, extractor.NoFaceDetected)
	}
}

func TestResolve_DimensionMismatch(t *testing.T) {
	ext := &stubExtractor{embedding: testEmbedding(4, 0)} // wrong length
	resolver := NewResolver(ext, mock.NewBiometricStore(), testConfig())

	_, err := resolver.Resolve(context.Background(), []byte("image"))
	var dimErr *database.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("Resolve = %v, want *DimensionError", err)
	}
	if dimErr.Got != 4 || dimErr.Want != 8 {
		t.Errorf("DimensionError = got %d want %d, expected got 4 want 8", dimErr.Got, dimErr.Want)
	}
}

func TestResolve_TieBreaksOnSmallestRecordID(t *testing.T) {
	store := mock.NewBiometricStore()
	embedding := testEmbedding(8, 0)

	subjectA := uuid.New()
	subjectB := uuid.New()
	enroll(t, store, subjectA, embedding)
	enroll(t, store, subjectB, embedding)

	var wantSubject uuid.UUID
	wantID := ""
	for _, rec := range store.AllRecords() {
		if wantID == "" || rec.ID.String() < wantID {
			wantID = rec.ID.String()
			wantSubject = rec.SubjectID
		}
	}

	resolver := NewResolver(&stubExtractor{embedding: embedding}, store, testConfig())

	for range 5 {
		res, err := resolver.Resolve(context.Background(), []byte("image"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !res.Matched {
			t.Fatal("expected a match")
		}
		if res.SubjectID != wantSubject {
			t.Fatalf("tie resolved to %s, want %s", res.SubjectID, wantSubject)
		}
	}
}

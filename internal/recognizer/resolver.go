// Package recognizer resolves a face image to a subject identity via the
// embedding extractor and nearest-neighbor search over enrollments.
package recognizer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/extractor"
)

// Resolution is the outcome of an identity lookup. Matched is false when
// no enrollment clears the similarity threshold.
type Resolution struct {
	Matched    bool
	SubjectID  uuid.UUID
	Similarity float64
}

// Resolver turns an image into a subject identity. Threshold and dimension
// come from explicit configuration, never from ambient state.
type Resolver struct {
	extractor extractor.Extractor
	store     database.BiometricReader
	cfg       config.RecognitionConfig
}

// NewResolver creates a resolver with the given collaborators and settings.
func NewResolver(ext extractor.Extractor, store database.BiometricReader, cfg config.RecognitionConfig) *Resolver {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if cfg.Dim <= 0 {
		cfg.Dim = config.EmbeddingDim
	}
	return &Resolver{extractor: ext, store: store, cfg: cfg}
}

// Resolve extracts an embedding from the image and searches for the best
// matching enrollment. Extraction failures return before any store access.
// A best similarity below the threshold resolves to no match; ties on the
// top similarity break on the smallest record id inside the store.
func (r *Resolver) Resolve(ctx context.Context, imageData []byte) (*Resolution, error) {
	embedding, err := r.extractor.Extract(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if len(embedding) != r.cfg.Dim {
		return nil, &database.DimensionError{Got: len(embedding), Want: r.cfg.Dim}
	}

	matches, err := r.store.SearchNearest(ctx, database.Normalize(embedding), 1)
	if err != nil {
		return nil, fmt.Errorf("searching enrollments: %w", err)
	}

	if len(matches) == 0 || matches[0].Similarity < r.cfg.Threshold {
		return &Resolution{Matched: false}, nil
	}

	best := matches[0]
	return &Resolution{
		Matched:    true,
		SubjectID:  best.SubjectID,
		Similarity: best.Similarity,
	}, nil
}

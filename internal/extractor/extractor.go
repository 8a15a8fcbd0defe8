// Package extractor talks to the face embedding service. The service owns
// detection, alignment, and the embedding model; this package only carries
// its contract: a normalized vector or a structured failure.
package extractor

import "context"

// FailureCode classifies extraction failures.
type FailureCode string

const (
	NoFaceDetected        FailureCode = "no_face_detected"
	MultipleFacesDetected FailureCode = "multiple_faces_detected"
	InvalidImage          FailureCode = "invalid_image"
)

// ExtractionError is a structured extraction failure. Anything the
// extractor reports beyond these codes collapses to InvalidImage.
type ExtractionError struct {
	Code    FailureCode
	Message string
}

func (e *ExtractionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Extractor computes a face embedding for a decoded image. Implementations
// must return an L2-normalized vector of the configured dimension, or an
// *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]float32, error)
}

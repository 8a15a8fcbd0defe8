package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultExtractorURL   = "http://localhost:8000"
	defaultExtractorModel = "buffalo_l"
)

// Client computes face embeddings using the extractor service.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a new extractor client. The timeout bounds each request;
// the caller's context can cut it shorter.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	if model == "" {
		model = defaultExtractorModel
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// extractResponse represents a successful response from the extractor.
type extractResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// extractFailure represents a structured failure response.
type extractFailure struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Extract posts the image to the extractor and returns the embedding.
// Structured failures come back as *ExtractionError; context cancellation
// and deadline errors pass through untouched so callers can distinguish
// timeouts from bad input.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "face.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract/face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &ExtractionError{Code: InvalidImage, Message: "extractor unreachable"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExtractionError{Code: InvalidImage, Message: "reading extractor response"}
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, parseFailure(body)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionError{
			Code:    InvalidImage,
			Message: fmt.Sprintf("extractor status %d", resp.StatusCode),
		}
	}

	var extResp extractResponse
	if err := json.Unmarshal(body, &extResp); err != nil {
		return nil, &ExtractionError{Code: InvalidImage, Message: "malformed extractor response"}
	}
	if len(extResp.Embedding) == 0 {
		return nil, &ExtractionError{Code: InvalidImage, Message: "empty embedding returned"}
	}

	return extResp.Embedding, nil
}

// parseFailure maps the extractor's failure payload to an ExtractionError.
// Unknown codes collapse to InvalidImage.
func parseFailure(body []byte) *ExtractionError {
	var f extractFailure
	if err := json.Unmarshal(body, &f); err != nil {
		return &ExtractionError{Code: InvalidImage, Message: "malformed failure response"}
	}
	switch FailureCode(f.ErrorCode) {
	case NoFaceDetected, MultipleFacesDetected, InvalidImage:
		return &ExtractionError{Code: FailureCode(f.ErrorCode), Message: f.Message}
	default:
		return &ExtractionError{Code: InvalidImage, Message: f.Message}
	}
}

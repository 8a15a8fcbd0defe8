package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EmbeddingDim is the fixed dimension of face embeddings. Vectors of any
// other length are rejected before they reach storage.
const EmbeddingDim = 512

type Config struct {
	Extractor   ExtractorConfig
	Recognition RecognitionConfig
	Database    DatabaseConfig
	Biometric   BiometricConfig
	Notifier    NotifierConfig
	Web         WebConfig
}

type ExtractorConfig struct {
	URL     string        // embedding extractor base URL (defaults to http://localhost:8000)
	Model   string        // model name passed to the extractor (e.g. buffalo_l)
	Timeout time.Duration // per-request bound; exceeded calls surface as timeouts
}

type RecognitionConfig struct {
	Threshold float64 // minimum cosine similarity for a match (0.0-1.0)
	Dim       int     // embedding dimension, must match the extractor model
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL (pgvector extension required)
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the biometric HNSW index (optional)
	MaxRetries    int    // Bounded retries for transient storage errors (default 3)
}

type BiometricConfig struct {
	// EncryptionKey protects stored thumbnails at rest. Base64-encoded,
	// must decode to exactly 32 bytes. Required for registration.
	EncryptionKey string
}

type NotifierConfig struct {
	WebhookURL string // check-in event webhook, empty disables notifications
}

type WebConfig struct {
	APIToken string // bearer token for the API, empty disables auth (dev only)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Extractor: ExtractorConfig{
			URL:     os.Getenv("EXTRACTOR_URL"),
			Model:   os.Getenv("EXTRACTOR_MODEL"),
			Timeout: envDuration("EXTRACTOR_TIMEOUT", 10*time.Second),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("RECOGNITION_THRESHOLD", 0.6),
			Dim:       envInt("EMBEDDING_DIM", EmbeddingDim),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
			MaxRetries:    envInt("DATABASE_MAX_RETRIES", 3),
		},
		Biometric: BiometricConfig{
			EncryptionKey: os.Getenv("BIOMETRIC_ENCRYPTION_KEY"),
		},
		Notifier: NotifierConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Web: WebConfig{
			APIToken: os.Getenv("API_TOKEN"),
		},
	}
}

// DecodeEncryptionKey decodes and validates the configured biometric key.
// The key is never generated ad hoc; a missing or malformed key is a
// configuration error surfaced at startup.
func (c *BiometricConfig) DecodeEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, errors.New("BIOMETRIC_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding BIOMETRIC_ENCRYPTION_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("BIOMETRIC_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

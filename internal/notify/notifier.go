// Package notify delivers fire-and-forget event notifications. Delivery
// failures are logged and swallowed; a notification can never block or
// change the outcome of a check-in.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Event names published by the check-in flow.
const (
	EventCheckInAdmitted     = "checkin_admitted"
	EventCheckInDenied       = "checkin_denied"
	EventBiometricRegistered = "biometric_registered"
	EventBiometricRemoved    = "biometric_removed"
)

// Notifier publishes an event with a payload. Implementations must not
// block the caller and must not return delivery errors.
type Notifier interface {
	Notify(event string, payload map[string]any)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) Notify(string, map[string]any) {}

// Webhook posts events as JSON to a configured URL in the background.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. An empty URL yields a Nop.
func NewWebhook(url string) Notifier {
	if url == "" {
		return Nop{}
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify delivers the event asynchronously.
func (w *Webhook) Notify(event string, payload map[string]any) {
	body := map[string]any{
		"event":   event,
		"message": EventMessage(event),
		"sent_at": time.Now().UTC().Format(time.RFC3339),
		"payload": payload,
	}

	go func() {
		data, err := json.Marshal(body)
		if err != nil {
			log.Printf("notify: marshaling %s event: %v", event, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
		if err != nil {
			log.Printf("notify: building %s request: %v", event, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			log.Printf("notify: delivering %s event: %v", event, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("notify: webhook returned %d for %s event", resp.StatusCode, event)
		}
	}()
}

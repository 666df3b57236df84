package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/logging"
)

const webhookBodyLimit = 500

// WebhookNotifier POSTs a JSON event to an external automation endpoint
// whenever a lead is classified as interested.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier builds a notifier for the given endpoint URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      webhookData `json:"data"`
}

type webhookData struct {
	ID           string `json:"id"`
	From         string `json:"from"`
	Subject      string `json:"subject"`
	AccountEmail string `json:"accountEmail"`
	Category     string `json:"category"`
	Body         string `json:"body"`
}

// Notify sends one "email.interested" event. Non-2xx responses are errors.
func (w *WebhookNotifier) Notify(ctx context.Context, msg *email.Message) error {
	body := logging.BoundAndClean(msg.Body, webhookBodyLimit)
	event := webhookEvent{
		Event:     "email.interested",
		Timestamp: time.Now().UTC(),
		Data: webhookData{
			ID:           msg.ID,
			From:         msg.From,
			Subject:      msg.Subject,
			AccountEmail: msg.Account,
			Category:     string(msg.Category),
			Body:         body,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding webhook event for %s: %w", msg.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request for %s: %w", msg.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook for %s: %w", msg.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d for %s", resp.StatusCode, msg.ID)
	}
	return nil
}

package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// Webhook event names.
const (
	EventLoudDetected  = "loud_detected"
	EventLoudRecovered = "loud_recovered"
	EventTest          = "test"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event           string  `json:"event"`
	Station         string  `json:"station,omitempty"`
	AlertDurationMs int64   `json:"alert_duration_ms,omitempty"`
	Score           float64 `json:"score,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	Message         string  `json:"message,omitempty"`
	Timestamp       string  `json:"timestamp"`
}

// SendLoudWebhook notifies the configured webhook that a loud environment was confirmed.
func SendLoudWebhook(webhookURL, stationName string, score, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     EventLoudDetected,
		Station:   stationName,
		Score:     score,
		Threshold: threshold,
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that the loud alert cleared.
func SendRecoveryWebhook(webhookURL, stationName string, durationMs int64, score, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:           EventLoudRecovered,
		Station:         stationName,
		AlertDurationMs: durationMs,
		Score:           score,
		Threshold:       threshold,
		Timestamp:       timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     EventTest,
		Station:   stationName,
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

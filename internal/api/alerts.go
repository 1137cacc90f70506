package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/patchmix/patchmix/internal/config"
	"github.com/patchmix/patchmix/internal/events"
	"github.com/patchmix/patchmix/internal/log"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected = "mqtt_disconnected"
	AlertDecodeFailed     = "decode_failed"
	AlertSystemError      = "system_error"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Service   string                 `json:"service"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL string
	Cooldown   time.Duration // minimum gap between alerts for one event type
}

var (
	alertConfig = &AlertConfig{
		Cooldown: 30 * time.Second,
	}
	alertMu       sync.Mutex
	lastAlertSent = map[string]time.Time{}
)

// InitAlerts initializes the alert system from environment variables.
func InitAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()

	alertConfig.WebhookURL = os.Getenv("PATCHMIX_ALERT_WEBHOOK_URL")
	alertConfig.Cooldown = config.ParseDuration("PATCHMIX_ALERT_COOLDOWN", 30*time.Second)

	if alertConfig.WebhookURL != "" {
		logger := log.WithComponent("alerts")
		logger.Info().
			Dur("cooldown", alertConfig.Cooldown).
			Msg("alerts enabled: webhook URL configured")
	}
}

// GetAlertWebhookURL returns the configured webhook URL (for testing).
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort,
// non-blocking). Repeated alerts for the same event type within the
// cooldown window are suppressed.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertConfig.WebhookURL
	if last, ok := lastAlertSent[event]; ok && time.Since(last) < alertConfig.Cooldown {
		alertMu.Unlock()
		return
	}
	lastAlertSent[event] = time.Now()
	alertMu.Unlock()

	if webhookURL == "" {
		logger := log.WithComponent("alerts")
		logger.Warn().
			Str("alert", event).
			Str("severity", severity).
			Str("msg", message).
			Msg("alert (no webhook configured)")
		return
	}

	payload := AlertPayload{
		Service:   "renderd",
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	// Send asynchronously to avoid blocking
	go sendWebhook(webhookURL, payload)
}

// sendWebhook performs the actual HTTP POST (runs in goroutine).
func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	logger := log.WithComponent("alerts")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn().Err(err).Msg("alert webhook post failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn().Int("status", resp.StatusCode).Msg("alert webhook rejected")
	}
}

// StartAlertForwarder subscribes to the event feed and raises a
// webhook alert for every error-level event until ctx is cancelled.
func StartAlertForwarder(ctx context.Context) {
	sub := events.Subscribe()
	go func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				if e.Level != "error" {
					continue
				}
				alertType := AlertSystemError
				if e.Name == "decode.error" {
					alertType = AlertDecodeFailed
				}
				SendAlert(alertType, SeverityWarning, e.Name, e.Fields)
			}
		}
	}()
}

package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// Webhook delivery settings. Transient failures are retried with backoff
// before the delivery is reported failed.
const (
	webhookTimeout     = 10 * time.Second
	webhookAttempts    = 3
	webhookInitialWait = 1 * time.Second
	webhookMaxWait     = 10 * time.Second
)

// SendFailureWebhook sends a POST request to the webhook URL when a capture
// session fails.
func SendFailureWebhook(webhookURL string, modality types.Modality, info *types.ErrorInfo) error {
	return sendWebhook(webhookURL, map[string]any{
		"event":     "session_failed",
		"modality":  modality,
		"kind":      info.Kind,
		"message":   info.Message,
		"detail":    info.Detail,
		"timestamp": util.RFC3339Now(),
	})
}

// SendArtifactWebhook sends a POST request to the webhook URL when an
// artifact lands in the spool.
func SendArtifactWebhook(webhookURL string, info *types.ArtifactInfo) error {
	return sendWebhook(webhookURL, map[string]any{
		"event":       "artifact_stored",
		"name":        info.Name,
		"mime_type":   info.MimeType,
		"size_bytes":  info.SizeBytes,
		"stored_path": info.StoredPath,
		"timestamp":   util.RFC3339Now(),
	})
}

// SendTestWebhook sends a test POST request to verify webhook configuration.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, map[string]any{
		"event":     "test",
		"message":   "This is a test notification from the Murmur capture agent",
		"timestamp": util.RFC3339Now(),
	})
}

// sendWebhook sends a POST request with JSON payload to the webhook URL.
func sendWebhook(webhookURL string, payload map[string]any) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	backoff := util.NewBackoff(webhookInitialWait, webhookMaxWait)

	var lastErr error
	for attempt := 0; attempt < webhookAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff.Next())
		}
		lastErr = postWebhook(client, webhookURL, jsonData)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func postWebhook(client *http.Client, webhookURL string, jsonData []byte) error {
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

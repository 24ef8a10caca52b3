package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurhq/murmur-capture/internal/config"
	"github.com/murmurhq/murmur-capture/internal/types"
)

func newNotifierConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.New(filepath.Join(t.TempDir(), "config.json"))
}

func TestNotifierSessionFailedDeliversToConfiguredChannels(t *testing.T) {
	rec, srv := newWebhookRecorder(t)
	logPath := filepath.Join(t.TempDir(), "events.jsonl")

	cfg := newNotifierConfig(t)
	require.NoError(t, cfg.SetWebhookURL(srv.URL))
	require.NoError(t, cfg.SetLogPath(logPath))

	n := NewNotifier(cfg)
	info := &types.ErrorInfo{Kind: types.ErrorDeviceNotFound, Message: types.ErrorDeviceNotFound.Message()}
	n.SessionFailed(types.ModalityVideo, info)

	require.Eventually(t, func() bool {
		return rec.requestCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "session_failed", rec.payload(t, 0)["event"])

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "session_failed")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifierArtifactStoredSkipsEmail(t *testing.T) {
	rec, srv := newWebhookRecorder(t)

	cfg := newNotifierConfig(t)
	require.NoError(t, cfg.SetWebhookURL(srv.URL))
	// Email fully configured; artifact events must not use it. An SMTP dial
	// attempt would fail loudly, but the real check is the webhook payload.
	require.NoError(t, cfg.SetEmailConfig("smtp.invalid", 587, "", "agent@example.com", "secret", "ops@example.com"))

	n := NewNotifier(cfg)
	n.ArtifactStored(&types.ArtifactInfo{Name: "photo-1.jpg", MimeType: "image/jpeg", SizeBytes: 512})

	require.Eventually(t, func() bool {
		return rec.requestCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "artifact_stored", rec.payload(t, 0)["event"])
}

func TestNotifierIgnoresNilInfo(t *testing.T) {
	n := NewNotifier(newNotifierConfig(t))
	n.SessionFailed(types.ModalityAudio, nil)
	n.ArtifactStored(nil)
}

func TestNotifierQuietWhenNothingConfigured(t *testing.T) {
	n := NewNotifier(newNotifierConfig(t))
	n.SessionFailed(types.ModalityAudio, &types.ErrorInfo{Kind: types.ErrorUnknown, Message: "boom"})
	n.ArtifactStored(&types.ArtifactInfo{Name: "a.webm"})
}

func TestNotifierTestTriggers(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	cfg := newNotifierConfig(t)
	require.NoError(t, cfg.SetLogPath(logPath))

	triggers := NewNotifier(cfg).TestTriggers()
	require.Contains(t, triggers, "webhook")
	require.Contains(t, triggers, "email")
	require.Contains(t, triggers, "log")

	// Log is configured and writable; webhook and email are not.
	assert.NoError(t, triggers["log"]())
	assert.Error(t, triggers["webhook"]())
	assert.Error(t, triggers["email"]())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"test"`)
}

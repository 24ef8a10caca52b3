package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurhq/murmur-capture/internal/types"
)

func TestNewDefaults(t *testing.T) {
	cfg := New("/tmp/does-not-matter.json")

	assert.Equal(t, DefaultWebPort, cfg.WebPort())
	assert.Equal(t, DefaultWebUsername, cfg.WebUser())
	assert.Equal(t, DefaultWebPassword, cfg.WebPassword())
	assert.Equal(t, DefaultBackend, cfg.Backend())
	assert.Equal(t, DefaultPhotoQuality, cfg.PhotoQuality())
	assert.Equal(t, DefaultStorePath, cfg.StorePath())
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays())
	assert.Empty(t, cfg.WebhookURL())
	assert.Empty(t, cfg.AudioFormats())
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)

	require.NoError(t, cfg.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, DefaultWebPort, reloaded.WebPort())
	assert.Equal(t, DefaultStorePath, reloaded.StorePath())
}

func TestLoadMergesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":{"port":9090},"capture":{"backend":"sim"}}`), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	assert.Equal(t, 9090, cfg.WebPort())
	assert.Equal(t, "sim", cfg.Backend())

	// Fields the file omits keep their defaults.
	assert.Equal(t, DefaultWebUsername, cfg.WebUser())
	assert.Equal(t, DefaultPhotoQuality, cfg.PhotoQuality())
	assert.Equal(t, DefaultStorePath, cfg.StorePath())
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	cfg := New(path)
	err := cfg.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSettersPersistAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)

	require.NoError(t, cfg.SetCaptureDevices("hw:1,0", "/dev/video2"))
	require.NoError(t, cfg.SetResolution(types.ResolutionHint{IdealWidth: 1920, IdealHeight: 1080}))
	require.NoError(t, cfg.SetPhotoQuality(75))
	require.NoError(t, cfg.SetFormats([]string{"audio/webm;codecs=opus"}, []string{"video/webm"}))
	require.NoError(t, cfg.SetRetentionDays(7))
	require.NoError(t, cfg.SetWebhookURL("https://hooks.example.com/capture"))
	require.NoError(t, cfg.SetLogPath("/var/log/capture-events.jsonl"))
	require.NoError(t, cfg.SetEmailConfig("smtp.example.com", 465, "Agent", "agent@example.com", "secret", "ops@example.com"))

	fresh := New(path)
	require.NoError(t, fresh.Load())

	assert.Equal(t, "hw:1,0", fresh.AudioDevice())
	assert.Equal(t, "/dev/video2", fresh.VideoDevice())
	assert.Equal(t, types.ResolutionHint{IdealWidth: 1920, IdealHeight: 1080}, fresh.Resolution())
	assert.Equal(t, 75, fresh.PhotoQuality())
	assert.Equal(t, []string{"audio/webm;codecs=opus"}, fresh.AudioFormats())
	assert.Equal(t, []string{"video/webm"}, fresh.VideoFormats())
	assert.Equal(t, 7, fresh.RetentionDays())
	assert.Equal(t, "https://hooks.example.com/capture", fresh.WebhookURL())
	assert.Equal(t, "/var/log/capture-events.jsonl", fresh.LogPath())

	snap := fresh.Snapshot()
	assert.Equal(t, "smtp.example.com", snap.EmailSMTPHost)
	assert.Equal(t, 465, snap.EmailSMTPPort)
	assert.Equal(t, "Agent", snap.EmailFromName)
	assert.Equal(t, "agent@example.com", snap.EmailUsername)
	assert.Equal(t, "secret", snap.EmailPassword)
	assert.Equal(t, "ops@example.com", snap.EmailRecipients)
}

func TestSnapshotAppliesDefaults(t *testing.T) {
	snap := (&Config{}).Snapshot()

	assert.Equal(t, DefaultBackend, snap.Backend)
	assert.Equal(t, DefaultPhotoQuality, snap.PhotoQuality)
	assert.Equal(t, DefaultStorePath, snap.StorePath)
	assert.Equal(t, DefaultEmailSMTPPort, snap.EmailSMTPPort)
	assert.Equal(t, DefaultEmailFromName, snap.EmailFromName)
}

func TestSnapshotChannelPredicates(t *testing.T) {
	snap := Snapshot{}
	assert.False(t, snap.HasWebhook())
	assert.False(t, snap.HasEmail())
	assert.False(t, snap.HasLogPath())

	snap.WebhookURL = "https://hooks.example.com"
	assert.True(t, snap.HasWebhook())

	snap.LogPath = "/var/log/events.jsonl"
	assert.True(t, snap.HasLogPath())

	// Email needs both a host and recipients.
	snap.EmailSMTPHost = "smtp.example.com"
	assert.False(t, snap.HasEmail())
	snap.EmailRecipients = "ops@example.com"
	assert.True(t, snap.HasEmail())
}

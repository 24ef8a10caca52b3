package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurhq/murmur-capture/internal/types"
)

type webhookRecorder struct {
	mu           sync.Mutex
	bodies       [][]byte
	contentTypes []string
	statuses     []int
}

// newWebhookRecorder captures every POST and answers with the scripted
// statuses in order, then 204 once the script runs out.
func newWebhookRecorder(t *testing.T, statuses ...int) (*webhookRecorder, *httptest.Server) {
	t.Helper()
	rec := &webhookRecorder{statuses: statuses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.contentTypes = append(rec.contentTypes, r.Header.Get("Content-Type"))
		status := http.StatusNoContent
		if len(rec.statuses) > 0 {
			status = rec.statuses[0]
			rec.statuses = rec.statuses[1:]
		}
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *webhookRecorder) requestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *webhookRecorder) payload(t *testing.T, i int) map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Greater(t, len(r.bodies), i)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(r.bodies[i], &payload))
	return payload
}

func TestSendFailureWebhookPayload(t *testing.T) {
	rec, srv := newWebhookRecorder(t)

	info := &types.ErrorInfo{
		Kind:    types.ErrorPermissionDenied,
		Message: types.ErrorPermissionDenied.Message(),
		Detail:  "arecord: Permission denied",
	}
	require.NoError(t, SendFailureWebhook(srv.URL, types.ModalityAudio, info))

	require.Equal(t, 1, rec.requestCount())
	assert.Equal(t, "application/json", rec.contentTypes[0])

	payload := rec.payload(t, 0)
	assert.Equal(t, "session_failed", payload["event"])
	assert.Equal(t, "audio", payload["modality"])
	assert.Equal(t, "permission_denied", payload["kind"])
	assert.Equal(t, "arecord: Permission denied", payload["detail"])

	stamp, ok := payload["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, stamp)
	assert.NoError(t, err)
}

func TestSendArtifactWebhookPayload(t *testing.T) {
	rec, srv := newWebhookRecorder(t)

	info := &types.ArtifactInfo{
		Name:       "audio-1748779200000.webm",
		MimeType:   "audio/webm",
		SizeBytes:  2048,
		StoredPath: "/var/spool/audio-1748779200000.webm",
	}
	require.NoError(t, SendArtifactWebhook(srv.URL, info))

	payload := rec.payload(t, 0)
	assert.Equal(t, "artifact_stored", payload["event"])
	assert.Equal(t, "audio-1748779200000.webm", payload["name"])
	assert.Equal(t, "audio/webm", payload["mime_type"])
	assert.Equal(t, float64(2048), payload["size_bytes"])
	assert.Equal(t, "/var/spool/audio-1748779200000.webm", payload["stored_path"])
}

func TestSendWebhookSkipsWhenUnconfigured(t *testing.T) {
	info := &types.ErrorInfo{Kind: types.ErrorUnknown, Message: "boom"}
	assert.NoError(t, SendFailureWebhook("", types.ModalityAudio, info))
}

func TestSendTestWebhookRequiresURL(t *testing.T) {
	assert.EqualError(t, SendTestWebhook(""), "webhook URL not configured")
}

func TestSendWebhookRetriesTransientFailure(t *testing.T) {
	rec, srv := newWebhookRecorder(t, http.StatusInternalServerError)

	require.NoError(t, SendTestWebhook(srv.URL))
	assert.Equal(t, 2, rec.requestCount())

	payload := rec.payload(t, 1)
	assert.Equal(t, "test", payload["event"])
}

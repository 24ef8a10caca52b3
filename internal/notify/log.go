package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// LogSessionFailed records a failed capture session in the event log.
func LogSessionFailed(logPath string, modality types.Modality, info *types.ErrorInfo) error {
	return appendLogEntry(logPath, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "session_failed",
		Modality:  modality,
		Kind:      info.Kind,
		Message:   info.Message,
	})
}

// LogArtifactStored records a spooled artifact in the event log.
func LogArtifactStored(logPath string, info *types.ArtifactInfo) error {
	return appendLogEntry(logPath, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "artifact_stored",
		Artifact:  info.Name,
		MimeType:  info.MimeType,
		SizeBytes: info.SizeBytes,
		Path:      info.StoredPath,
	})
}

// WriteTestLog writes a test entry to verify log file configuration.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "test",
	})
}

// appendLogEntry appends a JSON log entry to the file.
func appendLogEntry(logPath string, entry types.EventLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}

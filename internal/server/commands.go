package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/murmurhq/murmur-capture/internal/config"
	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands. Capture operations are
// injected so the handler never depends on the capture packages directly.
type CommandHandler struct {
	cfg            *config.Config
	startSession   func(ctx context.Context, modality types.Modality) (types.SessionStatus, error)
	capturePhoto   func(ctx context.Context) (types.SessionStatus, error)
	startRecording func(ctx context.Context) (types.SessionStatus, error)
	stopRecording  func(ctx context.Context) (types.SessionStatus, error)
	cancelSession  func() types.SessionStatus
	resetSession   func() (types.SessionStatus, error)
	listDevices    func(ctx context.Context) ([]types.DeviceInfo, error)
	testTriggers   map[string]func() error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(
	cfg *config.Config,
	startSession func(ctx context.Context, modality types.Modality) (types.SessionStatus, error),
	capturePhoto func(ctx context.Context) (types.SessionStatus, error),
	startRecording func(ctx context.Context) (types.SessionStatus, error),
	stopRecording func(ctx context.Context) (types.SessionStatus, error),
	cancelSession func() types.SessionStatus,
	resetSession func() (types.SessionStatus, error),
	listDevices func(ctx context.Context) ([]types.DeviceInfo, error),
	testTriggers map[string]func() error,
) *CommandHandler {
	return &CommandHandler{
		cfg:            cfg,
		startSession:   startSession,
		capturePhoto:   capturePhoto,
		startRecording: startRecording,
		stopRecording:  stopRecording,
		cancelSession:  cancelSession,
		resetSession:   resetSession,
		listDevices:    listDevices,
		testTriggers:   testTriggers,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Blocking capture operations run off the read loop, so a cancel command
// still gets through while an acquisition or flush is in flight.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, reply func(v any) error, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "start_session":
		h.handleStartSession(ctx, cmd, reply, triggerStatusUpdate)
	case "capture_photo":
		h.runCaptureOp(ctx, cmd.Type, h.capturePhoto, reply, triggerStatusUpdate)
	case "start_recording":
		h.runCaptureOp(ctx, cmd.Type, h.startRecording, reply, triggerStatusUpdate)
	case "stop_recording":
		h.runCaptureOp(ctx, cmd.Type, h.stopRecording, reply, triggerStatusUpdate)
	case "cancel_session":
		h.replyResult(reply, cmd.Type, h.cancelSession(), nil)
	case "reset_session":
		status, err := h.resetSession()
		h.replyResult(reply, cmd.Type, status, err)
	case "list_devices":
		h.handleListDevices(ctx, reply)
	case "update_settings":
		h.handleUpdateSettings(cmd)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(reply, cmd.Type)
	case "view_event_log":
		h.handleViewEventLog(reply)
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// runCaptureOp executes a capture operation in the background and reports
// its result when it finishes.
func (h *CommandHandler) runCaptureOp(ctx context.Context, name string, op func(context.Context) (types.SessionStatus, error), reply func(v any) error, triggerStatusUpdate func()) {
	go func() {
		status, err := op(ctx)
		h.replyResult(reply, name, status, err)
		triggerStatusUpdate()
	}()
}

func (h *CommandHandler) handleStartSession(ctx context.Context, cmd WSCommand, reply func(v any) error, triggerStatusUpdate func()) {
	var data struct {
		Modality string `json:"modality"`
	}
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		slog.Warn("start_session: invalid JSON data", "error", err)
		return
	}
	modality := types.Modality(data.Modality)
	if !modality.IsValid() {
		h.replyResult(reply, "start_session", types.SessionStatus{}, fmt.Errorf("unknown modality %q", data.Modality))
		return
	}

	go func() {
		status, err := h.startSession(ctx, modality)
		h.replyResult(reply, "start_session", status, err)
		triggerStatusUpdate()
	}()
}

// replyResult sends a command outcome back to the issuing client.
func (h *CommandHandler) replyResult(reply func(v any) error, command string, status types.SessionStatus, err error) {
	result := types.WSCommandResult{
		Type:    "command_result",
		Command: command,
		Success: err == nil,
	}
	if err != nil {
		result.Error = err.Error()
		slog.Warn("command failed", "command", command, "error", err)
	}
	if status.ID != "" {
		result.Session = &status
	}

	if reply == nil {
		return
	}
	if wsErr := reply(result); wsErr != nil {
		slog.Error("failed to send command result", "command", command, "error", wsErr)
	}
}

func (h *CommandHandler) handleListDevices(ctx context.Context, reply func(v any) error) {
	go func() {
		devices, err := h.listDevices(ctx)
		if err != nil {
			slog.Warn("list_devices: probe failed", "error", err)
		}
		if devices == nil {
			devices = []types.DeviceInfo{}
		}
		if wsErr := reply(map[string]any{"type": "devices", "devices": devices}); wsErr != nil {
			slog.Error("failed to send device list", "error", wsErr)
		}
	}()
}

// updateIntSetting validates and updates an integer setting.
func updateIntSetting(value *int, minVal, maxVal int, name string, setter func(int) error) {
	if value == nil {
		return
	}
	v := *value
	if err := util.ValidateRange(name, v, minVal, maxVal); err != nil {
		slog.Warn("update_settings: validation failed", "setting", name, "error", err.Message)
		return
	}
	slog.Info("update_settings: changing setting", "setting", name, "value", v)
	if err := setter(v); err != nil {
		slog.Error("update_settings: failed to save", "error", err)
	}
}

// updateStringSetting updates a string setting.
func updateStringSetting(value *string, name string, setter func(string) error) {
	if value == nil {
		return
	}
	slog.Info("update_settings: changing setting", "setting", name)
	if err := setter(*value); err != nil {
		slog.Error("update_settings: failed to save", "error", err)
	}
}

func (h *CommandHandler) handleUpdateSettings(cmd WSCommand) {
	var settings struct {
		AudioDevice     *string  `json:"audio_device"`
		VideoDevice     *string  `json:"video_device"`
		IdealWidth      *int     `json:"ideal_width"`
		IdealHeight     *int     `json:"ideal_height"`
		MaxWidth        *int     `json:"max_width"`
		MaxHeight       *int     `json:"max_height"`
		PhotoQuality    *int     `json:"photo_quality"`
		AudioFormats    []string `json:"audio_formats"`
		VideoFormats    []string `json:"video_formats"`
		RetentionDays   *int     `json:"retention_days"`
		WebhookURL      *string  `json:"webhook_url"`
		LogPath         *string  `json:"log_path"`
		EmailSMTPHost   *string  `json:"email_smtp_host"`
		EmailSMTPPort   *int     `json:"email_smtp_port"`
		EmailFromName   *string  `json:"email_from_name"`
		EmailUsername   *string  `json:"email_username"`
		EmailPassword   *string  `json:"email_password"`
		EmailRecipients *string  `json:"email_recipients"`
	}
	if err := json.Unmarshal(cmd.Data, &settings); err != nil {
		slog.Warn("update_settings: invalid JSON data", "error", err)
		return
	}

	if settings.AudioDevice != nil || settings.VideoDevice != nil {
		audio := h.cfg.AudioDevice()
		video := h.cfg.VideoDevice()
		if settings.AudioDevice != nil {
			audio = *settings.AudioDevice
		}
		if settings.VideoDevice != nil {
			video = *settings.VideoDevice
		}
		slog.Info("update_settings: changing capture devices", "audio", audio, "video", video)
		if err := h.cfg.SetCaptureDevices(audio, video); err != nil {
			slog.Error("update_settings: failed to save", "error", err)
		}
	}

	if settings.IdealWidth != nil || settings.IdealHeight != nil ||
		settings.MaxWidth != nil || settings.MaxHeight != nil {
		hint := h.cfg.Resolution()
		if settings.IdealWidth != nil {
			hint.IdealWidth = *settings.IdealWidth
		}
		if settings.IdealHeight != nil {
			hint.IdealHeight = *settings.IdealHeight
		}
		if settings.MaxWidth != nil {
			hint.MaxWidth = *settings.MaxWidth
		}
		if settings.MaxHeight != nil {
			hint.MaxHeight = *settings.MaxHeight
		}
		slog.Info("update_settings: changing resolution hint")
		if err := h.cfg.SetResolution(hint); err != nil {
			slog.Error("update_settings: failed to save", "error", err)
		}
	}

	updateIntSetting(settings.PhotoQuality, 1, 100, "photo quality", h.cfg.SetPhotoQuality)
	updateIntSetting(settings.RetentionDays, 0, 3650, "retention days", h.cfg.SetRetentionDays)
	updateStringSetting(settings.WebhookURL, "webhook URL", h.cfg.SetWebhookURL)
	updateStringSetting(settings.LogPath, "event log path", h.cfg.SetLogPath)

	if settings.AudioFormats != nil || settings.VideoFormats != nil {
		audio := h.cfg.AudioFormats()
		video := h.cfg.VideoFormats()
		if settings.AudioFormats != nil {
			audio = settings.AudioFormats
		}
		if settings.VideoFormats != nil {
			video = settings.VideoFormats
		}
		slog.Info("update_settings: changing recording formats")
		if err := h.cfg.SetFormats(audio, video); err != nil {
			slog.Error("update_settings: failed to save", "error", err)
		}
	}

	if settings.EmailSMTPHost != nil || settings.EmailSMTPPort != nil ||
		settings.EmailFromName != nil || settings.EmailUsername != nil ||
		settings.EmailPassword != nil || settings.EmailRecipients != nil {
		// Get current values for fields not being updated
		snapshot := h.cfg.Snapshot()
		host := snapshot.EmailSMTPHost
		port := snapshot.EmailSMTPPort
		fromName := snapshot.EmailFromName
		username := snapshot.EmailUsername
		password := snapshot.EmailPassword
		recipients := snapshot.EmailRecipients
		if settings.EmailSMTPHost != nil {
			host = *settings.EmailSMTPHost
		}
		if settings.EmailSMTPPort != nil {
			port = max(1, min(*settings.EmailSMTPPort, 65535))
		}
		if settings.EmailFromName != nil {
			fromName = *settings.EmailFromName
		}
		if settings.EmailUsername != nil {
			username = *settings.EmailUsername
		}
		if settings.EmailPassword != nil {
			password = *settings.EmailPassword
		}
		if settings.EmailRecipients != nil {
			recipients = *settings.EmailRecipients
		}

		slog.Info("update_settings: updating email configuration")
		if err := h.cfg.SetEmailConfig(host, port, fromName, username, password, recipients); err != nil {
			slog.Error("update_settings: failed to save email config", "error", err)
		}
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(reply func(v any) error, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		slog.Warn("unknown test type", "command", testCmd)
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		if wsErr := reply(result); wsErr != nil {
			slog.Error("failed to send test response", "command", testCmd, "error", wsErr)
		}
	}()
}

// handleViewEventLog reads and returns the event log contents.
func (h *CommandHandler) handleViewEventLog(reply func(v any) error) {
	go func() {
		result := types.WSEventLogResult{
			Type:    "event_log_result",
			Success: true,
		}

		logPath := h.cfg.LogPath()
		if logPath == "" {
			result.Success = false
			result.Error = "Event log path not configured"
			if wsErr := reply(result); wsErr != nil {
				slog.Error("failed to send event log response", "error", wsErr)
			}
			return
		}

		entries, err := readEventLog(logPath, 100)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Entries = entries
			result.Path = logPath
		}

		if wsErr := reply(result); wsErr != nil {
			slog.Error("failed to send event log response", "error", wsErr)
		}
	}()
}

// readEventLog reads the last N entries from the event log file.
func readEventLog(logPath string, maxEntries int) ([]types.EventLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.EventLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []types.EventLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]types.EventLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry types.EventLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	// Reverse to show newest first
	slices.Reverse(entries)

	return entries, nil
}

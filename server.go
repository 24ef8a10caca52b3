package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/murmurhq/murmur-capture/internal/capture"
	"github.com/murmurhq/murmur-capture/internal/config"
	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/notify"
	"github.com/murmurhq/murmur-capture/internal/server"
	"github.com/murmurhq/murmur-capture/internal/store"
	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// statusPushInterval paces the status stream. While a recording runs, each
// push carries a fresh elapsed seconds value, so clients see the counter
// advance once per second.
const statusPushInterval = 1 * time.Second

// Server is the HTTP server exposing the capture agent's control surface.
type Server struct {
	config   *config.Config
	manager  *capture.Manager
	store    *store.DiskStore
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker
	started  time.Time
}

// NewServer returns a Server wired to the given capture manager and store.
func NewServer(cfg *config.Config, mgr *capture.Manager, spool *store.DiskStore, notifier *notify.Notifier) *Server {
	sessions := server.NewSessionManager()
	commands := server.NewCommandHandler(
		cfg,
		func(ctx context.Context, modality types.Modality) (types.SessionStatus, error) {
			return mgr.StartSession(ctx, sessionOptions(cfg, modality))
		},
		mgr.CapturePhoto,
		mgr.StartRecording,
		mgr.StopRecording,
		mgr.CancelSession,
		mgr.ResetSession,
		mgr.Devices,
		notifier.TestTriggers(),
	)

	return &Server{
		config:   cfg,
		manager:  mgr,
		store:    spool,
		sessions: sessions,
		commands: commands,
		version:  NewVersionChecker(),
		started:  time.Now(),
	}
}

// sessionOptions builds capture options from the current configuration.
func sessionOptions(cfg *config.Config, modality types.Modality) capture.Options {
	snapshot := cfg.Snapshot()
	opts := capture.Options{
		Modality:     modality,
		Resolution:   snapshot.Resolution,
		PhotoQuality: snapshot.PhotoQuality,
	}

	var mimeTypes []string
	switch modality {
	case types.ModalityAudio:
		mimeTypes = snapshot.AudioFormats
	case types.ModalityVideo:
		mimeTypes = snapshot.VideoFormats
	}
	if len(mimeTypes) > 0 {
		opts.Candidates = encoding.CandidatesFromMimeTypes(mimeTypes)
	}
	return opts
}

// handleWebSocket streams agent status to the client and dispatches its
// commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer util.SafeCloseFunc(conn, "WebSocket connection")()

	// Command results and status pushes come from different goroutines and
	// the connection allows a single writer, so writes are serialized here.
	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	ctx, cancelOps := context.WithCancel(context.Background())
	defer cancelOps()

	statusUpdate := make(chan bool, 1)
	done := make(chan bool)

	triggerStatusUpdate := func() {
		select {
		case statusUpdate <- true:
		default:
		}
	}

	// Goroutine to read and process commands from client
	go func() {
		for {
			var cmd server.WSCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				close(done)
				return
			}
			s.commands.Handle(ctx, cmd, send, triggerStatusUpdate)
		}
	}()

	// Device listing shells out to the capture tooling, so it is gathered
	// once per connection rather than on every push.
	devices, err := s.manager.Devices(ctx)
	if err != nil {
		slog.Warn("device listing failed", "error", err)
	}

	sendStatus := func() error {
		return send(map[string]any{
			"type":     "status",
			"status":   s.agentStatus(devices),
			"settings": s.settingsPayload(),
		})
	}

	// Send initial status
	if err := sendStatus(); err != nil {
		return
	}

	statusTicker := time.NewTicker(statusPushInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if err := sendStatus(); err != nil {
				return
			}
		case <-statusTicker.C:
			if err := sendStatus(); err != nil {
				return
			}
		}
	}
}

// agentStatus assembles the full status payload.
func (s *Server) agentStatus(devices []types.DeviceInfo) types.AgentStatus {
	return types.AgentStatus{
		Version: s.version.GetInfo(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Session: s.manager.Status(),
		Store:   s.store.Stats(),
		Devices: devices,
	}
}

// settingsPayload exposes the configuration to clients. The web password
// never leaves the agent.
func (s *Server) settingsPayload() map[string]any {
	snapshot := s.config.Snapshot()
	return map[string]any{
		"backend":          snapshot.Backend,
		"audio_device":     snapshot.AudioDevice,
		"video_device":     snapshot.VideoDevice,
		"resolution":       snapshot.Resolution,
		"photo_quality":    snapshot.PhotoQuality,
		"audio_formats":    snapshot.AudioFormats,
		"video_formats":    snapshot.VideoFormats,
		"store_path":       snapshot.StorePath,
		"retention_days":   snapshot.RetentionDays,
		"webhook_url":      snapshot.WebhookURL,
		"log_path":         snapshot.LogPath,
		"email_smtp_host":  snapshot.EmailSMTPHost,
		"email_smtp_port":  snapshot.EmailSMTPPort,
		"email_from_name":  snapshot.EmailFromName,
		"email_username":   snapshot.EmailUsername,
		"email_recipients": snapshot.EmailRecipients,
		"platform":         runtime.GOOS,
	}
}

// handleLogin validates credentials and opens an authenticated session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !s.sessions.ValidateCSRFToken(creds.CSRFToken) {
		http.Error(w, "invalid or expired csrf token", http.StatusForbidden)
		return
	}
	if !s.sessions.Login(w, r, creds.Username, creds.Password, s.config.WebUser(), s.config.WebPassword()) {
		slog.Warn("failed login attempt", "remote", r.RemoteAddr)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogout ends the authenticated session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// handleCSRF issues a single-use token for the login form.
func (s *Server) handleCSRF(w http.ResponseWriter, _ *http.Request) {
	token := s.sessions.CreateCSRFToken()
	if token == "" {
		http.Error(w, "failed to create token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"csrf_token": token}); err != nil {
		slog.Error("failed to write csrf token", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/csrf", s.handleCSRF)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	// WebSocket for all real-time communication (requires authentication)
	mux.HandleFunc("/ws", s.sessions.RequireAuth(s.handleWebSocket))

	return mux
}

// Start begins listening and serving HTTP requests on the configured port.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.WebPort())
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}

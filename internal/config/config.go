// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort       = 8080
	DefaultWebUsername   = "admin"
	DefaultWebPassword   = "capture"
	DefaultBackend       = "auto"
	DefaultPhotoQuality  = 90
	DefaultStorePath     = "artifacts"
	DefaultRetentionDays = 30
	DefaultEmailSMTPPort = 587
	DefaultEmailFromName = "Murmur Capture Agent"
)

// WebConfig contains web server configuration.
type WebConfig struct {
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CaptureConfig contains device and format configuration.
type CaptureConfig struct {
	// Backend selects the capture implementation: auto, exec, or sim.
	Backend     string               `json:"backend,omitempty"`
	AudioDevice string               `json:"audio_device,omitempty"`
	VideoDevice string               `json:"video_device,omitempty"`
	Resolution  types.ResolutionHint `json:"resolution,omitempty"`

	// PhotoQuality is the JPEG quality for photo captures, 1 to 100.
	PhotoQuality int `json:"photo_quality,omitempty"`

	// AudioFormats and VideoFormats override the recording format priority
	// lists with mime types, highest priority first.
	AudioFormats []string `json:"audio_formats,omitempty"`
	VideoFormats []string `json:"video_formats,omitempty"`
}

// StoreConfig contains artifact spool configuration.
type StoreConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	FromName   string `json:"from_name,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Recipients string `json:"recipients,omitempty"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `json:"webhook_url,omitempty"`
	LogPath    string      `json:"log_path,omitempty"`
	Email      EmailConfig `json:"email,omitempty"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Web           WebConfig           `json:"web"`
	Capture       CaptureConfig       `json:"capture"`
	Store         StoreConfig         `json:"store"`
	Notifications NotificationsConfig `json:"notifications,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Web: WebConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Capture: CaptureConfig{
			Backend:      DefaultBackend,
			PhotoQuality: DefaultPhotoQuality,
		},
		Store: StoreConfig{
			Path:          DefaultStorePath,
			RetentionDays: DefaultRetentionDays,
		},
		Notifications: NotificationsConfig{},
		filePath:      filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Web.Username == "" {
		c.Web.Username = DefaultWebUsername
	}
	if c.Web.Password == "" {
		c.Web.Password = DefaultWebPassword
	}
	if c.Capture.Backend == "" {
		c.Capture.Backend = DefaultBackend
	}
	if c.Capture.PhotoQuality == 0 {
		c.Capture.PhotoQuality = DefaultPhotoQuality
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = DefaultRetentionDays
	}
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// WebPort returns the web server port.
func (c *Config) WebPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Port
}

// WebUser returns the web authentication username.
func (c *Config) WebUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Username
}

// WebPassword returns the web authentication password.
func (c *Config) WebPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Password
}

// Backend returns the configured capture backend.
func (c *Config) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Capture.Backend, DefaultBackend)
}

// AudioDevice returns the configured microphone device. Empty means the
// platform default.
func (c *Config) AudioDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.AudioDevice
}

// VideoDevice returns the configured camera device. Empty means the
// platform default.
func (c *Config) VideoDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.VideoDevice
}

// SetCaptureDevices updates the capture devices and saves the configuration.
func (c *Config) SetCaptureDevices(audio, video string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.AudioDevice = audio
	c.Capture.VideoDevice = video
	return c.saveLocked()
}

// Resolution returns the configured video resolution hint.
func (c *Config) Resolution() types.ResolutionHint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture.Resolution
}

// SetResolution updates the resolution hint and saves the configuration.
func (c *Config) SetResolution(hint types.ResolutionHint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.Resolution = hint
	return c.saveLocked()
}

// PhotoQuality returns the JPEG quality for photo captures.
func (c *Config) PhotoQuality() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Capture.PhotoQuality, DefaultPhotoQuality)
}

// SetPhotoQuality updates the JPEG quality and saves the configuration.
func (c *Config) SetPhotoQuality(quality int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.PhotoQuality = quality
	return c.saveLocked()
}

// AudioFormats returns the configured audio recording format priority list.
func (c *Config) AudioFormats() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Capture.AudioFormats)
}

// VideoFormats returns the configured video recording format priority list.
func (c *Config) VideoFormats() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Capture.VideoFormats)
}

// SetFormats updates both format priority lists and saves the configuration.
func (c *Config) SetFormats(audio, video []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.AudioFormats = slices.Clone(audio)
	c.Capture.VideoFormats = slices.Clone(video)
	return c.saveLocked()
}

// StorePath returns the artifact spool directory.
func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Store.Path, DefaultStorePath)
}

// RetentionDays returns how long spooled artifacts are kept. Zero or
// negative disables cleanup.
func (c *Config) RetentionDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Store.RetentionDays
}

// SetRetentionDays updates the artifact retention and saves the configuration.
func (c *Config) SetRetentionDays(days int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Store.RetentionDays = days
	return c.saveLocked()
}

// WebhookURL returns the configured webhook URL for notifications.
func (c *Config) WebhookURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.WebhookURL
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.WebhookURL = url
	return c.saveLocked()
}

// LogPath returns the configured event log path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.LogPath
}

// SetLogPath updates the event log path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.LogPath = path
	return c.saveLocked()
}

// SetEmailConfig updates all email configuration fields and saves.
func (c *Config) SetEmailConfig(host string, port int, fromName, username, password, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.Host = host
	c.Notifications.Email.Port = port
	c.Notifications.Email.FromName = fromName
	c.Notifications.Email.Username = username
	c.Notifications.Email.Password = password
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// Snapshot contains a point-in-time copy of all configuration values.
// Use this instead of multiple individual getters to reduce mutex contention.
type Snapshot struct {
	// Web
	WebPort     int
	WebUser     string
	WebPassword string

	// Capture
	Backend      string
	AudioDevice  string
	VideoDevice  string
	Resolution   types.ResolutionHint
	PhotoQuality int
	AudioFormats []string
	VideoFormats []string

	// Store
	StorePath     string
	RetentionDays int

	// Notifications
	WebhookURL string
	LogPath    string

	// Email
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFromName   string
	EmailUsername   string
	EmailPassword   string
	EmailRecipients string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// Web
		WebPort:     c.Web.Port,
		WebUser:     c.Web.Username,
		WebPassword: c.Web.Password,

		// Capture (with defaults)
		Backend:      cmp.Or(c.Capture.Backend, DefaultBackend),
		AudioDevice:  c.Capture.AudioDevice,
		VideoDevice:  c.Capture.VideoDevice,
		Resolution:   c.Capture.Resolution,
		PhotoQuality: cmp.Or(c.Capture.PhotoQuality, DefaultPhotoQuality),
		AudioFormats: slices.Clone(c.Capture.AudioFormats),
		VideoFormats: slices.Clone(c.Capture.VideoFormats),

		// Store (with defaults)
		StorePath:     cmp.Or(c.Store.Path, DefaultStorePath),
		RetentionDays: c.Store.RetentionDays,

		// Notifications
		WebhookURL: c.Notifications.WebhookURL,
		LogPath:    c.Notifications.LogPath,

		// Email (with defaults)
		EmailSMTPHost:   c.Notifications.Email.Host,
		EmailSMTPPort:   cmp.Or(c.Notifications.Email.Port, DefaultEmailSMTPPort),
		EmailFromName:   cmp.Or(c.Notifications.Email.FromName, DefaultEmailFromName),
		EmailUsername:   c.Notifications.Email.Username,
		EmailPassword:   c.Notifications.Email.Password,
		EmailRecipients: c.Notifications.Email.Recipients,
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (s *Snapshot) HasEmail() bool {
	return s.EmailSMTPHost != "" && s.EmailRecipients != ""
}

// HasLogPath returns true if an event log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

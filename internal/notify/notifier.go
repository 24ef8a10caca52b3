package notify

import (
	"log/slog"

	"github.com/murmurhq/murmur-capture/internal/config"
	"github.com/murmurhq/murmur-capture/internal/types"
)

// Notifier fans capture lifecycle events out to the configured channels:
// webhook, email, and the local event log. Delivery runs in the background;
// the capture path never waits on a notification, and delivery errors are
// logged rather than returned.
type Notifier struct {
	cfg *config.Config
}

// NewNotifier returns a Notifier configured with the given config.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// SessionFailed reports a failed capture session on every configured channel.
func (n *Notifier) SessionFailed(modality types.Modality, info *types.ErrorInfo) {
	if info == nil {
		return
	}
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go n.deliver("failure webhook", func() error {
			return SendFailureWebhook(cfg.WebhookURL, modality, info)
		})
	}
	if cfg.HasEmail() {
		go n.deliver("failure email", func() error {
			return SendFailureAlert(emailConfig(cfg), modality, info)
		})
	}
	if cfg.HasLogPath() {
		go n.deliver("event log", func() error {
			return LogSessionFailed(cfg.LogPath, modality, info)
		})
	}
}

// ArtifactStored announces a spooled artifact on the webhook and event log.
// Email stays quiet for routine artifacts.
func (n *Notifier) ArtifactStored(info *types.ArtifactInfo) {
	if info == nil {
		return
	}
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go n.deliver("artifact webhook", func() error {
			return SendArtifactWebhook(cfg.WebhookURL, info)
		})
	}
	if cfg.HasLogPath() {
		go n.deliver("event log", func() error {
			return LogArtifactStored(cfg.LogPath, info)
		})
	}
}

// TestTriggers returns named senders for verifying each channel's
// configuration from the control surface.
func (n *Notifier) TestTriggers() map[string]func() error {
	return map[string]func() error{
		"webhook": func() error {
			return SendTestWebhook(n.cfg.WebhookURL())
		},
		"email": func() error {
			return SendTestEmail(emailConfig(n.cfg.Snapshot()))
		},
		"log": func() error {
			return WriteTestLog(n.cfg.LogPath())
		},
	}
}

func (n *Notifier) deliver(channel string, send func() error) {
	if err := send(); err != nil {
		slog.Warn("notification delivery failed", "channel", channel, "error", err)
	}
}

// emailConfig builds the SMTP settings from a config snapshot.
func emailConfig(cfg config.Snapshot) *EmailConfig {
	return &EmailConfig{
		Host:       cfg.EmailSMTPHost,
		Port:       cfg.EmailSMTPPort,
		FromName:   cfg.EmailFromName,
		Username:   cfg.EmailUsername,
		Password:   cfg.EmailPassword,
		Recipients: cfg.EmailRecipients,
	}
}

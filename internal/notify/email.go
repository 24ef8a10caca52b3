// Package notify delivers capture lifecycle alerts.
package notify

import (
	"fmt"
	"strings"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
	"github.com/wneessen/go-mail"
)

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// SendFailureAlert sends an email notification for a failed capture session.
// An unconfigured channel skips silently.
func SendFailureAlert(cfg *EmailConfig, modality types.Modality, info *types.ErrorInfo) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil
	}

	subject := fmt.Sprintf("[ALERT] %s capture failed - Murmur Capture Agent", modality)
	body := fmt.Sprintf(
		"A capture session failed on the agent.\n\n"+
			"Modality: %s\n"+
			"Cause:    %s\n"+
			"Message:  %s\n"+
			"Detail:   %s\n"+
			"Time:     %s\n\n"+
			"Please check the capture devices.",
		modality, info.Kind, info.Message, info.Detail, util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// SendTestEmail sends a test email to verify SMTP configuration. Unlike the
// alert path, missing settings are reported so the operator sees what to fix.
func SendTestEmail(cfg *EmailConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if cfg.Username == "" {
		return fmt.Errorf("email username not configured")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("email recipients not configured")
	}

	subject := "[TEST] Murmur Capture Agent"
	body := fmt.Sprintf(
		"Test email from the capture agent.\n\n"+
			"Time: %s\n\n"+
			"SMTP configuration is working correctly.",
		util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// splitRecipients parses the comma-separated recipient setting.
func splitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// tlsOption picks the TLS mode matching the configured port: implicit TLS on
// 465, mandatory STARTTLS on 587, opportunistic everywhere else.
func tlsOption(port int) mail.Option {
	switch port {
	case 465:
		return mail.WithSSL()
	case 587:
		return mail.WithTLSPortPolicy(mail.TLSMandatory)
	default:
		return mail.WithTLSPortPolicy(mail.TLSOpportunistic)
	}
}

// sendEmail composes and delivers one message to every configured recipient.
func sendEmail(cfg *EmailConfig, subject, body string) error {
	recipients := splitRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	} else if err := m.From(cfg.Username); err != nil {
		return util.WrapError("set from address", err)
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		tlsOption(cfg.Port),
	)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return util.WrapError("send email", err)
	}
	return nil
}

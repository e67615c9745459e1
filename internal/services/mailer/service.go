// -----------------------------------------------------------------------
// Mailer Service - SMTP delivery of report notifications
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
)

// Service sends report notifications to the configured recipient list.
type Service struct {
	config common.MailConfig
	logger arbor.ILogger
}

// NewService creates a new mailer service
func NewService(cfg common.MailConfig, logger arbor.ILogger) interfaces.NotificationService {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" &&
		s.config.Username != "" &&
		s.config.Password != "" &&
		s.config.From != "" &&
		len(s.config.Recipients) > 0
}

// Send delivers a plain text message to every configured recipient.
// The message is a single MIME part, base64 encoded so long report
// lines stay within the RFC 5322 line limit.
func (s *Service) Send(ctx context.Context, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	var err error
	if s.config.UseTLS {
		err = s.sendWithTLS(addr, auth, s.config.From, s.config.Recipients, msg)
	} else {
		err = smtp.SendMail(addr, auth, s.config.From, s.config.Recipients, []byte(msg))
	}
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	s.logger.Info().
		Str("subject", subject).
		Int("recipients", len(s.config.Recipients)).
		Msg("Notification sent")

	return nil
}

// buildMessage assembles the RFC 5322 message with headers and a
// base64-encoded text body.
func (s *Service) buildMessage(subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.Recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(body))
	msg.WriteString("\r\n")
	return msg.String()
}

// sendWithTLS sends email using a direct TLS connection (required for Gmail)
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: host,
	})
	if err != nil {
		// Fallback to STARTTLS if direct TLS fails
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return s.transmit(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: host,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return s.transmit(client, auth, from, to, msg)
}

// transmit runs the SMTP envelope exchange on an established client.
func (s *Service) transmit(client *smtp.Client, auth smtp.Auth, from string, to []string, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}

	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char
// line breaks per RFC 2045 for MIME content.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76

	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}

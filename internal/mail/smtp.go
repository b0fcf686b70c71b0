package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/spec-kit/helpdesk/internal/config"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg  config.SMTPConfig
	send SendFunc
}

// NewSMTPSender builds a sender; a nil send uses smtp.SendMail.
func NewSMTPSender(cfg config.SMTPConfig, send SendFunc) *SMTPSender {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPSender{cfg: cfg, send: send}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, email OutboundEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := parseAddress(s.cfg.From)
	if err != nil {
		return fmt.Errorf("invalid From address: %w", err)
	}
	to, err := parseAddress(email.To)
	if err != nil {
		return fmt.Errorf("invalid To address: %w", err)
	}
	if email.ToName != "" {
		to.Name = sanitizeHeader(email.ToName)
	}

	msg, err := Compose(from, to, email)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := s.cfg.Host + ":" + s.cfg.Port
	return s.send(addr, auth, from.Address, []string{to.Address}, msg)
}

// Compose renders email as an RFC 5322 message. HTML bodies are sent as
// multipart/alternative with the text part first.
func Compose(from, to *mail.Address, email OutboundEmail) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader := func(key, value string) {
		if value = sanitizeHeader(value); value != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
		}
	}
	writeHeader("From", from.String())
	writeHeader("To", to.String())
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", sanitizeHeader(email.Subject)))
	writeHeader("Message-ID", email.HeaderID)
	writeHeader("In-Reply-To", email.InReplyTo)
	writeHeader("References", strings.Join(email.References, " "))
	writeHeader("MIME-Version", "1.0")

	if email.HTML == "" {
		writeHeader("Content-Type", "text/plain; charset=utf-8")
		buf.WriteString("\r\n")
		buf.WriteString(email.Text)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	writeHeader("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")
	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", email.Text},
		{"text/html; charset=utf-8", email.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// sanitizeHeader removes CR and LF so values cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}

func parseAddress(raw string) (*mail.Address, error) {
	return mail.ParseAddress(sanitizeHeader(raw))
}

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/roomlife/pkg/config"
)

const smtpTimeout = 10 * time.Second

// SMTPMailer delivers notices over SMTP. Port 465 uses implicit TLS; other ports upgrade with
// STARTTLS when the server offers it.
type SMTPMailer struct {
	addr     string
	host     string
	from     mail.Address
	auth     smtp.Auth
	implicit bool
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	host := strings.TrimSpace(cfg.SMTPHost)
	m := &SMTPMailer{
		addr:     net.JoinHostPort(host, strconv.Itoa(cfg.SMTPPort)),
		host:     host,
		from:     mail.Address{Name: cfg.FromName, Address: strings.TrimSpace(cfg.From)},
		implicit: cfg.SMTPPort == 465,
	}
	if user := strings.TrimSpace(cfg.SMTPUser); user != "" {
		m.auth = smtp.PlainAuth("", user, strings.TrimSpace(cfg.SMTPPass), host)
	}
	return m
}

func (s *SMTPMailer) SendNoShowNotice(ctx context.Context, n NoShowNotice) error {
	to := strings.TrimSpace(n.Email)
	if to == "" {
		return errors.New("empty recipient email")
	}
	msg, err := composeMessage(s.from, mail.Address{Name: n.Name, Address: to}, n.subject(), n.text(), n.html())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()
	return s.deliver(ctx, to, msg)
}

// composeMessage renders a multipart/alternative message with plain text and HTML parts.
func composeMessage(from, to mail.Address, subject, text, html string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
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

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func (s *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if s.implicit {
		conn = tls.Client(conn, &tls.Config{ServerName: s.host})
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !s.implicit {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

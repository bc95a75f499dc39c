package handler

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EmailConfig holds SMTP submission settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// InsecureSkipVerify disables certificate verification for STARTTLS
	InsecureSkipVerify bool
}

// Configured reports whether every required setting is present
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.Username != "" && c.Password != "" && c.From != "" && len(c.To) > 0
}

// EmailHandler sends one message per alert over SMTP with STARTTLS
type EmailHandler struct {
	logger *zap.Logger
	config EmailConfig
	now    func() time.Time
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(config EmailConfig, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		logger: logger.Named("email"),
		config: config,
		now:    time.Now,
	}
}

// Name implements Handler
func (h *EmailHandler) Name() string { return "email" }

// Send implements Handler
func (h *EmailHandler) Send(ctx context.Context, kind, message string, value float64) error {
	if !h.config.Configured() {
		return ErrNotConfigured
	}

	c, err := h.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(h.config.From); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range h.config.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(h.buildMessage(kind, message, value)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	h.logger.Info("Alert email sent",
		zap.String("kind", kind),
		zap.Int("recipients", len(h.config.To)))

	return c.Quit()
}

// TestConnection implements Tester: dial, STARTTLS and authenticate
func (h *EmailHandler) TestConnection(ctx context.Context) error {
	if !h.config.Configured() {
		return ErrNotConfigured
	}

	c, err := h.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

// connect opens an authenticated SMTP session
func (h *EmailHandler) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(h.config.Host, fmt.Sprintf("%d", h.config.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, h.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); !ok {
		c.Close()
		return nil, fmt.Errorf("server %s does not support STARTTLS", addr)
	}
	tlsConfig := &tls.Config{
		ServerName:         h.config.Host,
		InsecureSkipVerify: h.config.InsecureSkipVerify,
	}
	if err := c.StartTLS(tlsConfig); err != nil {
		c.Close()
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}

	auth := smtp.PlainAuth("", h.config.Username, h.config.Password, h.config.Host)
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return c, nil
}

func (h *EmailHandler) buildMessage(kind, message string, value float64) []byte {
	subject := fmt.Sprintf("[OverWatch] %s alert", strings.ToUpper(kind))

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", h.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(h.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", h.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Type: %s\r\n", strings.ToUpper(kind))
	fmt.Fprintf(&b, "Message: %s\r\n", message)
	fmt.Fprintf(&b, "Value: %g\r\n", value)
	fmt.Fprintf(&b, "Time: %s\r\n", h.now().Format(time.RFC3339))

	return []byte(b.String())
}

package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestEmailConfig_Configured(t *testing.T) {
	full := EmailConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "a@example.com", To: []string{"b@example.com"}}
	assert.True(t, full.Configured())

	missing := full
	missing.To = nil
	assert.False(t, missing.Configured())

	missing = full
	missing.Password = ""
	assert.False(t, missing.Configured())
}

func TestEmailHandler_NotConfigured(t *testing.T) {
	h := NewEmailHandler(EmailConfig{Host: "smtp.example.com"}, zaptest.NewLogger(t))
	assert.ErrorIs(t, h.Send(context.Background(), "cpu", "m", 1), ErrNotConfigured)
	assert.ErrorIs(t, h.TestConnection(context.Background()), ErrNotConfigured)
}

func TestEmailHandler_BuildMessage(t *testing.T) {
	h := NewEmailHandler(EmailConfig{
		From: "overwatch@example.com",
		To:   []string{"ops@example.com", "oncall@example.com"},
	}, zaptest.NewLogger(t))
	h.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	msg := string(h.buildMessage("memory", "Memory usage is 85% (threshold: 80%)", 85))

	assert.Contains(t, msg, "Subject: [OverWatch] MEMORY alert\r\n")
	assert.Contains(t, msg, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, msg, "Message: Memory usage is 85% (threshold: 80%)\r\n")
	assert.Contains(t, msg, "Value: 85\r\n")
	assert.Contains(t, msg, "Time: 2024-03-01T12:00:00Z")

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, found)
	assert.Contains(t, headers, "Content-Type: text/plain; charset=UTF-8")
	assert.True(t, strings.HasPrefix(body, "Type: MEMORY\r\n"))
}

func TestEmailHandler_ConnectFailure(t *testing.T) {
	h := NewEmailHandler(EmailConfig{
		Host: "127.0.0.1", Port: 1, Username: "u", Password: "p",
		From: "a@example.com", To: []string{"b@example.com"},
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.Send(ctx, "cpu", "m", 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

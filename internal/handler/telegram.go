package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTelegramAPI is the Bot API base URL
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds bot settings
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// BaseURL overrides the Bot API endpoint
	BaseURL string
	Timeout time.Duration
}

// TelegramHandler posts alerts to a chat through the Telegram Bot API
type TelegramHandler struct {
	logger     *zap.Logger
	config     TelegramConfig
	httpClient *http.Client
}

// NewTelegramHandler creates a new Telegram handler
func NewTelegramHandler(config TelegramConfig, logger *zap.Logger) *TelegramHandler {
	if config.BaseURL == "" {
		config.BaseURL = DefaultTelegramAPI
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &TelegramHandler{
		logger: logger.Named("telegram"),
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name implements Handler
func (h *TelegramHandler) Name() string { return "telegram" }

// Send implements Handler
func (h *TelegramHandler) Send(ctx context.Context, kind, message string, value float64) error {
	if h.config.BotToken == "" || h.config.ChatID == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    h.config.ChatID,
		"text":       FormatTelegramMessage(kind, message, value),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := h.do(req); err != nil {
		return err
	}

	h.logger.Debug("Telegram alert sent", zap.String("kind", kind))
	return nil
}

// TestConnection implements Tester by calling getMe
func (h *TelegramHandler) TestConnection(ctx context.Context) error {
	if h.config.BotToken == "" || h.config.ChatID == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint("getMe"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return h.do(req)
}

func (h *TelegramHandler) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(h.config.BaseURL, "/"), h.config.BotToken, method)
}

func (h *TelegramHandler) do(req *http.Request) error {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var kindEmoji = map[string]string{
	"cpu":         "🔥",
	"memory":      "💾",
	"disk":        "💿",
	"temperature": "🌡️",
	"network":     "🌐",
}

// FormatTelegramMessage renders an alert as Markdown
func FormatTelegramMessage(kind, message string, value float64) string {
	emoji, ok := kindEmoji[kind]
	if !ok {
		emoji = "⚠️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *OverWatch Alert*\n\n", emoji)
	fmt.Fprintf(&b, "*Type:* %s\n", escapeMarkdown(strings.ToUpper(kind)))
	fmt.Fprintf(&b, "*Message:* %s\n", escapeMarkdown(message))
	fmt.Fprintf(&b, "*Value:* %g", value)
	return b.String()
}

// markdownEscaper escapes the entities of Telegram's legacy Markdown mode
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"`", "\\`",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

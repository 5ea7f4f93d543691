package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	APIBase  string // overrides https://api.telegram.org
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = telegramAPIBase
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  apiBase,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: sendTimeout},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message),
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}


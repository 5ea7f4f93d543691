package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: sendTimeout},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	if notification.Type == NotifyError || (notification.Type == NotifyTradeClose && notification.PnL < 0) {
		color = 0xFF0000 // Red
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.2f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.2f", notification.PnL), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}

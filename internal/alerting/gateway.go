// internal/alerting/gateway.go
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultGatewayURL is the Telegram Bot API endpoint.
const DefaultGatewayURL = "https://api.telegram.org"

// TelegramSender posts messages to one chat through the Telegram Bot API.
type TelegramSender struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramSender returns nil when credentials are missing; a nil Sender
// leaves the dispatcher disabled.
func NewTelegramSender(baseURL, token, chatID string, timeout time.Duration) *TelegramSender {
	if token == "" || chatID == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultGatewayURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TelegramSender{client: client, token: token, chatID: chatID}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSender) Send(ctx context.Context, text string) error {
	var result telegramResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id": s.chatID,
			"text":    text,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + s.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("gateway rejected message: %s %s", resp.Status(), result.Description)
	}
	return nil
}

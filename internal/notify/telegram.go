package notify

import (
	"context"
	"fmt"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts through the Bot API sendMessage method.
type TelegramSender struct {
	token  string
	chatID string
	opts   senderOptions
}

// NewTelegramSender creates a TelegramSender posting to chatID as the bot
// identified by token.
func NewTelegramSender(token, chatID string, opts ...Option) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		opts:   applyOptions(defaultTelegramAPI, opts),
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts the title in bold followed by the message.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.opts.baseURL, t.token)
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  fmt.Sprintf("*%s*\n%s", title, message),
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}
	if err := postJSON(ctx, t.opts.client, url, msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }

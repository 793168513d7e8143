package notify

import (
	"context"
	"fmt"
	"strings"
)

// Embed colours by alert kind.
const (
	colorNeutral = 0x5865F2
	colorGood    = 0x2ECC71
	colorBad     = 0xE74C3C
	colorWarn    = 0xF1C40F
)

// DiscordSender delivers alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	opts       senderOptions
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string, opts ...Option) *DiscordSender {
	o := applyOptions(webhookURL, opts)
	return &DiscordSender{webhookURL: o.baseURL, opts: o}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := discordPayload{
		Username: "autobot",
		Embeds: []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       embedColor(title, message),
		}},
	}
	if err := postJSON(ctx, d.opts.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// embedColor picks green for wins, red for losses and stop-outs, yellow for
// risk alerts.
func embedColor(title, message string) int {
	switch {
	case strings.HasPrefix(title, "RISK"):
		return colorWarn
	case strings.HasPrefix(title, "POSITION CLOSED"):
		if strings.Contains(message, "P&L: $-") {
			return colorBad
		}
		return colorGood
	case strings.HasPrefix(title, "TRADE EXECUTED"):
		return colorGood
	}
	return colorNeutral
}

func (d *DiscordSender) Name() string { return "discord" }

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"

	"servicepulse/internal/models"
)

const telegramSendTimeout = 10 * time.Second

// TelegramNotifier forwards status transitions to a Telegram chat. It
// subscribes to status_changed events only; check_completed traffic would
// flood the chat.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
}

func NewTelegramNotifier(b *bot.Bot, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: b, chatID: chatID}
}

func (t *TelegramNotifier) Publish(eventType Type, payload map[string]any) error {
	if eventType != StatusChanged {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), telegramSendTimeout)
	defer cancel()

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   formatStatusMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatStatusMessage(payload map[string]any) string {
	name, _ := payload["name"].(string)
	oldStatus, _ := payload["old_status"].(string)
	newStatus, _ := payload["new_status"].(string)
	target, _ := payload["target"].(string)

	icon := "⚠️"
	switch models.ServiceStatus(newStatus) {
	case models.StatusHealthy:
		icon = "✅"
	case models.StatusUnhealthy:
		icon = "🚨"
	}

	return fmt.Sprintf("%s %s: %s → %s\nTarget: %s\nAt: %s",
		icon, name, oldStatus, newStatus, target,
		time.Now().UTC().Format("2006-01-02 15:04 MST"),
	)
}

package notify

import (
	"context"

	"stock-tracker-alerts/internal/telegram"
	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/helpers"
	"stock-tracker-alerts/lib/translation"

	log "github.com/sirupsen/logrus"
)

type telegramSender interface {
	SendMessage(ctx context.Context, m telegram.Message) error
	TestConnection() (string, error)
}

// TelegramChannel posts MarkdownV2 alert messages to one chat.
type TelegramChannel struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramChannel(bot telegramSender, chatID int64) *TelegramChannel {
	return &TelegramChannel{bot: bot, chatID: chatID}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, batch []types.AlertPayload) error {
	return t.bot.SendMessage(ctx, telegram.Message{ChatID: t.chatID, Text: FormatMarkdown(batch)})
}

// SendTest checks the token with getMe, then posts a short message to the chat.
func (t *TelegramChannel) SendTest(ctx context.Context) error {
	name, err := t.bot.TestConnection()
	if err != nil {
		return err
	}
	log.WithField("bot", name).Debug("Telegram token accepted")

	text := "✅ *" + helpers.EscapeMarkdownV2(translation.Translate("Stock Tracker test message")) + "*\n\n" +
		helpers.EscapeMarkdownV2(translation.Translate("Telegram notifications are configured correctly."))
	return t.bot.SendMessage(ctx, telegram.Message{ChatID: t.chatID, Text: text})
}

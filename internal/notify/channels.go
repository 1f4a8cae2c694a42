package notify

import (
	"strconv"
	"strings"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/telegram"

	log "github.com/sirupsen/logrus"
)

// NewChannels builds every fully configured channel. Partly configured ones
// are skipped with a warning; none of this is fatal.
func NewChannels(c config.Config) []Channel {
	var channels []Channel

	if missing := c.Mail.Missing(); len(missing) == 0 {
		channels = append(channels, NewMailChannel(c.Mail, c.ChannelTimeout))
	} else if c.Mail.Attempted() {
		log.Warnf("⚠️ Email channel disabled, missing: %s", strings.Join(missing, ", "))
	}

	if tg := newTelegramChannel(c); tg != nil {
		channels = append(channels, tg)
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name()
	}
	log.Infof("Notification channels: [%s]", strings.Join(names, ", "))
	return channels
}

func newTelegramChannel(c config.Config) Channel {
	if missing := c.Telegram.Missing(); len(missing) > 0 {
		if c.Telegram.Attempted() {
			log.Warnf("⚠️ Telegram channel disabled, missing: %s", strings.Join(missing, ", "))
		}
		return nil
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(c.Telegram.ChatID), 10, 64)
	if err != nil {
		log.Warnf("⚠️ Telegram channel disabled, invalid telegram_chat_id %q", c.Telegram.ChatID)
		return nil
	}

	bot := telegram.NewBot(telegram.BotConfig{
		Token:    c.Telegram.Token,
		ChatID:   chatID,
		Debug:    c.Debug,
		Timeout:  c.ChannelTimeout,
		Endpoint: c.Telegram.Endpoint,
	})
	return NewTelegramChannel(bot, chatID)
}

package telegram

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot. Telegram is not contacted here, a bad
// token or an unreachable api shows up on the first send.
func NewBot(c BotConfig) *Bot {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot := &tgbotapi.BotAPI{
		Token:  c.Token,
		Debug:  c.Debug,
		Buffer: 100,
		Client: &http.Client{Timeout: c.Timeout},
	}
	bot.SetAPIEndpoint(endpoint)

	return &Bot{
		Bot:    bot,
		Config: c,
	}
}

// SendMessage sends a MarkdownV2 message, split into several messages when
// it is over the Telegram limit. It stops at the first failed part.
func (b *Bot) SendMessage(ctx context.Context, m Message) error {
	if m.ChatID == 0 {
		m.ChatID = b.Config.ChatID
	}
	parts := SplitMessage(m.Text, "\n\n", MaxMessageLength)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(m.ChatID, part)
		msg.DisableWebPagePreview = true
		msg.ParseMode = "MarkdownV2"
		if err := b.send(ctx, msg); err != nil {
			return errors.Wrapf(err, "could not send message part %d/%d to chat %d", i+1, len(parts), m.ChatID)
		}
	}
	log.Debugf("telegram message sent to chat %d in %d part(s)", m.ChatID, len(parts))
	return nil
}

// TestConnection checks the token by asking Telegram who the bot is.
func (b *Bot) TestConnection() (string, error) {
	me, err := b.Bot.GetMe()
	if err != nil {
		return "", errors.Wrap(err, "telegram getMe failed")
	}
	return me.UserName, nil
}

// send runs the blocking api call and gives up when ctx is done.
func (b *Bot) send(ctx context.Context, msg tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := b.Bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SplitMessage cuts text at sep boundaries so every part fits in limit runes.
// A single section longer than limit is cut hard.
func SplitMessage(text, sep string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, section := range strings.Split(text, sep) {
		for utf8.RuneCountInString(section) > limit {
			flush()
			head, tail := cutRunes(section, limit)
			parts = append(parts, head)
			section = tail
		}

		size := utf8.RuneCountInString(current.String())
		if current.Len() > 0 && size+utf8.RuneCountInString(sep)+utf8.RuneCountInString(section) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(section)
	}
	flush()
	return parts
}

func cutRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

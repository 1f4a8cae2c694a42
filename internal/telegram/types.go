package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is the Telegram limit for one text message.
const MaxMessageLength = 4096

// BotConfig configuration of the bot
type BotConfig struct {
	Token   string
	ChatID  int64
	Debug   bool
	Timeout time.Duration
	// Endpoint overrides tgbotapi.APIEndpoint, used against test servers.
	Endpoint string
}

// botAPI is the part of tgbotapi.BotAPI the bot needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// Bot telegram interaction client
type Bot struct {
	Bot    botAPI
	Config BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID int64
	Text   string
}

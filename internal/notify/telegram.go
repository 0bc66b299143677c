package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"quantbot-go/internal/exception"
)

// Telegram posts notifications to one chat, title and body on separate lines.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

type telegramOptions struct {
	endpoint string
}

// TelegramOption configures NewTelegram.
type TelegramOption func(*telegramOptions)

// WithEndpoint overrides the Bot API endpoint, formatted like tgbotapi.APIEndpoint.
func WithEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) { o.endpoint = endpoint }
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string, chatID int64, log zerolog.Logger, opts ...TelegramOption) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token empty: %w", exception.ErrConfiguration)
	}
	o := telegramOptions{endpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&o)
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, o.endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	bot.Debug = false
	log.Info().Str("@", bot.Self.UserName).Int64("chat", chatID).Msg("telegram connected")
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, title+"\n"+body)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Package notify delivers human-readable trade notifications.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quantbot-go/internal/event"
	"quantbot-go/internal/exception"
)

// Notifier sends one message. Failures are reported to the caller, which logs them.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Log writes notifications to a zerolog logger.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log { return &Log{log: log} }

func (l *Log) Send(_ context.Context, title, body string) error {
	l.log.Info().Str("title", title).Msg(body)
	return nil
}

// Providers accepted by Build.
const (
	ProviderLog      = "log"
	ProviderTelegram = "telegram"
)

// Config selects and parameterizes a notifier.
type Config struct {
	Provider string
	Token    string
	ChatID   string
	Endpoint string
}

// Build returns the notifier for cfg.Provider. An empty provider logs.
func Build(cfg Config, log zerolog.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLog:
		return NewLog(log), nil
	case ProviderTelegram:
		chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", cfg.ChatID, exception.ErrConfiguration)
		}
		var opts []TelegramOption
		if cfg.Endpoint != "" {
			opts = append(opts, WithEndpoint(cfg.Endpoint))
		}
		return NewTelegram(cfg.Token, chatID, log, opts...)
	default:
		return nil, fmt.Errorf("unknown notify provider %q: %w", cfg.Provider, exception.ErrConfiguration)
	}
}

const stampLayout = "2006-01-02 15:04:05"

// ExecutionMessage formats a fill notification.
func ExecutionMessage(e event.Execution) (title, body string) {
	title = fmt.Sprintf("%s - MARKET ORDER", e.Symbol)
	body = fmt.Sprintf("%s - Executed MARKET ORDER %s on %s volume %s at price %s",
		e.FillTime.Format(stampLayout), e.Direction, e.Symbol, num(e.Volume), num(e.FillPrice))
	return title, body
}

// PendingMessage formats a resting-order notification stamped at now.
func PendingMessage(p event.PendingPlaced, now time.Time) (title, body string) {
	title = fmt.Sprintf("%s - PENDING PLACED", p.Symbol)
	body = fmt.Sprintf("%s - Placed PENDING ORDER volume %s for %s %s on %s at price %s",
		now.Format(stampLayout), num(p.Volume), p.Direction, p.TargetOrder, p.Symbol, num(p.TargetPrice))
	return title, body
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

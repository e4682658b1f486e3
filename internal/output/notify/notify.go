// Package notify sends operator messages about scheduled runs to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/process/batch"
)

// Sender is the subset of tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts HTML messages to a single chat.
type Telegram struct {
	api    Sender
	chatID int64
	logger *zerolog.Logger
}

// NewTelegram connects a bot with token. It returns nil when token or chatID
// is unset so callers can skip notifications.
func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil //nolint:nilnil // notifications are optional
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}

	return NewTelegramWithSender(api, chatID, logger), nil
}

// NewTelegramWithSender builds a notifier on an existing sender.
func NewTelegramWithSender(api Sender, chatID int64, logger *zerolog.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, logger: logger}
}

// NotifyBatch sends a one-message summary of a scheduled run.
func (t *Telegram) NotifyBatch(_ context.Context, s batch.Summary) error {
	return t.send(FormatBatchSummary(s))
}

// NotifyText sends text as-is after HTML escaping.
func (t *Telegram) NotifyText(_ context.Context, text string) error {
	return t.send(html.EscapeString(text))
}

func (t *Telegram) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error().Err(err).Int64("chat_id", t.chatID).Msg("failed to send notification")

		return fmt.Errorf("send notification to chat %d: %w", t.chatID, err)
	}

	return nil
}

// FormatBatchSummary renders a run summary as Telegram HTML.
func FormatBatchSummary(s batch.Summary) string {
	var sb strings.Builder

	status := "✅"
	if s.Errors > 0 {
		status = "⚠️"
	}

	fmt.Fprintf(&sb, "%s <b>Pre-market sentiment run</b>\n", status)
	fmt.Fprintf(&sb, "Tickers: %d\n", s.Total)
	fmt.Fprintf(&sb, "Processed: %d\n", s.Processed)
	fmt.Fprintf(&sb, "Skipped (credits): %d\n", s.Skipped)
	fmt.Fprintf(&sb, "Errors: %d\n", s.Errors)
	fmt.Fprintf(&sb, "Duration: %s", s.Duration.Round(time.Second))

	return sb.String()
}

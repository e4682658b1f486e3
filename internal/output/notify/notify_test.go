package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/ticker-sentiment-bot/internal/process/batch"
)

type captureSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (c *captureSender) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	if c.err != nil {
		return tgbotapi.Message{}, c.err
	}

	if msg, ok := m.(tgbotapi.MessageConfig); ok {
		c.sent = append(c.sent, msg)
	}

	return tgbotapi.Message{MessageID: len(c.sent)}, nil
}

func TestNotifyBatch(t *testing.T) {
	logger := zerolog.Nop()
	sender := &captureSender{}
	n := NewTelegramWithSender(sender, 42, &logger)

	err := n.NotifyBatch(context.Background(), batch.Summary{Total: 3, Processed: 2, Errors: 1, Duration: 95 * time.Second})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "⚠️")
	assert.Contains(t, msg.Text, "Processed: 2")
	assert.Contains(t, msg.Text, "Errors: 1")
	assert.Contains(t, msg.Text, "Duration: 1m35s")
}

func TestNotifyTextEscapes(t *testing.T) {
	logger := zerolog.Nop()
	sender := &captureSender{}
	n := NewTelegramWithSender(sender, 1, &logger)

	require.NoError(t, n.NotifyText(context.Background(), "sync failed for <ACME>"))
	assert.Equal(t, "sync failed for &lt;ACME&gt;", sender.sent[0].Text)
}

func TestNotifySendError(t *testing.T) {
	logger := zerolog.Nop()
	n := NewTelegramWithSender(&captureSender{err: errors.New("flood wait")}, 1, &logger)

	assert.Error(t, n.NotifyBatch(context.Background(), batch.Summary{}))
}

func TestNewTelegramDisabled(t *testing.T) {
	logger := zerolog.Nop()

	n, err := NewTelegram("", 0, &logger)
	require.NoError(t, err)
	assert.Nil(t, n)
}

package telegram

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestNotifier_DisabledDropsMessages(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(&config.Config{}, logger.NewWithWriter("debug", &buf))

	assert.False(t, n.Enabled())
	n.Notify("synced 3 rows")
	n.NotifyError("sync", errors.New("boom"))

	assert.Contains(t, buf.String(), "telegram disabled")
}

func TestNotifier_Sends(t *testing.T) {
	bot := &fakeBot{}
	n := &Notifier{bot: bot, chatID: 42, logger: logger.Discard()}

	n.Notify("✅ Sync done")
	n.NotifyError("schedule", errors.New("token rejected"))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, "✅ Sync done", bot.sent[0].Text)
	assert.Equal(t, "⚠️ 오류 [schedule]\ntoken rejected", bot.sent[1].Text)
	assert.Empty(t, bot.sent[1].ParseMode)
}

func TestNotifier_TruncatesLongMessages(t *testing.T) {
	bot := &fakeBot{}
	n := &Notifier{bot: bot, chatID: 1, logger: logger.Discard()}

	n.Notify(strings.Repeat("손익", 3000))

	require.Len(t, bot.sent, 1)
	assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(bot.sent[0].Text))
	assert.True(t, strings.HasSuffix(bot.sent[0].Text, "…"))
}

func TestNotifier_SendErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	bot := &fakeBot{err: errors.New("chat not found")}
	n := &Notifier{bot: bot, chatID: 7, logger: logger.NewWithWriter("info", &buf)}

	n.Notify("hello")

	assert.Contains(t, buf.String(), "chat not found")
}

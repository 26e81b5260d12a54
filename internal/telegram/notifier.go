package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
)

// maxMessageRunes is Telegram's limit on the text of one message.
const maxMessageRunes = 4096

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers sync summaries to one Telegram chat. Delivery is fire
// and forget: failures are logged and never returned.
type Notifier struct {
	bot    sender
	chatID int64
	logger *logger.Logger
}

// NewNotifier connects to the bot configured in cfg. A disabled or
// unreachable bot yields a notifier that only logs.
func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{logger: log}
	}
	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{bot: bot, chatID: cfg.Telegram.ChatID, logger: log}
}

func (n *Notifier) Enabled() bool { return n.bot != nil }

// Notify sends message as plain text, cut to Telegram's length limit.
func (n *Notifier) Notify(message string) {
	n.send(message)
}

func (n *Notifier) NotifyError(context string, err error) {
	n.send(fmt.Sprintf("⚠️ 오류 [%s]\n%v", context, err))
}

func (n *Notifier) send(text string) {
	if n.bot == nil {
		n.logger.Debug("telegram disabled, message dropped", "length", len(text))
		return
	}

	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-1]) + "…"
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("telegram send failed", "chat_id", n.chatID, "error", err)
	}
}

// Package notify sends settlement alerts to Telegram.
//
// telegram.go - Messages are queued and sent from Run so a slow Telegram
// API never holds up a settlement sweep.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hedgebot/internal/types"
)

const queueSize = 64

// sender is the part of *tgbotapi.BotAPI used here
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers markdown messages to a single chat
type Telegram struct {
	api    sender
	chatID int64
	queue  chan string
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")
	return newTelegram(api, chatID), nil
}

func newTelegram(api sender, chatID int64) *Telegram {
	return &Telegram{
		api:    api,
		chatID: chatID,
		queue:  make(chan string, queueSize),
	}
}

// NotifySettlement queues a settlement alert. It never blocks; alerts are
// dropped when the queue is full.
func (t *Telegram) NotifySettlement(s types.Settlement) {
	t.enqueue(FormatSettlement(s))
}

// NotifyStartup queues the startup banner
func (t *Telegram) NotifyStartup(live bool, solConditionID, btcConditionID string) {
	mode := "SIMULATION"
	if live {
		mode = "LIVE"
	}
	t.enqueue(fmt.Sprintf("🟢 *Hedgebot Online*\n\n*Mode:* %s\n*SOL:* `%s`\n*BTC:* `%s`",
		mode, solConditionID, btcConditionID))
}

func (t *Telegram) enqueue(text string) {
	select {
	case t.queue <- text:
	default:
		log.Warn().Msg("⚠️ Telegram queue full, dropping message")
	}
}

// Run sends queued messages until ctx is done
func (t *Telegram) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-t.queue:
			if err := t.sendMarkdown(text); err != nil {
				log.Warn().Err(err).Msg("⚠️ Telegram send failed")
			}
		}
	}
}

func (t *Telegram) sendMarkdown(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := t.api.Send(msg)
	return err
}

// FormatSettlement renders a settlement as a Telegram markdown message
func FormatSettlement(s types.Settlement) string {
	var resultText string
	switch {
	case s.Profit.IsPositive():
		resultText = fmt.Sprintf("✅ WIN: +$%s", s.Profit.StringFixed(2))
	case s.Profit.IsNegative():
		resultText = fmt.Sprintf("❌ LOSS: -$%s", s.Profit.Neg().StringFixed(2))
	default:
		resultText = "➖ FLAT: $0.00"
	}

	return fmt.Sprintf(`🏁 *TRADE SETTLED*

*SOL leg:* %s
*BTC leg:* %s
*Units:* %s
*Invested:* $%s
*Payout:* $%s
*Result:* %s

_ID: %s_`,
		legResult(s.SOLWon),
		legResult(s.BTCWon),
		s.Trade.Units.StringFixed(2),
		s.Trade.Investment.StringFixed(2),
		s.Payout.StringFixed(2),
		resultText,
		escapeMarkdown(s.Trade.ID),
	)
}

func legResult(won bool) string {
	if won {
		return "🟢 won"
	}
	return "🔴 lost"
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

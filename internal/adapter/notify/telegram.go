// Package notify tells merchants about bookings through Telegram.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	bot sender
	log *zap.Logger
}

// NewTelegramNotifier returns a notifier that only logs when token is empty.
func NewTelegramNotifier(token string, log *zap.Logger) (*TelegramNotifier, error) {
	if token == "" {
		log.Warn("telegram bot token is empty, merchant notifications disabled")
		return &TelegramNotifier{log: log}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, log: log}, nil
}

func (n *TelegramNotifier) NotifyBookingPaid(ctx context.Context, merchant *domain.Merchant, booking *domain.Booking) {
	text := fmt.Sprintf(
		"*New paid booking*\n\n"+"Booking: `%s`\n"+"Service: %s\n"+"Amount: %.2f USD\n"+"Stay (UTC): %s - %s",
		booking.ID, booking.ServiceID, booking.PriceUSD,
		booking.CheckIn.UTC().Format("02.01.2006"), booking.CheckOut.UTC().Format("02.01.2006"),
	)
	n.send(ctx, merchant, text)
}

func (n *TelegramNotifier) NotifyBookingRefunded(ctx context.Context, merchant *domain.Merchant, booking *domain.Booking, manual bool) {
	text := fmt.Sprintf("*Booking refunded*\n\n"+"Booking: `%s`\n"+"Amount: %.2f USD", booking.ID, booking.PriceUSD)
	if manual {
		text += "\n\nThe provider has no refund API. Please return the funds manually."
	}
	n.send(ctx, merchant, text)
}

func (n *TelegramNotifier) send(ctx context.Context, merchant *domain.Merchant, text string) {
	if n.bot == nil {
		n.log.Debug("notification skipped (bot disabled)", zap.String("merchant_id", merchant.ID))
		return
	}

	if merchant.TelegramChatID == nil {
		n.log.Debug("notification skipped (no chat_id)", zap.String("merchant_id", merchant.ID))
		return
	}

	if err := ctx.Err(); err != nil {
		n.log.Debug("notification skipped (context cancelled)", zap.Int64("chat_id", *merchant.TelegramChatID))
		return
	}

	msg := tgbotapi.NewMessage(*merchant.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("failed to send telegram notification",
			zap.Int64("chat_id", *merchant.TelegramChatID),
			zap.Error(err),
		)
	}
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
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

func testBooking() *domain.Booking {
	return &domain.Booking{
		ID:        "b1",
		ServiceID: "s1",
		PriceUSD:  99.99,
		CheckIn:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotifyBookingPaid(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, log: zap.NewNop()}
	chatID := int64(42)

	n.NotifyBookingPaid(context.Background(), &domain.Merchant{ID: "m1", TelegramChatID: &chatID}, testBooking())

	require.Len(t, bot.sent, 1)
	assert.Equal(t, chatID, bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "b1")
	assert.Contains(t, bot.sent[0].Text, "99.99 USD")
	assert.Contains(t, bot.sent[0].Text, "15.01.2025 - 20.01.2025")
}

func TestNotifyBookingRefunded_Manual(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, log: zap.NewNop()}
	chatID := int64(42)
	merchant := &domain.Merchant{ID: "m1", TelegramChatID: &chatID}

	n.NotifyBookingRefunded(context.Background(), merchant, testBooking(), true)
	n.NotifyBookingRefunded(context.Background(), merchant, testBooking(), false)

	require.Len(t, bot.sent, 2)
	assert.Contains(t, bot.sent[0].Text, "manually")
	assert.NotContains(t, bot.sent[1].Text, "manually")
}

func TestNotify_Skips(t *testing.T) {
	chatID := int64(42)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		bot      *fakeBot
		merchant *domain.Merchant
		ctx      context.Context
	}{
		{"no chat id", &fakeBot{}, &domain.Merchant{ID: "m1"}, context.Background()},
		{"context cancelled", &fakeBot{}, &domain.Merchant{ID: "m1", TelegramChatID: &chatID}, cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &TelegramNotifier{bot: tt.bot, log: zap.NewNop()}
			n.NotifyBookingPaid(tt.ctx, tt.merchant, testBooking())
			assert.Empty(t, tt.bot.sent)
		})
	}

	disabled, err := NewTelegramNotifier("", zap.NewNop())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		disabled.NotifyBookingPaid(context.Background(), &domain.Merchant{ID: "m1", TelegramChatID: &chatID}, testBooking())
	})
}

func TestNotify_SendErrorIsSwallowed(t *testing.T) {
	bot := &fakeBot{err: errors.New("chat not found")}
	n := &TelegramNotifier{bot: bot, log: zap.NewNop()}
	chatID := int64(42)

	assert.NotPanics(t, func() {
		n.NotifyBookingPaid(context.Background(), &domain.Merchant{ID: "m1", TelegramChatID: &chatID}, testBooking())
	})
	assert.Len(t, bot.sent, 1)
}

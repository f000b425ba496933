package ports

import (
	"context"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

// Locker serialises work on a single key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type MerchantNotifier interface {
	NotifyBookingPaid(ctx context.Context, merchant *domain.Merchant, booking *domain.Booking)
	NotifyBookingRefunded(ctx context.Context, merchant *domain.Merchant, booking *domain.Booking, manual bool)
}

// NFTMinter publishes receipt metadata and mints a token to recipient.
type NFTMinter interface {
	Mint(ctx context.Context, bookingID, recipient string, metadata domain.NFTMetadata) (*domain.TokenRef, error)
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

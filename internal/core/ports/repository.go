package ports

import (
	"context"
	"time"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	// GetActiveBookingByHash returns the non-cancelled booking carrying the fingerprint.
	GetActiveBookingByHash(ctx context.Context, hash string) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, bookingID string, upd domain.BookingUpdate) (*domain.Booking, error)
	GetBookingsByUser(ctx context.Context, userID string) ([]*domain.Booking, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	// GetPaymentByBooking returns the most recently created payment of the booking.
	GetPaymentByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	// ListPaymentsByBooking returns every attempt of the booking, oldest first.
	ListPaymentsByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, paymentID string, upd domain.PaymentUpdate) (*domain.Payment, error)
	// Settle applies both sides of a settlement atomically.
	Settle(ctx context.Context, s domain.Settlement) error
}

type NFTRepository interface {
	CreateNFT(ctx context.Context, nft *domain.NFT) error
	GetNFT(ctx context.Context, nftID string) (*domain.NFT, error)
	GetNFTByBooking(ctx context.Context, bookingID string) (*domain.NFT, error)
	MarkNFTBurned(ctx context.Context, nftID string, at time.Time) (*domain.NFT, error)
}

type ReferenceRepository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
	GetService(ctx context.Context, serviceID string) (*domain.Service, error)
}

type WebhookLogRepository interface {
	CreateWebhookLog(ctx context.Context, log *domain.WebhookLog) error
}

type Store interface {
	BookingRepository
	PaymentRepository
	NFTRepository
	ReferenceRepository
	WebhookLogRepository
}

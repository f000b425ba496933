package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/ports"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

// cardCurrencies are the settlement currencies the card provider can charge in.
var cardCurrencies = []string{"THB", "USD", "SGD", "JPY"}

type CreateBookingResponse struct {
	BookingID      string                 `json:"bookingId"`
	Status         domain.BookingStatus   `json:"status"`
	PaymentOptions []domain.PaymentOption `json:"paymentOptions"`
	Duplicate      bool                   `json:"duplicate,omitempty"`
}

// ProviderCatalog lists the payment providers currently configured.
type ProviderCatalog interface {
	Providers() []domain.Provider
}

// BookingCanceller performs the guarded pending -> cancelled transition.
type BookingCanceller interface {
	CancelBooking(ctx context.Context, bookingID string) error
}

type BookingService struct {
	bookingRepo ports.BookingRepository
	refRepo     ports.ReferenceRepository
	catalog     ProviderCatalog
	canceller   BookingCanceller
	cipher      ports.Cipher
	events      ports.EventPublisher
	nftEnabled  bool
	log         *zap.Logger
}

func NewBookingService(
	bookingRepo ports.BookingRepository,
	refRepo ports.ReferenceRepository,
	catalog ProviderCatalog,
	canceller BookingCanceller,
	cipher ports.Cipher,
	events ports.EventPublisher,
	nftEnabled bool,
	log *zap.Logger,
) *BookingService {
	return &BookingService{
		bookingRepo: bookingRepo,
		refRepo:     refRepo,
		catalog:     catalog,
		canceller:   canceller,
		cipher:      cipher,
		events:      events,
		nftEnabled:  nftEnabled,
		log:         log,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, in domain.CreateBookingInput) (*CreateBookingResponse, error) {
	if err := validateBookingInput(in); err != nil {
		return nil, err
	}

	merchant := s.merchantProfile(ctx, in.MerchantID)
	options := s.PaymentOptions(merchant, in.WalletAddress)

	hash := crypto.Fingerprint(in.UserID, in.ServiceID, in.CheckIn, in.CheckOut)
	if existing, err := s.bookingRepo.GetActiveBookingByHash(ctx, hash); err == nil {
		s.log.Info("duplicate booking submission", zap.String("booking_id", existing.ID))
		return &CreateBookingResponse{
			BookingID:      existing.ID,
			Status:         existing.Status,
			PaymentOptions: options,
			Duplicate:      true,
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup booking hash: %w", err)
	}

	var encryptedWallet string
	if in.WalletAddress != "" {
		enc, err := s.cipher.Encrypt(in.WalletAddress)
		if err != nil {
			return nil, fmt.Errorf("encrypt wallet: %w", err)
		}
		encryptedWallet = enc
	}

	now := time.Now().UTC()
	booking := &domain.Booking{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		ServiceID:       in.ServiceID,
		MerchantID:      in.MerchantID,
		PriceUSD:        in.PriceUSD,
		Status:          domain.BookingPending,
		BookingHash:     hash,
		CheckIn:         in.CheckIn.UTC(),
		CheckOut:        in.CheckOut.UTC(),
		EncryptedWallet: encryptedWallet,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.bookingRepo.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with an identical submission.
			if existing, lookupErr := s.bookingRepo.GetActiveBookingByHash(ctx, hash); lookupErr == nil {
				return &CreateBookingResponse{
					BookingID:      existing.ID,
					Status:         existing.Status,
					PaymentOptions: options,
					Duplicate:      true,
				}, nil
			}
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.log.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("merchant_id", booking.MerchantID),
		zap.Float64("price_usd", booking.PriceUSD),
	)
	publish(ctx, s.events, s.log, "booking.created", map[string]any{
		"booking_id":  booking.ID,
		"user_id":     booking.UserID,
		"merchant_id": booking.MerchantID,
		"price_usd":   booking.PriceUSD,
	})

	return &CreateBookingResponse{
		BookingID:      booking.ID,
		Status:         booking.Status,
		PaymentOptions: options,
	}, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.bookingRepo.GetBooking(ctx, bookingID)
}

func (s *BookingService) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	return s.bookingRepo.GetBookingsByUser(ctx, userID)
}

// CancelBooking only covers pending bookings. Paid bookings are cancelled
// through a refund.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID string) error {
	return s.canceller.CancelBooking(ctx, bookingID)
}

// PaymentOptions derives the checkout choices from the merchant's flags and
// the configured providers, in registration order.
func (s *BookingService) PaymentOptions(merchant *domain.Merchant, walletAddress string) []domain.PaymentOption {
	nftReceipt := merchant.AcceptNFTs && s.nftEnabled && walletAddress != ""

	options := make([]domain.PaymentOption, 0, 3)
	for _, p := range s.catalog.Providers() {
		switch p {
		case domain.ProviderPayPal:
			label := "Pay with PayPal"
			if merchant.AcceptPYUSD {
				label = "Pay with PayPal (PYUSD)"
			}
			options = append(options, domain.PaymentOption{Provider: p, Label: label, NFTReceipt: nftReceipt})
		case domain.ProviderNOWPayments:
			if merchant.AcceptPYUSD {
				options = append(options, domain.PaymentOption{Provider: p, Label: "Pay with Crypto", NFTReceipt: nftReceipt})
			}
		case domain.ProviderOmise:
			if merchant.SettlesIn(cardCurrencies...) {
				options = append(options, domain.PaymentOption{Provider: p, Label: "Pay with Card", NFTReceipt: nftReceipt})
			}
		}
	}
	return options
}

func (s *BookingService) merchantProfile(ctx context.Context, merchantID string) *domain.Merchant {
	m, err := s.refRepo.GetMerchant(ctx, merchantID)
	if err == nil {
		return m
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("merchant lookup failed, using default profile", zap.String("merchant_id", merchantID), zap.Error(err))
	} else {
		s.log.Warn("unknown merchant, using default profile", zap.String("merchant_id", merchantID))
	}
	return domain.DefaultMerchant(merchantID)
}

func validateBookingInput(in domain.CreateBookingInput) error {
	var missing []string
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(in.ServiceID) == "" {
		missing = append(missing, "serviceId")
	}
	if strings.TrimSpace(in.MerchantID) == "" {
		missing = append(missing, "merchantId")
	}
	if in.CheckIn.IsZero() {
		missing = append(missing, "checkIn")
	}
	if in.CheckOut.IsZero() {
		missing = append(missing, "checkOut")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}

	if in.PriceUSD <= 0 {
		return fmt.Errorf("%w: priceUsd must be positive", domain.ErrValidation)
	}
	if !in.CheckOut.After(in.CheckIn) {
		return fmt.Errorf("%w: checkOut must be after checkIn", domain.ErrValidation)
	}
	return nil
}

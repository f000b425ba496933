package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/ports"
)

type NFTService struct {
	store   ports.Store
	minter  ports.NFTMinter
	locker  ports.Locker
	cipher  ports.Cipher
	events  ports.EventPublisher
	enabled bool
	log     *zap.Logger
}

func NewNFTService(
	store ports.Store,
	minter ports.NFTMinter,
	locker ports.Locker,
	cipher ports.Cipher,
	events ports.EventPublisher,
	enabled bool,
	log *zap.Logger,
) *NFTService {
	return &NFTService{
		store:   store,
		minter:  minter,
		locker:  locker,
		cipher:  cipher,
		events:  events,
		enabled: enabled,
		log:     log,
	}
}

func (s *NFTService) Enabled() bool { return s.enabled }

// MintForBooking mints the receipt for a paid booking. recipient overrides
// the wallet captured at booking time when non-empty.
func (s *NFTService) MintForBooking(ctx context.Context, bookingID, recipient string) (*domain.NFT, error) {
	if !s.enabled {
		return nil, domain.ErrNFTDisabled
	}

	unlock, err := s.locker.Lock(ctx, bookingLockKey(bookingID))
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	defer unlock()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.HasBeenPaid() {
		return nil, domain.ErrNotEligibleForNFT
	}

	if _, err := s.store.GetNFTByBooking(ctx, bookingID); err == nil {
		return nil, domain.ErrNFTAlreadyMinted
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup nft: %w", err)
	}

	if recipient == "" {
		if !booking.HasWallet() {
			return nil, fmt.Errorf("%w: no wallet address for booking", domain.ErrValidation)
		}
		recipient, err = s.cipher.Decrypt(booking.EncryptedWallet)
		if err != nil {
			return nil, fmt.Errorf("decrypt wallet: %w", err)
		}
	}

	ref, err := s.minter.Mint(ctx, bookingID, recipient, s.metadata(ctx, booking))
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	now := time.Now().UTC()
	nft := &domain.NFT{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		TokenID:     ref.TokenID,
		TokenURI:    ref.TokenURI,
		Chain:       ref.Chain,
		MintTx:      ref.MintTx,
		MetadataCID: ref.MetadataCID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateNFT(ctx, nft); err != nil {
		return nil, fmt.Errorf("store nft: %w", err)
	}

	s.log.Info("nft minted",
		zap.String("booking_id", bookingID),
		zap.String("token_id", nft.TokenID),
		zap.String("chain", nft.Chain),
	)
	publish(ctx, s.events, s.log, "nft.minted", map[string]any{
		"booking_id": bookingID,
		"nft_id":     nft.ID,
		"token_id":   nft.TokenID,
		"chain":      nft.Chain,
		"mint_tx":    nft.MintTx,
	})

	return nft, nil
}

func (s *NFTService) GetByBooking(ctx context.Context, bookingID string) (*domain.NFT, error) {
	return s.store.GetNFTByBooking(ctx, bookingID)
}

// Burn sets the burn marker. Burning an already burned token is a no-op.
func (s *NFTService) Burn(ctx context.Context, nftID string) (*domain.NFT, error) {
	nft, err := s.store.GetNFT(ctx, nftID)
	if err != nil {
		return nil, err
	}
	if nft.Burned {
		return nft, nil
	}

	burned, err := s.store.MarkNFTBurned(ctx, nftID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("burn nft: %w", err)
	}
	s.log.Info("nft burned", zap.String("nft_id", nftID), zap.String("booking_id", burned.BookingID))
	return burned, nil
}

func (s *NFTService) metadata(ctx context.Context, b *domain.Booking) domain.NFTMetadata {
	title := "Booking " + b.ServiceID
	if svc, err := s.store.GetService(ctx, b.ServiceID); err == nil && svc.Title != "" {
		title = svc.Title
	}

	return domain.NFTMetadata{
		Name:        fmt.Sprintf("%s receipt", title),
		Description: fmt.Sprintf("Proof of booking %s", b.ID),
		Attributes: []domain.NFTAttribute{
			{TraitType: "Booking ID", Value: b.ID},
			{TraitType: "Service", Value: b.ServiceID},
			{TraitType: "Merchant", Value: b.MerchantID},
			{TraitType: "Check-in", Value: b.CheckIn.Format(time.DateOnly)},
			{TraitType: "Check-out", Value: b.CheckOut.Format(time.DateOnly)},
			{TraitType: "Price (USD)", Value: strconv.FormatFloat(b.PriceUSD, 'f', 2, 64)},
		},
	}
}

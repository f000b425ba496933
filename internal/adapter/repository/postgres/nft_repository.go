package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

const nftColumns = `id, booking_id, token_id, token_uri, chain, mint_tx, metadata_cid, burned, burned_at, created_at, updated_at`

type NFTRepository struct {
	db *sqlx.DB
}

func NewNFTRepository(db *sqlx.DB) *NFTRepository {
	return &NFTRepository{db: db}
}

func (r *NFTRepository) CreateNFT(ctx context.Context, nft *domain.NFT) error {
	query := `
	INSERT INTO nfts (id, booking_id, token_id, token_uri, chain, mint_tx, metadata_cid)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		nft.ID, nft.BookingID, nft.TokenID, nft.TokenURI, nft.Chain, nft.MintTx, nft.MetadataCID,
	).Scan(&nft.CreatedAt, &nft.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "nfts_booking_idx" {
				return domain.ErrNFTAlreadyMinted
			}
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert nft: %w", err)
	}

	return nil
}

func (r *NFTRepository) GetNFT(ctx context.Context, nftID string) (*domain.NFT, error) {
	return r.getOne(ctx, `SELECT `+nftColumns+` FROM nfts WHERE id = $1`, nftID)
}

func (r *NFTRepository) GetNFTByBooking(ctx context.Context, bookingID string) (*domain.NFT, error) {
	return r.getOne(ctx, `SELECT `+nftColumns+` FROM nfts WHERE booking_id = $1`, bookingID)
}

// MarkNFTBurned keeps the first burn time when called again.
func (r *NFTRepository) MarkNFTBurned(ctx context.Context, nftID string, at time.Time) (*domain.NFT, error) {
	query := `
	UPDATE nfts
	SET burned = TRUE,
		burned_at = COALESCE(burned_at, $1),
		updated_at = NOW()
	WHERE id = $2
	RETURNING ` + nftColumns

	return r.getOne(ctx, query, at.UTC(), nftID)
}

func (r *NFTRepository) getOne(ctx context.Context, query string, args ...any) (*domain.NFT, error) {
	var n domain.NFT
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNFTNotFound
		}
		return nil, err
	}

	return &n, nil
}

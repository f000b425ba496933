package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

// ReferenceRepository reads users, merchants and services. Those tables are
// owned by the wider platform and are never written here.
type ReferenceRepository struct {
	db *sqlx.DB
}

func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
	SELECT id, email, encrypted_name, kyc_status, default_wallet_address, created_at, updated_at
	FROM users WHERE id = $1
	`

	var u domain.User
	if err := r.db.GetContext(ctx, &u, query, userID); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &u, nil
}

func (r *ReferenceRepository) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	query := `
	SELECT id, name, paypal_merchant_id, settlement_currency, accept_pyusd, accept_nfts,
		telegram_chat_id, created_at, updated_at
	FROM merchants WHERE id = $1
	`

	var m domain.Merchant
	if err := r.db.GetContext(ctx, &m, query, merchantID); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMerchantNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (r *ReferenceRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	query := `
	SELECT id, merchant_id, title, description, base_price_usd, created_at, updated_at
	FROM services WHERE id = $1
	`

	var svc domain.Service
	if err := r.db.GetContext(ctx, &svc, query, serviceID); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &svc, nil
}

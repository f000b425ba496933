package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

const bookingColumns = `id, user_id, service_id, merchant_id, price_usd, status, booking_hash,
	check_in, check_out, encrypted_wallet, version, created_at, updated_at`

type BookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	query := `
	INSERT INTO bookings (id, user_id, service_id, merchant_id, price_usd, status, booking_hash,
		check_in, check_out, encrypted_wallet, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	RETURNING version, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.ServiceID, booking.MerchantID, booking.PriceUSD,
		booking.Status, booking.BookingHash, booking.CheckIn.UTC(), booking.CheckOut.UTC(),
		booking.EncryptedWallet,
	).Scan(&booking.Version, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	return nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID)
}

func (r *BookingRepository) GetActiveBookingByHash(ctx context.Context, hash string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_hash = $1 AND status <> 'cancelled'`, hash)
}

func (r *BookingRepository) UpdateBooking(ctx context.Context, bookingID string, upd domain.BookingUpdate) (*domain.Booking, error) {
	query := `
	UPDATE bookings
	SET status = COALESCE($1, status),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $2
	RETURNING ` + bookingColumns

	return r.getOne(ctx, query, upd.Status, bookingID)
}

func (r *BookingRepository) GetBookingsByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`

	var bookings []*domain.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}

	return &b, nil
}

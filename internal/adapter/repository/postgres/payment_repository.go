package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

const paymentColumns = `id, booking_id, provider, provider_payment_id, amount_usd, currency, status,
	captured_at, raw_response, refund_reference, manual_refund, created_at, updated_at`

const updatePaymentSet = `
	SET status = COALESCE($1, status),
		captured_at = COALESCE($2, captured_at),
		raw_response = COALESCE($3::jsonb, raw_response),
		refund_reference = COALESCE($4, refund_reference),
		manual_refund = COALESCE($5, manual_refund),
		updated_at = NOW()
	WHERE id = $6`

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
	INSERT INTO payments (id, booking_id, provider, provider_payment_id, amount_usd, currency, status,
		captured_at, raw_response)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::jsonb, '{}'))
	RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		payment.ID, payment.BookingID, payment.Provider, payment.ProviderPaymentID, payment.AmountUSD,
		payment.Currency, payment.Status, payment.CapturedAt, jsonArg(payment.RawResponse),
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
}

func (r *PaymentRepository) GetPaymentByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.getOne(ctx, query, bookingID)
}

func (r *PaymentRepository) ListPaymentsByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at, id`

	var payments []*domain.Payment
	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

func (r *PaymentRepository) GetPaymentByProviderRef(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error) {
	if providerPaymentID == "" {
		return nil, domain.ErrPaymentNotFound
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_payment_id = $2 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, provider, providerPaymentID)
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, paymentID string, upd domain.PaymentUpdate) (*domain.Payment, error) {
	query := `UPDATE payments` + updatePaymentSet + ` RETURNING ` + paymentColumns
	return r.getOne(ctx, query, paymentUpdateArgs(paymentID, upd)...)
}

// Settle locks the booking row, and the payment row when one is named,
// checks both guards and only then writes.
func (r *PaymentRepository) Settle(ctx context.Context, s domain.Settlement) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	var bookingStatus domain.BookingStatus
	err = tx.QueryRowxContext(ctx, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, s.BookingID).Scan(&bookingStatus)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrBookingNotFound
		}
		return fmt.Errorf("failed to lock booking: %w", err)
	}
	if len(s.BookingFrom) > 0 && !slices.Contains(s.BookingFrom, bookingStatus) {
		return domain.ErrStaleState
	}

	if s.PaymentID != "" {
		var owner string
		var paymentStatus domain.PaymentStatus
		err = tx.QueryRowxContext(ctx, `SELECT booking_id, status FROM payments WHERE id = $1 FOR UPDATE`, s.PaymentID).Scan(&owner, &paymentStatus)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrPaymentNotFound
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if owner != s.BookingID {
			return domain.ErrStaleState
		}
		if len(s.PaymentFrom) > 0 && !slices.Contains(s.PaymentFrom, paymentStatus) {
			return domain.ErrStaleState
		}
	}

	if s.BookingTo != nil {
		query := `UPDATE bookings SET status = $1, version = version + 1, updated_at = NOW() WHERE id = $2`
		if _, err := tx.ExecContext(ctx, query, *s.BookingTo, s.BookingID); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
	}

	if s.PaymentID != "" {
		query := `UPDATE payments` + updatePaymentSet
		if _, err := tx.ExecContext(ctx, query, paymentUpdateArgs(s.PaymentID, s.Payment)...); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}

	return nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

func paymentUpdateArgs(paymentID string, upd domain.PaymentUpdate) []any {
	return []any{upd.Status, upd.CapturedAt, jsonArg(upd.RawResponse), upd.RefundReference, upd.ManualRefund, paymentID}
}

package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooking(t *testing.T, s *Store, id, hash string, status domain.BookingStatus) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		ID:          id,
		UserID:      "u1",
		ServiceID:   "s1",
		MerchantID:  "m1",
		PriceUSD:    99.99,
		Status:      status,
		BookingHash: hash,
		CheckIn:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateBooking(context.Background(), b))
	return b
}

func seedPayment(t *testing.T, s *Store, id, bookingID string, status domain.PaymentStatus) {
	t.Helper()
	require.NoError(t, s.CreatePayment(context.Background(), &domain.Payment{
		ID:                id,
		BookingID:         bookingID,
		Provider:          domain.ProviderNOWPayments,
		ProviderPaymentID: "np-" + id,
		AmountUSD:         99.99,
		Currency:          "USD",
		Status:            status,
	}))
}

func TestStore_BookingLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBooking(t, s, "b1", "h1", domain.BookingPending)

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.UpdatedAt.IsZero())

	got.Status = domain.BookingPaid
	again, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, again.Status, "reads return copies")

	paid := domain.BookingPaid
	updated, err := s.UpdateBooking(ctx, "b1", domain.BookingUpdate{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaid, updated.Status)
	assert.Equal(t, 2, updated.Version)

	_, err = s.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DuplicateHash(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBooking(t, s, "b1", "h1", domain.BookingPending)

	err := s.CreateBooking(ctx, &domain.Booking{ID: "b2", BookingHash: "h1", Status: domain.BookingPending})
	assert.ErrorIs(t, err, domain.ErrConflict)

	existing, err := s.GetActiveBookingByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "b1", existing.ID)

	cancelled := domain.BookingCancelled
	_, err = s.UpdateBooking(ctx, "b1", domain.BookingUpdate{Status: &cancelled})
	require.NoError(t, err)

	_, err = s.GetActiveBookingByHash(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, s.CreateBooking(ctx, &domain.Booking{ID: "b2", BookingHash: "h1", Status: domain.BookingPending}))
}

func TestStore_ActivePaymentIsMostRecent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBooking(t, s, "b1", "h1", domain.BookingPending)
	seedPayment(t, s, "p1", "b1", domain.PaymentFailed)
	seedPayment(t, s, "p2", "b1", domain.PaymentPending)

	active, err := s.GetPaymentByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "p2", active.ID)

	byRef, err := s.GetPaymentByProviderRef(ctx, domain.ProviderNOWPayments, "np-p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", byRef.ID)

	all, err := s.ListPaymentsByBooking(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].ID)

	_, err = s.GetPaymentByBooking(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestStore_SettleAppliesBothSides(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBooking(t, s, "b1", "h1", domain.BookingPending)
	seedPayment(t, s, "p1", "b1", domain.PaymentPending)

	paid := domain.BookingPaid
	completed := domain.PaymentCompleted
	now := time.Now().UTC()

	err := s.Settle(ctx, domain.Settlement{
		BookingID:   "b1",
		BookingFrom: []domain.BookingStatus{domain.BookingPending},
		BookingTo:   &paid,
		PaymentID:   "p1",
		PaymentFrom: []domain.PaymentStatus{domain.PaymentPending},
		Payment: domain.PaymentUpdate{
			Status:      &completed,
			CapturedAt:  &now,
			RawResponse: json.RawMessage(`{"payment_status":"finished"}`),
		},
	})
	require.NoError(t, err)

	b, _ := s.GetBooking(ctx, "b1")
	p, _ := s.GetPayment(ctx, "p1")
	assert.Equal(t, domain.BookingPaid, b.Status)
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	assert.NotNil(t, p.CapturedAt)
	assert.JSONEq(t, `{"payment_status":"finished"}`, string(p.RawResponse))
}

func TestStore_SettleGuardMissLeavesBothUntouched(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedBooking(t, s, "b1", "h1", domain.BookingPending)
	seedPayment(t, s, "p1", "b1", domain.PaymentFailed)

	paid := domain.BookingPaid
	completed := domain.PaymentCompleted

	err := s.Settle(ctx, domain.Settlement{
		BookingID:   "b1",
		BookingFrom: []domain.BookingStatus{domain.BookingPending},
		BookingTo:   &paid,
		PaymentID:   "p1",
		PaymentFrom: []domain.PaymentStatus{domain.PaymentPending},
		Payment:     domain.PaymentUpdate{Status: &completed},
	})
	assert.ErrorIs(t, err, domain.ErrStaleState)

	b, _ := s.GetBooking(ctx, "b1")
	p, _ := s.GetPayment(ctx, "p1")
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, 1, b.Version)
	assert.Equal(t, domain.PaymentFailed, p.Status)
}

func TestStore_OneNFTPerBooking(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateNFT(ctx, &domain.NFT{ID: "n1", BookingID: "b1", TokenID: "1"}))
	err := s.CreateNFT(ctx, &domain.NFT{ID: "n2", BookingID: "b1", TokenID: "2"})
	assert.ErrorIs(t, err, domain.ErrNFTAlreadyMinted)

	at := time.Now().UTC()
	burned, err := s.MarkNFTBurned(ctx, "n1", at)
	require.NoError(t, err)
	assert.True(t, burned.Burned)
	assert.Equal(t, at, *burned.BurnedAt)

	_, err = s.MarkNFTBurned(ctx, "missing", at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_WebhookLogsAndReference(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateWebhookLog(ctx, &domain.WebhookLog{ID: "w1", Provider: domain.ProviderPayPal, Payload: []byte("{}")}))
	logs := s.WebhookLogs()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Verified)

	s.PutMerchant(domain.Merchant{ID: "m1", AcceptNFTs: true})
	m, err := s.GetMerchant(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.AcceptNFTs)

	_, err = s.GetMerchant(ctx, "m2")
	assert.ErrorIs(t, err, domain.ErrMerchantNotFound)
}

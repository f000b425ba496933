package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/adapter/gateway/nowpayments"
	"github.com/srgjo27/defi_booking/internal/adapter/lock/memlock"
	"github.com/srgjo27/defi_booking/internal/adapter/repository/memory"
	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/ports"
	"github.com/srgjo27/defi_booking/internal/core/ports/mocks"
	"github.com/srgjo27/defi_booking/internal/core/services"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

const ipnSecret = "ipn-secret"

type eventLog struct {
	mu   sync.Mutex
	keys []string
}

func (e *eventLog) add(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
}

func (e *eventLog) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, k := range e.keys {
		if k == key {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *memory.Store
	payments *services.PaymentService
	orch     *services.OrchestrationService
	bookings *services.BookingService
	nfts     *services.NFTService
	notifier *mocks.MerchantNotifier
	minter   *mocks.NFTMinter
	events   *eventLog
}

func newFixture(t *testing.T, nftEnabled bool, gateways ...ports.ProviderGateway) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewStore(),
		payments: services.NewPaymentService(time.Second, gateways...),
		notifier: mocks.NewMerchantNotifier(t),
		minter:   mocks.NewNFTMinter(t),
		events:   &eventLog{},
	}

	publisher := mocks.NewEventPublisher(t)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { f.events.add(args.String(1)) }).
		Return(nil).Maybe()
	f.notifier.On("NotifyBookingPaid", mock.Anything, mock.Anything, mock.Anything).Maybe()
	f.notifier.On("NotifyBookingRefunded", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()

	cipher := newCipher(t)
	locker := memlock.New()
	log := zap.NewNop()

	f.nfts = services.NewNFTService(f.store, f.minter, locker, cipher, publisher, nftEnabled, log)
	f.orch = services.NewOrchestrationService(f.store, f.payments, locker, publisher, f.notifier, f.nfts, log)
	f.bookings = services.NewBookingService(f.store, f.store, f.payments, f.orch, cipher, publisher, nftEnabled, log)
	return f
}

func (f *fixture) createBooking(t *testing.T, userID, wallet string) string {
	t.Helper()
	in := validInput()
	in.UserID = userID
	in.WalletAddress = wallet
	resp, err := f.bookings.CreateBooking(context.Background(), in)
	require.NoError(t, err)
	return resp.BookingID
}

func (f *fixture) bookingStatus(t *testing.T, id string) domain.BookingStatus {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func (f *fixture) payment(t *testing.T, id string) *domain.Payment {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

// newNOWPaymentsServer hands out sequential payment ids starting at 5077125051.
func newNOWPaymentsServer(t *testing.T) *httptest.Server {
	t.Helper()
	var next atomic.Int64
	next.Store(5077125050)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		id := next.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"payment_id":%d,"payment_status":"waiting","order_id":%q,"invoice_url":"https://nowpayments.io/payment/?iid=%d"}`, id, req.OrderID, id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newNOWPayments(t *testing.T) *nowpayments.Gateway {
	srv := newNOWPaymentsServer(t)
	return nowpayments.New(nowpayments.Config{
		APIKey:      "np-key",
		IPNSecret:   ipnSecret,
		BaseURL:     srv.URL,
		PayCurrency: "pyusd",
	}, srv.Client())
}

func signedIPN(bookingID, status string) ([]byte, http.Header) {
	return signedIPNFor(bookingID, "5077125051", status)
}

func signedIPNFor(bookingID, paymentID, status string) ([]byte, http.Header) {
	raw := []byte(fmt.Sprintf(`{"payment_id":%s,"payment_status":%q,"order_id":%q,"price_amount":99.99}`, paymentID, status, bookingID))
	h := http.Header{}
	h.Set(nowpayments.SignatureHeader, crypto.Sign(crypto.HMACSHA512Hex, raw, ipnSecret))
	return raw, h
}

func TestOrchestration_CryptoBookingLifecycle(t *testing.T) {
	f := newFixture(t, false, newGateway(t, domain.ProviderPayPal), newNOWPayments(t))
	ctx := context.Background()

	created, err := f.bookings.CreateBooking(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, created.Status)
	assert.Len(t, created.PaymentOptions, 2)
	bookingID := created.BookingID

	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, "crypto", 99.99)
	require.NoError(t, err)
	assert.Equal(t, "https://nowpayments.io/payment/?iid=5077125051", pay.PaymentURL)
	assert.Equal(t, domain.ProviderNOWPayments, pay.Provider)
	assert.Equal(t, domain.PaymentPending, f.payment(t, pay.PaymentID).Status)

	raw, header := signedIPN(bookingID, "finished")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaid, res.BookingStatus)
	assert.Equal(t, domain.PaymentCompleted, res.Status)
	assert.False(t, res.Duplicate)

	assert.Equal(t, domain.BookingPaid, f.bookingStatus(t, bookingID))
	paid := f.payment(t, pay.PaymentID)
	assert.Equal(t, domain.PaymentCompleted, paid.Status)
	require.NotNil(t, paid.CapturedAt)

	again, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, domain.BookingPaid, f.bookingStatus(t, bookingID))
	assert.Equal(t, 1, f.events.count("payment.completed"))
	f.notifier.AssertNumberOfCalls(t, "NotifyBookingPaid", 1)

	refund, err := f.orch.RefundBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.True(t, refund.Success)
	assert.True(t, refund.ManualFollowUp)
	assert.Equal(t, "manual:5077125051", refund.Reference)

	assert.Equal(t, domain.BookingCancelled, f.bookingStatus(t, bookingID))
	refunded := f.payment(t, pay.PaymentID)
	assert.Equal(t, domain.PaymentRefunded, refunded.Status)
	assert.True(t, refunded.ManualRefund)
	f.notifier.AssertCalled(t, "NotifyBookingRefunded", mock.Anything, mock.Anything, mock.Anything, true)

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Verified)
}

func TestOrchestration_DuplicateWebhookMintsOnce(t *testing.T) {
	f := newFixture(t, true, newNOWPayments(t))
	ctx := context.Background()
	f.store.PutMerchant(domain.Merchant{ID: "m1", SettlementCurrency: "USD", AcceptPYUSD: true, AcceptNFTs: true})

	bookingID := f.createBooking(t, "u1", "0xabc")
	_, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	f.minter.On("Mint", mock.Anything, bookingID, "0xabc", mock.AnythingOfType("domain.NFTMetadata")).
		Return(&domain.TokenRef{TokenID: "1", TokenURI: "ipfs://cid", Chain: "polygon", MintTx: "0x1", MetadataCID: "cid"}, nil).
		Once()

	raw, header := signedIPN(bookingID, "finished")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	nft, err := f.store.GetNFTByBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, "1", nft.TokenID)
	assert.Equal(t, 1, f.events.count("payment.completed"))
	assert.Equal(t, 1, f.events.count("nft.minted"))

	refund, err := f.orch.RefundBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.True(t, refund.Success)

	burned, err := f.store.GetNFTByBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.True(t, burned.Burned)
}

func TestOrchestration_MintFailureDoesNotFailWebhook(t *testing.T) {
	f := newFixture(t, true, newNOWPayments(t))
	ctx := context.Background()
	f.store.PutMerchant(domain.Merchant{ID: "m1", SettlementCurrency: "USD", AcceptPYUSD: true, AcceptNFTs: true})

	bookingID := f.createBooking(t, "u1", "0xabc")
	_, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	f.minter.On("Mint", mock.Anything, bookingID, "0xabc", mock.Anything).
		Return(nil, fmt.Errorf("ipfs upload returned 503"))

	raw, header := signedIPN(bookingID, "finished")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaid, res.BookingStatus)

	_, err = f.store.GetNFTByBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrchestration_UnauthenticatedWebhookNeverMutates(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	bookingID := f.createBooking(t, "u1", "")
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	raw, _ := signedIPN(bookingID, "finished")
	forged := http.Header{}
	forged.Set(nowpayments.SignatureHeader, crypto.Sign(crypto.HMACSHA512Hex, raw, "wrong-secret"))

	tampered, header := signedIPN(bookingID, "finished")
	tampered = append(tampered, ' ')

	tests := []struct {
		name   string
		raw    []byte
		header http.Header
	}{
		{"missing signature", raw, http.Header{}},
		{"wrong secret", raw, forged},
		{"body changed after signing", tampered, header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", tt.raw, tt.header)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
			assert.Equal(t, domain.BookingPending, f.bookingStatus(t, bookingID))
			assert.Equal(t, domain.PaymentPending, f.payment(t, pay.PaymentID).Status)
		})
	}

	logs := f.store.WebhookLogs()
	require.Len(t, logs, len(tests))
	for _, l := range logs {
		assert.False(t, l.Verified)
	}
}

func TestOrchestration_WebhookRejections(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	_, err := f.orch.HandlePaymentWebhook(ctx, "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	raw, header := signedIPN("missing-booking", "teleported")
	_, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	assert.ErrorIs(t, err, domain.ErrUnrecognizedPayload)

	bookingID := f.createBooking(t, "u1", "")
	raw, header = signedIPN(bookingID, "teleported")
	_, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	assert.ErrorIs(t, err, domain.ErrUnrecognizedPayload)
}

func TestOrchestration_UncorrelatedWebhookIsAcknowledged(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	raw, header := signedIPN("missing-booking", "finished")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err, "a verified delivery is acknowledged so the provider stops retrying")
	assert.True(t, res.Orphaned)
	assert.Equal(t, "missing-booking", res.BookingID)

	bookingID := f.createBooking(t, "u1", "")
	raw, header = signedIPN(bookingID, "finished")
	res, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.True(t, res.Orphaned, "no payment was ever initiated")
	assert.Equal(t, domain.BookingPending, res.BookingStatus)
	assert.Equal(t, domain.BookingPending, f.bookingStatus(t, bookingID))

	assert.Equal(t, 2, f.events.count("payment.orphaned"))
	assert.Len(t, f.store.WebhookLogs(), 2)
	f.notifier.AssertNotCalled(t, "NotifyBookingPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestration_ProviderPaymentOfAnotherBookingIsRejected(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	first := f.createBooking(t, "u1", "")
	second := f.createBooking(t, "u2", "")
	firstPay, err := f.orch.ProcessBookingPayment(ctx, first, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)
	secondPay, err := f.orch.ProcessBookingPayment(ctx, second, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	raw, header := signedIPNFor(second, firstPay.ProviderPaymentID, "finished")
	_, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	assert.ErrorIs(t, err, domain.ErrUnrecognizedPayload)

	assert.Equal(t, domain.BookingPending, f.bookingStatus(t, first))
	assert.Equal(t, domain.BookingPending, f.bookingStatus(t, second))
	assert.Equal(t, domain.PaymentPending, f.payment(t, firstPay.PaymentID).Status)
	assert.Equal(t, domain.PaymentPending, f.payment(t, secondPay.PaymentID).Status)
	assert.Zero(t, f.events.count("payment.completed"))
}

func TestOrchestration_ProviderSideRefundIsFlagged(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	bookingID := f.createBooking(t, "u1", "")
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	raw, header := signedIPN(bookingID, "finished")
	_, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)

	raw, header = signedIPN(bookingID, "refunded")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.True(t, res.Reconcile)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.BookingPaid, f.bookingStatus(t, bookingID), "state follows platform refunds only")
	assert.Equal(t, domain.PaymentCompleted, f.payment(t, pay.PaymentID).Status)
	assert.Equal(t, 1, f.events.count("payment.refund_reported"))

	_, err = f.orch.RefundBooking(ctx, bookingID)
	require.NoError(t, err)

	res, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.True(t, res.Duplicate, "refund already recorded")
	assert.False(t, res.Reconcile)
	assert.Equal(t, 1, f.events.count("payment.refund_reported"))
}

func TestOrchestration_WebhookRefundCancelRace(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	const n = 50
	type attempt struct {
		bookingID  string
		paymentID  string
		providerID string
	}
	attempts := make([]attempt, n)
	for i := range attempts {
		bookingID := f.createBooking(t, fmt.Sprintf("u%d", i), "")
		pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
		require.NoError(t, err)
		attempts[i] = attempt{bookingID: bookingID, paymentID: pay.PaymentID, providerID: pay.ProviderPaymentID}
	}

	refundErrs := make([]error, n)
	cancelErrs := make([]error, n)
	webhookErrs := make([]error, n)

	var wg sync.WaitGroup
	for i, a := range attempts {
		raw, header := signedIPNFor(a.bookingID, a.providerID, "finished")
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, webhookErrs[i] = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
		}()
		go func() {
			defer wg.Done()
			_, refundErrs[i] = f.orch.RefundBooking(ctx, a.bookingID)
		}()
		go func() {
			defer wg.Done()
			cancelErrs[i] = f.orch.CancelBooking(ctx, a.bookingID)
		}()
	}
	wg.Wait()

	for i, a := range attempts {
		assert.NoError(t, webhookErrs[i], "booking %d", i)
		if cancelErrs[i] != nil {
			assert.ErrorIs(t, cancelErrs[i], domain.ErrInvalidTransition, "booking %d", i)
		}
		if refundErrs[i] != nil {
			assert.ErrorIs(t, refundErrs[i], domain.ErrNoPaymentToRefund, "booking %d", i)
		}

		booking, err := f.store.GetBooking(ctx, a.bookingID)
		require.NoError(t, err)
		payment := f.payment(t, a.paymentID)

		if payment.Status == domain.PaymentCompleted {
			assert.Contains(t, []domain.BookingStatus{domain.BookingPaid, domain.BookingCompleted}, booking.Status,
				"booking %d has a completed payment", i)
		}
		if booking.Status == domain.BookingCancelled {
			assert.NotEqual(t, domain.PaymentCompleted, payment.Status, "booking %d was cancelled", i)
		}
		if refundErrs[i] == nil {
			assert.Equal(t, domain.PaymentRefunded, payment.Status, "booking %d was refunded", i)
			assert.Equal(t, domain.BookingCancelled, booking.Status, "booking %d was refunded", i)
		}
		if cancelErrs[i] == nil {
			assert.Equal(t, domain.BookingCancelled, booking.Status, "booking %d was cancelled", i)
			assert.NotEqual(t, domain.PaymentRefunded, payment.Status, "booking %d cancelled before payment", i)
		}
		assert.Contains(t, []domain.BookingStatus{domain.BookingPaid, domain.BookingCancelled}, booking.Status, "booking %d", i)
	}

	raw, header := signedIPN(attempts[0].bookingID, "teleported")
	_, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	assert.ErrorIs(t, err, domain.ErrUnrecognizedPayload)
}

func TestOrchestration_FailedAndPendingOutcomes(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	bookingID := f.createBooking(t, "u1", "")
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	raw, header := signedIPN(bookingID, "confirming")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, res.Status)

	raw, header = signedIPN(bookingID, "expired")
	res, err = f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, res.Status)
	assert.Equal(t, domain.BookingPending, res.BookingStatus)
	assert.Equal(t, domain.PaymentFailed, f.payment(t, pay.PaymentID).Status)
	assert.Equal(t, 1, f.events.count("payment.failed"))

	retry, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err, "a failed attempt can be retried")
	assert.NotEqual(t, pay.PaymentID, retry.PaymentID)
}

func TestOrchestration_CompletedWebhookOnCancelledBookingIsOrphaned(t *testing.T) {
	f := newFixture(t, false, newNOWPayments(t))
	ctx := context.Background()

	bookingID := f.createBooking(t, "u1", "")
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderNOWPayments, 99.99)
	require.NoError(t, err)

	require.NoError(t, f.orch.CancelBooking(ctx, bookingID))
	assert.Equal(t, domain.PaymentFailed, f.payment(t, pay.PaymentID).Status)

	raw, header := signedIPN(bookingID, "finished")
	res, err := f.orch.HandlePaymentWebhook(ctx, "nowpayments", raw, header)
	require.NoError(t, err)
	assert.True(t, res.Orphaned)
	assert.Equal(t, domain.BookingCancelled, f.bookingStatus(t, bookingID))
	assert.Equal(t, domain.PaymentFailed, f.payment(t, pay.PaymentID).Status)
	assert.Equal(t, 1, f.events.count("payment.orphaned"))
	f.notifier.AssertNotCalled(t, "NotifyBookingPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestration_ProcessPaymentValidation(t *testing.T) {
	paypal := newGateway(t, domain.ProviderPayPal)
	f := newFixture(t, false, paypal)
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	_, err := f.orch.ProcessBookingPayment(ctx, bookingID, "bitcoin-atm", 99.99)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 50)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orch.ProcessBookingPayment(ctx, "missing", domain.ProviderPayPal, 99.99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(nil, domain.ErrProviderUnavailable).Once()
	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	payments, err := f.store.ListPaymentsByBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Empty(t, payments, "no payment row without a provider reference")
}

func TestOrchestration_NewAttemptSupersedesPendingOne(t *testing.T) {
	paypal := newGateway(t, domain.ProviderPayPal)
	f := newFixture(t, false, paypal)
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(&domain.PaymentInit{PaymentURL: "https://paypal.test/approve/1", ProviderPaymentID: "ORDER-1"}, nil).Once()
	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(&domain.PaymentInit{PaymentURL: "https://paypal.test/approve/2", ProviderPaymentID: "ORDER-2"}, nil).Once()

	first, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	require.NoError(t, err)
	second, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentFailed, f.payment(t, first.PaymentID).Status)
	assert.Equal(t, domain.PaymentPending, f.payment(t, second.PaymentID).Status)

	// The buyer completes the first checkout after all.
	raw := []byte(`{"id":"WH-1"}`)
	paypal.On("VerifyWebhook", raw, mock.Anything).Return(nil)
	paypal.On("ParseWebhook", raw).Return(&domain.WebhookEvent{
		BookingRef:        bookingID,
		ProviderPaymentID: "ORDER-1",
		Outcome:           domain.OutcomeCompleted,
	}, nil)

	res, err := f.orch.HandlePaymentWebhook(ctx, "paypal", raw, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, res.PaymentID)
	assert.Equal(t, domain.BookingPaid, f.bookingStatus(t, bookingID))
	assert.Equal(t, domain.PaymentCompleted, f.payment(t, first.PaymentID).Status)
	assert.Equal(t, domain.PaymentFailed, f.payment(t, second.PaymentID).Status)

	latest, err := f.store.GetPaymentByBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, second.PaymentID, latest.ID)

	details, err := f.orch.GetBookingWithPayment(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, details.Payment.ID, "the settling payment stays active over a newer failed attempt")
	assert.Nil(t, details.NFT)

	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestOrchestration_CaptureIsIdempotent(t *testing.T) {
	paypal := newGateway(t, domain.ProviderPayPal)
	f := newFixture(t, false, paypal)
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	_, err := f.orch.CapturePayment(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(&domain.PaymentInit{PaymentURL: "https://paypal.test/approve", ProviderPaymentID: "ORDER-1"}, nil)
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	require.NoError(t, err)

	capturedAt := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	paypal.On("CapturePayment", mock.Anything, bookingID, "ORDER-1").
		Return(&domain.CaptureResult{
			ProviderPaymentID: "ORDER-1",
			Outcome:           domain.OutcomeCompleted,
			CapturedAt:        capturedAt,
			Raw:               json.RawMessage(`{"status":"COMPLETED"}`),
		}, nil).Once()

	res, err := f.orch.CapturePayment(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaid, res.BookingStatus)
	assert.False(t, res.Duplicate)

	again, err := f.orch.CapturePayment(ctx, bookingID)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	p := f.payment(t, pay.PaymentID)
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	require.NotNil(t, p.CapturedAt)
	assert.True(t, capturedAt.Equal(*p.CapturedAt))
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(p.RawResponse))
}

func TestOrchestration_RefundFailureLeavesStateUntouched(t *testing.T) {
	paypal := newGateway(t, domain.ProviderPayPal)
	f := newFixture(t, false, paypal)
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	_, err := f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(&domain.PaymentInit{PaymentURL: "https://paypal.test/approve", ProviderPaymentID: "ORDER-1"}, nil)
	pay, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	require.NoError(t, err)

	_, err = f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrNoPaymentToRefund, "pending payments cannot be refunded")

	paypal.On("CapturePayment", mock.Anything, bookingID, "ORDER-1").
		Return(&domain.CaptureResult{ProviderPaymentID: "ORDER-1", Outcome: domain.OutcomeCompleted}, nil)
	_, err = f.orch.CapturePayment(ctx, bookingID)
	require.NoError(t, err)

	paypal.On("RefundPayment", mock.Anything, mock.AnythingOfType("*domain.Payment")).
		Return(nil, domain.ErrProviderUnavailable).Once()
	_, err = f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	paypal.On("RefundPayment", mock.Anything, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.RefundResult{Refunded: false}, nil).Once()
	_, err = f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrRefundFailed)

	assert.Equal(t, domain.BookingPaid, f.bookingStatus(t, bookingID))
	assert.Equal(t, domain.PaymentCompleted, f.payment(t, pay.PaymentID).Status)
	assert.Zero(t, f.events.count("booking.refunded"))

	paypal.On("RefundPayment", mock.Anything, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.RefundResult{Refunded: true, Reference: "REFUND-1"}, nil).Once()
	refund, err := f.orch.RefundBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.False(t, refund.ManualFollowUp)
	assert.Equal(t, "REFUND-1", f.payment(t, pay.PaymentID).RefundReference)

	_, err = f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrNoPaymentToRefund, "second refund")
}

func TestOrchestration_StatusNeverRegresses(t *testing.T) {
	paypal := newGateway(t, domain.ProviderPayPal)
	f := newFixture(t, false, paypal)
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	paypal.On("CreatePayment", mock.Anything, bookingID, 99.99, "USD").
		Return(&domain.PaymentInit{PaymentURL: "https://paypal.test/approve", ProviderPaymentID: "ORDER-1"}, nil)
	paypal.On("CapturePayment", mock.Anything, bookingID, "ORDER-1").
		Return(&domain.CaptureResult{ProviderPaymentID: "ORDER-1", Outcome: domain.OutcomeCompleted}, nil)

	_, err := f.orch.CompleteBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot complete")

	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	require.NoError(t, err)
	_, err = f.orch.CapturePayment(ctx, bookingID)
	require.NoError(t, err)

	err = f.orch.CancelBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "paid bookings are refunded, not cancelled")

	completed, err := f.orch.CompleteBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, completed.Status)

	_, err = f.orch.RefundBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	err = f.orch.CancelBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	_, err = f.orch.CompleteBooking(ctx, bookingID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, domain.BookingCompleted, f.bookingStatus(t, bookingID))
	assert.Equal(t, 1, f.events.count("booking.completed"))
}

func TestOrchestration_CancelThroughBookingService(t *testing.T) {
	f := newFixture(t, false, newGateway(t, domain.ProviderPayPal))
	ctx := context.Background()
	bookingID := f.createBooking(t, "u1", "")

	require.NoError(t, f.bookings.CancelBooking(ctx, bookingID))
	assert.Equal(t, domain.BookingCancelled, f.bookingStatus(t, bookingID))

	_, err := f.orch.ProcessBookingPayment(ctx, bookingID, domain.ProviderPayPal, 99.99)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	recreated := f.createBooking(t, "u1", "")
	assert.NotEqual(t, bookingID, recreated, "a cancelled booking frees its fingerprint")
}

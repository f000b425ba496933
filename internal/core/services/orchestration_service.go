package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/ports"
)

// priceTolerance absorbs float rounding between the client amount and the stored price.
const priceTolerance = 0.005

// webhookSignatureHeaders names the header each provider signs its deliveries in.
var webhookSignatureHeaders = map[domain.Provider]string{
	domain.ProviderPayPal:      "Paypal-Transmission-Sig",
	domain.ProviderNOWPayments: "X-Nowpayments-Sig",
	domain.ProviderOmise:       "Omise-Signature",
}

type PayResult struct {
	PaymentURL        string          `json:"paymentUrl"`
	PaymentID         string          `json:"paymentId"`
	Provider          domain.Provider `json:"provider"`
	ProviderPaymentID string          `json:"providerPaymentId"`
}

type WebhookResult struct {
	BookingID     string               `json:"bookingId"`
	PaymentID     string               `json:"paymentId,omitempty"`
	Status        domain.PaymentStatus `json:"status"`
	BookingStatus domain.BookingStatus `json:"bookingStatus"`
	Duplicate     bool                 `json:"duplicate,omitempty"`
	Orphaned      bool                 `json:"orphaned,omitempty"`
	Reconcile     bool                 `json:"reconcile,omitempty"`
}

type RefundResponse struct {
	Success        bool   `json:"success"`
	ManualFollowUp bool   `json:"manualFollowUp"`
	Reference      string `json:"reference,omitempty"`
}

type BookingDetails struct {
	Booking *domain.Booking `json:"booking"`
	Payment *domain.Payment `json:"payment"`
	NFT     *domain.NFT     `json:"nft"`
}

// OrchestrationService is the only writer of booking and payment status.
// Every mutation runs under a per-booking lock and is additionally guarded by
// the statuses read inside that lock.
type OrchestrationService struct {
	store    ports.Store
	payments *PaymentService
	locker   ports.Locker
	events   ports.EventPublisher
	notifier ports.MerchantNotifier
	nfts     *NFTService
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewOrchestrationService(
	store ports.Store,
	payments *PaymentService,
	locker ports.Locker,
	events ports.EventPublisher,
	notifier ports.MerchantNotifier,
	nfts *NFTService,
	log *zap.Logger,
) *OrchestrationService {
	return &OrchestrationService{
		store:    store,
		payments: payments,
		locker:   locker,
		events:   events,
		notifier: notifier,
		nfts:     nfts,
		log:      log,
		tracer:   otel.Tracer("github.com/srgjo27/defi_booking/orchestration"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrchestrationService) ProcessBookingPayment(ctx context.Context, bookingID string, provider domain.Provider, amountUSD float64) (_ *PayResult, err error) {
	ctx, span := s.startSpan(ctx, "process_payment", bookingID)
	defer func() { endSpan(span, err) }()

	provider = domain.ParseProvider(string(provider))
	if !s.payments.Supports(provider) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, provider)
	}
	if amountUSD <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	unlock, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	previous, err := s.activePayment(ctx, bookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if previous != nil && previous.Status == domain.PaymentCompleted {
		return nil, domain.ErrAlreadyPaid
	}
	if booking.Status != domain.BookingPending {
		if booking.Status.HasBeenPaid() {
			return nil, domain.ErrAlreadyPaid
		}
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, booking.Status)
	}
	if math.Abs(amountUSD-booking.PriceUSD) > priceTolerance {
		return nil, fmt.Errorf("%w: amount %.2f does not match booking price %.2f", domain.ErrValidation, amountUSD, booking.PriceUSD)
	}

	init, err := s.payments.InitiatePayment(ctx, bookingID, provider, booking.PriceUSD, domain.DefaultCurrency)
	if err != nil {
		s.log.Warn("payment initiation failed",
			zap.String("booking_id", bookingID),
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.now()
	payment := &domain.Payment{
		ID:                uuid.NewString(),
		BookingID:         bookingID,
		Provider:          provider,
		ProviderPaymentID: init.ProviderPaymentID,
		AmountUSD:         booking.PriceUSD,
		Currency:          domain.DefaultCurrency,
		Status:            domain.PaymentPending,
		RawResponse:       init.Raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// Persisted before the URL is handed out so an early webhook can be correlated.
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}

	if previous != nil && previous.Status == domain.PaymentPending {
		s.supersede(ctx, bookingID, previous.ID)
	}

	s.log.Info("payment initiated",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", payment.ID),
		zap.String("provider", string(provider)),
	)
	publish(ctx, s.events, s.log, "payment.initiated", map[string]any{
		"booking_id":          bookingID,
		"payment_id":          payment.ID,
		"provider":            provider,
		"provider_payment_id": payment.ProviderPaymentID,
		"amount_usd":          payment.AmountUSD,
	})

	return &PayResult{
		PaymentURL:        init.PaymentURL,
		PaymentID:         payment.ID,
		Provider:          provider,
		ProviderPaymentID: payment.ProviderPaymentID,
	}, nil
}

// HandlePaymentWebhook authenticates a provider delivery, records it and
// applies the normalized outcome. Redelivery of an already applied outcome
// succeeds without side effects.
func (s *OrchestrationService) HandlePaymentWebhook(ctx context.Context, providerName string, raw []byte, header http.Header) (_ *WebhookResult, err error) {
	provider := domain.ParseProvider(providerName)

	ctx, span := s.tracer.Start(ctx, "orchestration.handle_webhook",
		trace.WithAttributes(attribute.String("payment.provider", string(provider))))
	defer func() { endSpan(span, err) }()

	if !s.payments.Supports(provider) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, providerName)
	}

	verifyErr := s.payments.VerifyWebhook(provider, raw, header)
	if err := s.store.CreateWebhookLog(ctx, &domain.WebhookLog{
		ID:        uuid.NewString(),
		Provider:  provider,
		Payload:   raw,
		Signature: header.Get(webhookSignatureHeaders[provider]),
		Verified:  verifyErr == nil,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("record webhook: %w", err)
	}

	if verifyErr != nil {
		s.log.Warn("webhook rejected", zap.String("provider", string(provider)), zap.Error(verifyErr))
		if errors.Is(verifyErr, domain.ErrInvalidSignature) {
			return nil, verifyErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, verifyErr)
	}

	event, err := s.payments.ParseWebhook(provider, raw)
	if err != nil {
		if errors.Is(err, domain.ErrUnrecognizedPayload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecognizedPayload, err)
	}
	if event.BookingRef == "" {
		return nil, fmt.Errorf("%w: no booking reference", domain.ErrUnrecognizedPayload)
	}
	span.SetAttributes(attribute.String("booking.id", event.BookingRef))

	unlock, err := s.lock(ctx, event.BookingRef)
	if err != nil {
		return nil, err
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	// A verified, recorded delivery is acknowledged even when it cannot be
	// correlated, so the provider stops redelivering it.
	booking, err := s.store.GetBooking(ctx, event.BookingRef)
	if errors.Is(err, domain.ErrNotFound) {
		return s.uncorrelated(ctx, provider, event, nil, err), nil
	}
	if err != nil {
		return nil, err
	}

	payment, err := s.matchPayment(ctx, provider, booking.ID, event.ProviderPaymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.uncorrelated(ctx, provider, event, booking, err), nil
	}
	if err != nil {
		return nil, err
	}

	res, paidNow, err := s.applyOutcome(ctx, booking, payment, event.Outcome, raw, s.now())
	if err != nil {
		return nil, err
	}

	unlock()
	locked = false

	if paidNow {
		s.afterPaid(ctx, booking.ID)
	}
	return res, nil
}

// CapturePayment confirms the active payment with its provider. Capturing a
// completed payment returns the current state without calling the provider.
func (s *OrchestrationService) CapturePayment(ctx context.Context, bookingID string) (_ *WebhookResult, err error) {
	ctx, span := s.startSpan(ctx, "capture_payment", bookingID)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	payment, err := s.activePayment(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case domain.PaymentCompleted, domain.PaymentRefunded:
		return resultOf(booking, payment, true), nil
	case domain.PaymentFailed:
		return nil, fmt.Errorf("%w: payment %s failed", domain.ErrInvalidTransition, payment.ID)
	}
	if booking.Status != domain.BookingPending {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, booking.Status)
	}

	captured, err := s.payments.CapturePayment(ctx, bookingID, payment.Provider, payment.ProviderPaymentID)
	if err != nil {
		s.log.Warn("capture failed",
			zap.String("booking_id", bookingID),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return nil, err
	}

	capturedAt := captured.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now()
	}
	res, paidNow, err := s.applyOutcome(ctx, booking, payment, captured.Outcome, captured.Raw, capturedAt)
	if err != nil {
		return nil, err
	}

	unlock()
	locked = false

	if paidNow {
		s.afterPaid(ctx, bookingID)
	}
	return res, nil
}

// RefundBooking refunds the completed payment and cancels the booking. Any
// provider failure leaves both records untouched.
func (s *OrchestrationService) RefundBooking(ctx context.Context, bookingID string) (_ *RefundResponse, err error) {
	ctx, span := s.startSpan(ctx, "refund_booking", bookingID)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	payment, err := s.activePayment(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentCompleted {
		return nil, domain.ErrNoPaymentToRefund
	}
	if booking.Status != domain.BookingPaid {
		return nil, fmt.Errorf("%w: cannot refund a %s booking", domain.ErrInvalidTransition, booking.Status)
	}

	refund, err := s.payments.RefundPayment(ctx, payment)
	if err != nil {
		s.log.Error("refund failed",
			zap.String("booking_id", bookingID),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return nil, err
	}
	if !refund.Refunded {
		return nil, domain.ErrRefundFailed
	}

	cancelled := domain.BookingCancelled
	refunded := domain.PaymentRefunded
	ref := refund.Reference
	manual := refund.Manual
	if err := s.store.Settle(ctx, domain.Settlement{
		BookingID:   bookingID,
		BookingFrom: []domain.BookingStatus{domain.BookingPaid},
		BookingTo:   &cancelled,
		PaymentID:   payment.ID,
		PaymentFrom: []domain.PaymentStatus{domain.PaymentCompleted},
		Payment: domain.PaymentUpdate{
			Status:          &refunded,
			RefundReference: &ref,
			ManualRefund:    &manual,
		},
	}); err != nil {
		// The provider already accepted the refund; this needs reconciliation.
		s.log.Error("refund accepted by provider but not recorded",
			zap.String("booking_id", bookingID),
			zap.String("payment_id", payment.ID),
			zap.String("refund_reference", ref),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record refund: %w", err)
	}

	unlock()
	locked = false

	if manual {
		s.log.Warn("refund requires manual follow-up",
			zap.String("booking_id", bookingID),
			zap.String("payment_id", payment.ID),
			zap.String("provider", string(payment.Provider)),
		)
	}

	if nft, err := s.store.GetNFTByBooking(ctx, bookingID); err == nil && !nft.Burned {
		if _, err := s.nfts.Burn(ctx, nft.ID); err != nil {
			s.log.Warn("burn receipt after refund", zap.String("booking_id", bookingID), zap.Error(err))
		}
	}

	publish(ctx, s.events, s.log, "booking.refunded", map[string]any{
		"booking_id":       bookingID,
		"payment_id":       payment.ID,
		"provider":         payment.Provider,
		"manual_follow_up": manual,
		"refund_reference": ref,
	})
	booking.Status = cancelled
	s.notifier.NotifyBookingRefunded(ctx, loadMerchant(ctx, s.store, booking.MerchantID, s.log), booking, manual)

	return &RefundResponse{Success: true, ManualFollowUp: manual, Reference: ref}, nil
}

// CancelBooking moves a pending booking to cancelled and fails its pending
// payment in the same settlement.
func (s *OrchestrationService) CancelBooking(ctx context.Context, bookingID string) (err error) {
	ctx, span := s.startSpan(ctx, "cancel_booking", bookingID)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, bookingID)
	if err != nil {
		return err
	}
	defer unlock()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.BookingPending {
		if booking.Status == domain.BookingPaid {
			return fmt.Errorf("%w: paid bookings must be refunded", domain.ErrInvalidTransition)
		}
		return fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, booking.Status)
	}

	cancelled := domain.BookingCancelled
	st := domain.Settlement{
		BookingID:   bookingID,
		BookingFrom: []domain.BookingStatus{domain.BookingPending},
		BookingTo:   &cancelled,
	}

	payment, err := s.activePayment(ctx, bookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if payment != nil && payment.Status == domain.PaymentPending {
		failed := domain.PaymentFailed
		st.PaymentID = payment.ID
		st.PaymentFrom = []domain.PaymentStatus{domain.PaymentPending}
		st.Payment = domain.PaymentUpdate{Status: &failed}
	}

	if err := s.store.Settle(ctx, st); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}

	s.log.Info("booking cancelled", zap.String("booking_id", bookingID))
	publish(ctx, s.events, s.log, "booking.cancelled", map[string]any{"booking_id": bookingID})
	return nil
}

func (s *OrchestrationService) CompleteBooking(ctx context.Context, bookingID string) (_ *domain.Booking, err error) {
	ctx, span := s.startSpan(ctx, "complete_booking", bookingID)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(domain.BookingCompleted) {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, booking.Status)
	}

	completed := domain.BookingCompleted
	if err := s.store.Settle(ctx, domain.Settlement{
		BookingID:   bookingID,
		BookingFrom: []domain.BookingStatus{domain.BookingPaid},
		BookingTo:   &completed,
	}); err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	publish(ctx, s.events, s.log, "booking.completed", map[string]any{"booking_id": bookingID})
	return s.store.GetBooking(ctx, bookingID)
}

func (s *OrchestrationService) GetBookingWithPayment(ctx context.Context, bookingID string) (*BookingDetails, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	details := &BookingDetails{Booking: booking}

	payment, err := s.activePayment(ctx, bookingID)
	switch {
	case err == nil:
		details.Payment = payment
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	nft, err := s.store.GetNFTByBooking(ctx, bookingID)
	switch {
	case err == nil:
		details.NFT = nft
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return details, nil
}

func (s *OrchestrationService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.store.GetPayment(ctx, paymentID)
}

// applyOutcome must be called with the booking lock held. paidNow reports
// that this call moved the booking to paid.
func (s *OrchestrationService) applyOutcome(
	ctx context.Context,
	booking *domain.Booking,
	payment *domain.Payment,
	outcome domain.PaymentOutcome,
	raw json.RawMessage,
	at time.Time,
) (_ *WebhookResult, paidNow bool, err error) {
	log := s.log.With(
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", payment.ID),
		zap.String("provider", string(payment.Provider)),
		zap.String("outcome", string(outcome)),
	)

	if payment.Status == domain.PaymentRefunded {
		log.Info("outcome ignored for refunded payment")
		return resultOf(booking, payment, true), false, nil
	}

	switch outcome {
	case domain.OutcomeCompleted:
		if payment.Status == domain.PaymentCompleted {
			log.Info("duplicate completion ignored")
			return resultOf(booking, payment, true), false, nil
		}
		if booking.Status != domain.BookingPending {
			log.Warn("completed payment for a booking that is no longer pending, manual reconciliation required",
				zap.String("booking_status", string(booking.Status)))
			publish(ctx, s.events, s.log, "payment.orphaned", map[string]any{
				"booking_id":          booking.ID,
				"payment_id":          payment.ID,
				"provider":            payment.Provider,
				"provider_payment_id": payment.ProviderPaymentID,
				"booking_status":      booking.Status,
			})
			res := resultOf(booking, payment, false)
			res.Orphaned = true
			return res, false, nil
		}

		paid := domain.BookingPaid
		completed := domain.PaymentCompleted
		if err := s.store.Settle(ctx, domain.Settlement{
			BookingID:   booking.ID,
			BookingFrom: []domain.BookingStatus{domain.BookingPending},
			BookingTo:   &paid,
			PaymentID:   payment.ID,
			PaymentFrom: []domain.PaymentStatus{domain.PaymentPending, domain.PaymentFailed},
			Payment: domain.PaymentUpdate{
				Status:      &completed,
				CapturedAt:  &at,
				RawResponse: raw,
			},
		}); err != nil {
			return nil, false, fmt.Errorf("settle payment: %w", err)
		}
		booking.Status = paid
		payment.Status = completed
		payment.CapturedAt = &at

		s.failOtherPending(ctx, booking.ID, payment.ID)

		log.Info("payment completed")
		publish(ctx, s.events, s.log, "payment.completed", map[string]any{
			"booking_id":          booking.ID,
			"payment_id":          payment.ID,
			"provider":            payment.Provider,
			"provider_payment_id": payment.ProviderPaymentID,
			"amount_usd":          payment.AmountUSD,
		})
		s.notifier.NotifyBookingPaid(ctx, loadMerchant(ctx, s.store, booking.MerchantID, s.log), booking)
		return resultOf(booking, payment, false), true, nil

	case domain.OutcomeFailed:
		if payment.Status != domain.PaymentPending {
			return resultOf(booking, payment, true), false, nil
		}
		failed := domain.PaymentFailed
		if err := s.store.Settle(ctx, domain.Settlement{
			BookingID:   booking.ID,
			PaymentID:   payment.ID,
			PaymentFrom: []domain.PaymentStatus{domain.PaymentPending},
			Payment:     domain.PaymentUpdate{Status: &failed, RawResponse: raw},
		}); err != nil {
			return nil, false, fmt.Errorf("fail payment: %w", err)
		}
		payment.Status = failed

		log.Info("payment failed")
		publish(ctx, s.events, s.log, "payment.failed", map[string]any{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
			"provider":   payment.Provider,
		})
		return resultOf(booking, payment, false), false, nil

	case domain.OutcomeRefunded:
		log.Warn("provider reports a refund not issued through this platform, manual reconciliation required",
			zap.String("payment_status", string(payment.Status)),
			zap.String("booking_status", string(booking.Status)),
		)
		publish(ctx, s.events, s.log, "payment.refund_reported", map[string]any{
			"booking_id":          booking.ID,
			"payment_id":          payment.ID,
			"provider":            payment.Provider,
			"provider_payment_id": payment.ProviderPaymentID,
			"payment_status":      payment.Status,
		})
		res := resultOf(booking, payment, false)
		res.Reconcile = true
		return res, false, nil

	default:
		return resultOf(booking, payment, false), false, nil
	}
}

// uncorrelated acknowledges a verified delivery that matches no stored
// booking or payment. booking may be nil.
func (s *OrchestrationService) uncorrelated(
	ctx context.Context,
	provider domain.Provider,
	event *domain.WebhookEvent,
	booking *domain.Booking,
	cause error,
) *WebhookResult {
	s.log.Warn("webhook matches no stored payment, manual reconciliation required",
		zap.String("provider", string(provider)),
		zap.String("booking_id", event.BookingRef),
		zap.String("provider_payment_id", event.ProviderPaymentID),
		zap.String("outcome", string(event.Outcome)),
		zap.Error(cause),
	)
	publish(ctx, s.events, s.log, "payment.orphaned", map[string]any{
		"booking_id":          event.BookingRef,
		"provider":            provider,
		"provider_payment_id": event.ProviderPaymentID,
		"outcome":             event.Outcome,
	})

	res := &WebhookResult{BookingID: event.BookingRef, Orphaned: true}
	if booking != nil {
		res.BookingStatus = booking.Status
	}
	return res
}

// afterPaid runs once, after the booking lock is released, for the call that
// moved a booking to paid.
func (s *OrchestrationService) afterPaid(ctx context.Context, bookingID string) {
	if !s.nfts.Enabled() {
		return
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil || !booking.HasWallet() {
		return
	}
	merchant := loadMerchant(ctx, s.store, booking.MerchantID, s.log)
	if !merchant.AcceptNFTs {
		return
	}

	if _, err := s.nfts.MintForBooking(ctx, bookingID, ""); err != nil {
		s.log.Error("nft mint failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

// activePayment prefers the payment that settled the booking, falling back
// to the most recent attempt.
func (s *OrchestrationService) activePayment(ctx context.Context, bookingID string) (*domain.Payment, error) {
	all, err := s.store.ListPaymentsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Status == domain.PaymentCompleted || all[i].Status == domain.PaymentRefunded {
			return all[i], nil
		}
	}
	return all[len(all)-1], nil
}

func (s *OrchestrationService) matchPayment(ctx context.Context, provider domain.Provider, bookingID, providerPaymentID string) (*domain.Payment, error) {
	if providerPaymentID != "" {
		p, err := s.store.GetPaymentByProviderRef(ctx, provider, providerPaymentID)
		switch {
		case err == nil && p.BookingID == bookingID:
			return p, nil
		case err == nil:
			return nil, fmt.Errorf("%w: provider payment %s belongs to another booking", domain.ErrUnrecognizedPayload, providerPaymentID)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}
	return s.activePayment(ctx, bookingID)
}

func (s *OrchestrationService) supersede(ctx context.Context, bookingID, paymentID string) {
	failed := domain.PaymentFailed
	err := s.store.Settle(ctx, domain.Settlement{
		BookingID:   bookingID,
		PaymentID:   paymentID,
		PaymentFrom: []domain.PaymentStatus{domain.PaymentPending},
		Payment:     domain.PaymentUpdate{Status: &failed},
	})
	if err != nil {
		s.log.Warn("supersede previous payment", zap.String("booking_id", bookingID), zap.String("payment_id", paymentID), zap.Error(err))
	}
}

func (s *OrchestrationService) failOtherPending(ctx context.Context, bookingID, keepID string) {
	all, err := s.store.ListPaymentsByBooking(ctx, bookingID)
	if err != nil {
		s.log.Warn("list payments", zap.String("booking_id", bookingID), zap.Error(err))
		return
	}
	for _, p := range all {
		if p.ID != keepID && p.Status == domain.PaymentPending {
			s.supersede(ctx, bookingID, p.ID)
		}
	}
}

func (s *OrchestrationService) lock(ctx context.Context, bookingID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, bookingLockKey(bookingID))
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", bookingID, err)
	}
	return unlock, nil
}

func (s *OrchestrationService) startSpan(ctx context.Context, op, bookingID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "orchestration."+op, trace.WithAttributes(attribute.String("booking.id", bookingID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func resultOf(b *domain.Booking, p *domain.Payment, duplicate bool) *WebhookResult {
	return &WebhookResult{
		BookingID:     b.ID,
		PaymentID:     p.ID,
		Status:        p.Status,
		BookingStatus: b.Status,
		Duplicate:     duplicate,
	}
}

func bookingLockKey(bookingID string) string {
	return "booking:" + bookingID
}

func loadMerchant(ctx context.Context, refs ports.ReferenceRepository, merchantID string, log *zap.Logger) *domain.Merchant {
	m, err := refs.GetMerchant(ctx, merchantID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("merchant lookup failed", zap.String("merchant_id", merchantID), zap.Error(err))
		}
		return domain.DefaultMerchant(merchantID)
	}
	return m
}

func publish(ctx context.Context, events ports.EventPublisher, log *zap.Logger, key string, payload map[string]any) {
	if err := events.Publish(ctx, key, payload); err != nil {
		log.Warn("publish event", zap.String("event", key), zap.Error(err))
	}
}

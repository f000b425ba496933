package domain

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

const DefaultCurrency = "USD"

type Payment struct {
	ID                string          `json:"id" db:"id"`
	BookingID         string          `json:"bookingId" db:"booking_id"`
	Provider          Provider        `json:"provider" db:"provider"`
	ProviderPaymentID string          `json:"providerPaymentId" db:"provider_payment_id"`
	AmountUSD         float64         `json:"amountUsd" db:"amount_usd"`
	Currency          string          `json:"currency" db:"currency"`
	Status            PaymentStatus   `json:"status" db:"status"`
	CapturedAt        *time.Time      `json:"capturedAt,omitempty" db:"captured_at"`
	RawResponse       json.RawMessage `json:"rawResponseJson,omitempty" db:"raw_response"`
	RefundReference   string          `json:"refundReference,omitempty" db:"refund_reference"`
	ManualRefund      bool            `json:"manualRefund" db:"manual_refund"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// PaymentUpdate is a partial update; nil fields are left untouched.
type PaymentUpdate struct {
	Status          *PaymentStatus
	CapturedAt      *time.Time
	RawResponse     json.RawMessage
	RefundReference *string
	ManualRefund    *bool
}

// Settlement moves a booking and its payment together. Each side is guarded by
// the statuses it may currently be in; a guard miss fails the whole settlement
// with ErrStaleState and leaves both rows untouched.
type Settlement struct {
	BookingID   string
	BookingFrom []BookingStatus
	BookingTo   *BookingStatus

	PaymentID   string
	PaymentFrom []PaymentStatus
	Payment     PaymentUpdate
}

// PaymentInit is what a provider hands back when a payment flow is opened.
type PaymentInit struct {
	PaymentURL        string
	ProviderPaymentID string
	Raw               json.RawMessage
}

type CaptureResult struct {
	ProviderPaymentID string
	Outcome           PaymentOutcome
	CapturedAt        time.Time
	Raw               json.RawMessage
}

// RefundResult distinguishes an automatic refund from one the provider only
// accepts out of band.
type RefundResult struct {
	Refunded  bool
	Manual    bool
	Reference string
}

type PaymentOutcome string

const (
	OutcomeCompleted PaymentOutcome = "completed"
	OutcomePending   PaymentOutcome = "pending"
	OutcomeFailed    PaymentOutcome = "failed"
	// OutcomeRefunded reports a refund the provider issued on its own side.
	OutcomeRefunded PaymentOutcome = "refunded"
)

// WebhookEvent is the provider-neutral view of an inbound notification.
type WebhookEvent struct {
	EventID           string
	BookingRef        string
	ProviderPaymentID string
	Outcome           PaymentOutcome
}

type WebhookLog struct {
	ID        string    `json:"id" db:"id"`
	Provider  Provider  `json:"provider" db:"provider"`
	Payload   []byte    `json:"payload" db:"payload"`
	Signature string    `json:"signature" db:"signature"`
	Verified  bool      `json:"verified" db:"verified"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

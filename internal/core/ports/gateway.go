package ports

import (
	"context"
	"net/http"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

// ProviderGateway hides one external payment processor behind a fixed
// capability set. Failures are reported as domain.ErrProviderUnavailable
// (transient) or domain.ErrProviderRejected (permanent).
type ProviderGateway interface {
	Provider() domain.Provider
	CreatePayment(ctx context.Context, bookingID string, amountUSD float64, currency string) (*domain.PaymentInit, error)
	CapturePayment(ctx context.Context, bookingID, providerPaymentID string) (*domain.CaptureResult, error)
	RefundPayment(ctx context.Context, payment *domain.Payment) (*domain.RefundResult, error)
	// VerifyWebhook authenticates the raw, unparsed request body.
	VerifyWebhook(raw []byte, header http.Header) error
	ParseWebhook(raw []byte) (*domain.WebhookEvent, error)
}

// Package nowpayments adapts the NOWPayments crypto gateway.
package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/srgjo27/defi_booking/internal/adapter/gateway"
	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

const SignatureHeader = "x-nowpayments-sig"

// statusOutcomes maps payment_status values to normalized outcomes.
var statusOutcomes = map[string]domain.PaymentOutcome{
	"finished":       domain.OutcomeCompleted,
	"waiting":        domain.OutcomePending,
	"confirming":     domain.OutcomePending,
	"confirmed":      domain.OutcomePending,
	"sending":        domain.OutcomePending,
	"partially_paid": domain.OutcomePending,
	"failed":         domain.OutcomeFailed,
	"expired":        domain.OutcomeFailed,
	"refunded":       domain.OutcomeRefunded,
}

type Config struct {
	APIKey      string
	IPNSecret   string
	BaseURL     string
	PayCurrency string
	CallbackURL string
	SuccessURL  string
	CancelURL   string
}

type Gateway struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func New(cfg Config, client *http.Client) *Gateway {
	if client == nil {
		client = gateway.NewHTTPClient()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{cfg: cfg, client: client, now: time.Now}
}

func (g *Gateway) Provider() domain.Provider { return domain.ProviderNOWPayments }

type createPaymentRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayCurrency      string  `json:"pay_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	SuccessURL       string  `json:"success_url,omitempty"`
	CancelURL        string  `json:"cancel_url,omitempty"`
}

type paymentResponse struct {
	PaymentID     flexID `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id"`
	PaymentURL    string `json:"payment_url"`
	InvoiceURL    string `json:"invoice_url"`
}

func (g *Gateway) CreatePayment(ctx context.Context, bookingID string, amountUSD float64, currency string) (*domain.PaymentInit, error) {
	body, err := json.Marshal(createPaymentRequest{
		PriceAmount:      amountUSD,
		PriceCurrency:    strings.ToLower(currency),
		PayCurrency:      g.cfg.PayCurrency,
		OrderID:          bookingID,
		OrderDescription: "Booking " + bookingID,
		IPNCallbackURL:   g.cfg.CallbackURL,
		SuccessURL:       withBooking(g.cfg.SuccessURL, bookingID),
		CancelURL:        withBooking(g.cfg.CancelURL, bookingID),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.do(ctx, http.MethodPost, "/payment", body)
	if err != nil {
		return nil, err
	}

	var res paymentResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", domain.ErrProviderUnavailable, err)
	}

	redirect := res.InvoiceURL
	if redirect == "" {
		redirect = res.PaymentURL
	}
	if res.PaymentID == "" || redirect == "" {
		return nil, fmt.Errorf("%w: payment response without id or url", domain.ErrProviderRejected)
	}

	return &domain.PaymentInit{
		PaymentURL:        redirect,
		ProviderPaymentID: string(res.PaymentID),
		Raw:               raw,
	}, nil
}

// CapturePayment polls the payment status. NOWPayments settles on chain so
// there is nothing to finalize; reading it twice is naturally idempotent.
func (g *Gateway) CapturePayment(ctx context.Context, _ string, providerPaymentID string) (*domain.CaptureResult, error) {
	raw, err := g.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(providerPaymentID), nil)
	if err != nil {
		return nil, err
	}

	var res paymentResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode payment status: %v", domain.ErrProviderUnavailable, err)
	}

	outcome, ok := statusOutcomes[res.PaymentStatus]
	if !ok {
		outcome = domain.OutcomePending
	}

	result := &domain.CaptureResult{
		ProviderPaymentID: providerPaymentID,
		Outcome:           outcome,
		Raw:               raw,
	}
	if outcome == domain.OutcomeCompleted {
		result.CapturedAt = g.now().UTC()
	}
	return result, nil
}

// RefundPayment reports success with Manual set: NOWPayments has no refund
// API and refunds are issued from the merchant dashboard.
func (g *Gateway) RefundPayment(_ context.Context, payment *domain.Payment) (*domain.RefundResult, error) {
	return &domain.RefundResult{
		Refunded:  true,
		Manual:    true,
		Reference: "manual:" + payment.ProviderPaymentID,
	}, nil
}

func (g *Gateway) VerifyWebhook(raw []byte, header http.Header) error {
	sig := header.Get(SignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", domain.ErrInvalidSignature, SignatureHeader)
	}
	if !crypto.VerifySignature(crypto.HMACSHA512Hex, raw, sig, g.cfg.IPNSecret) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (g *Gateway) ParseWebhook(raw []byte) (*domain.WebhookEvent, error) {
	var n paymentResponse
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecognizedPayload, err)
	}
	if n.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order_id", domain.ErrUnrecognizedPayload)
	}

	outcome, ok := statusOutcomes[n.PaymentStatus]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment_status %q", domain.ErrUnrecognizedPayload, n.PaymentStatus)
	}

	return &domain.WebhookEvent{
		EventID:           string(n.PaymentID) + ":" + n.PaymentStatus,
		BookingRef:        n.OrderID,
		ProviderPaymentID: string(n.PaymentID),
		Outcome:           outcome,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", g.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.client.Do(req)
	if err != nil {
		return nil, gateway.TransportError("nowpayments "+path, err)
	}
	defer res.Body.Close()

	raw, err := gateway.ReadBody(res)
	if err != nil {
		return nil, gateway.TransportError("nowpayments "+path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, gateway.StatusError("nowpayments "+path, res.StatusCode)
	}
	return raw, nil
}

func withBooking(base, bookingID string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("bookingId", bookingID)
	u.RawQuery = q.Encode()
	return u.String()
}

// flexID accepts payment ids sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("payment_id is neither string nor number")
	}
	*f = flexID(n.String())
	return nil
}

// Package paypal adapts the PayPal Orders v2 API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/srgjo27/defi_booking/internal/adapter/gateway"
	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

const (
	HeaderTransmissionID   = "paypal-transmission-id"
	HeaderTransmissionTime = "paypal-transmission-time"
	HeaderTransmissionSig  = "paypal-transmission-sig"
)

// eventOutcomes maps webhook event types to normalized outcomes. Event types
// not listed are acknowledged without effect.
var eventOutcomes = map[string]domain.PaymentOutcome{
	"CHECKOUT.ORDER.COMPLETED":  domain.OutcomeCompleted,
	"PAYMENT.CAPTURE.COMPLETED": domain.OutcomeCompleted,
	"CHECKOUT.ORDER.APPROVED":   domain.OutcomePending,
	"PAYMENT.CAPTURE.PENDING":   domain.OutcomePending,
	"PAYMENT.CAPTURE.DENIED":    domain.OutcomeFailed,
	"PAYMENT.CAPTURE.DECLINED":  domain.OutcomeFailed,
	"CHECKOUT.ORDER.VOIDED":     domain.OutcomeFailed,
	"PAYMENT.CAPTURE.REFUNDED":  domain.OutcomeRefunded,
	"PAYMENT.CAPTURE.REVERSED":  domain.OutcomeRefunded,
}

var captureOutcomes = map[string]domain.PaymentOutcome{
	"COMPLETED": domain.OutcomeCompleted,
	"PENDING":   domain.OutcomePending,
	"DECLINED":  domain.OutcomeFailed,
	"FAILED":    domain.OutcomeFailed,
}

type Config struct {
	ClientID      string
	ClientSecret  string
	BaseURL       string
	WebhookID     string
	WebhookSecret string
	ReturnURL     string
	CancelURL     string
	BrandName     string
}

type Gateway struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config, client *http.Client) *Gateway {
	if client == nil {
		client = gateway.NewHTTPClient()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{cfg: cfg, client: client, now: time.Now}
}

func (g *Gateway) Provider() domain.Provider { return domain.ProviderPayPal }

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      *amount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []capture `json:"captures"`
	} `json:"payments,omitempty"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

func (g *Gateway) CreatePayment(ctx context.Context, bookingID string, amountUSD float64, currency string) (*domain.PaymentInit, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []purchaseUnit{{
			ReferenceID: bookingID,
			CustomID:    bookingID,
			Description: "Booking " + bookingID,
			Amount: &amount{
				CurrencyCode: strings.ToUpper(currency),
				Value:        strconv.FormatFloat(amountUSD, 'f', 2, 64),
			},
		}},
		"application_context": map[string]string{
			"return_url":  withBooking(g.cfg.ReturnURL, bookingID),
			"cancel_url":  withBooking(g.cfg.CancelURL, bookingID),
			"brand_name":  g.cfg.BrandName,
			"user_action": "PAY_NOW",
		},
	}

	raw, status, err := g.call(ctx, http.MethodPost, "/v2/checkout/orders", payload, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, gateway.StatusError("paypal create order", status)
	}

	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", domain.ErrProviderUnavailable, err)
	}

	var approve string
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approve = l.Href
			break
		}
	}
	if o.ID == "" || approve == "" {
		return nil, fmt.Errorf("%w: order without id or approval link", domain.ErrProviderRejected)
	}

	return &domain.PaymentInit{PaymentURL: approve, ProviderPaymentID: o.ID, Raw: raw}, nil
}

// CapturePayment captures an approved order. The request id makes a retried
// capture return the original result instead of charging twice.
func (g *Gateway) CapturePayment(ctx context.Context, _ string, orderID string) (*domain.CaptureResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	raw, status, err := g.call(ctx, http.MethodPost, path, struct{}{}, "capture-"+orderID)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnprocessableEntity && bytes.Contains(raw, []byte("ORDER_ALREADY_CAPTURED")) {
		return g.captureFromOrder(ctx, orderID)
	}
	if status < 200 || status >= 300 {
		return nil, gateway.StatusError("paypal capture", status)
	}

	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("%w: decode capture: %v", domain.ErrProviderUnavailable, err)
	}
	return g.captureResult(orderID, o, raw), nil
}

// RefundPayment refunds the capture recorded for the order.
func (g *Gateway) RefundPayment(ctx context.Context, payment *domain.Payment) (*domain.RefundResult, error) {
	captureID := captureIDFrom(payment.RawResponse)
	if captureID == "" {
		o, _, err := g.getOrder(ctx, payment.ProviderPaymentID)
		if err != nil {
			return nil, err
		}
		captureID = firstCapture(o).ID
	}
	if captureID == "" {
		return &domain.RefundResult{Refunded: false}, nil
	}

	path := "/v2/payments/captures/" + url.PathEscape(captureID) + "/refund"
	raw, status, err := g.call(ctx, http.MethodPost, path, struct{}{}, "refund-"+payment.ID)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, gateway.StatusError("paypal refund", status)
	}

	var r struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode refund: %v", domain.ErrProviderUnavailable, err)
	}

	ok := r.Status == "COMPLETED" || r.Status == "PENDING"
	return &domain.RefundResult{Refunded: ok, Reference: r.ID}, nil
}

// VerifyWebhook checks an HMAC-SHA256 over id|time|webhookId|body using the
// shared webhook secret.
func (g *Gateway) VerifyWebhook(raw []byte, header http.Header) error {
	id := header.Get(HeaderTransmissionID)
	ts := header.Get(HeaderTransmissionTime)
	sig := header.Get(HeaderTransmissionSig)
	if id == "" || ts == "" || sig == "" {
		return fmt.Errorf("%w: missing transmission headers", domain.ErrInvalidSignature)
	}

	if !crypto.VerifySignature(crypto.HMACSHA256Base64, SigningPayload(id, ts, g.cfg.WebhookID, raw), sig, g.cfg.WebhookSecret) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// SigningPayload builds the byte string a delivery signature covers.
func SigningPayload(transmissionID, transmissionTime, webhookID string, raw []byte) []byte {
	var b bytes.Buffer
	b.WriteString(transmissionID)
	b.WriteByte('|')
	b.WriteString(transmissionTime)
	b.WriteByte('|')
	b.WriteString(webhookID)
	b.WriteByte('|')
	b.Write(raw)
	return b.Bytes()
}

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string         `json:"id"`
		Status            string         `json:"status"`
		CustomID          string         `json:"custom_id"`
		PurchaseUnits     []purchaseUnit `json:"purchase_units"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (g *Gateway) ParseWebhook(raw []byte) (*domain.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecognizedPayload, err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", domain.ErrUnrecognizedPayload)
	}

	res := env.Resource
	bookingRef := res.CustomID
	if len(res.PurchaseUnits) > 0 && res.PurchaseUnits[0].ReferenceID != "" {
		bookingRef = res.PurchaseUnits[0].ReferenceID
	}
	if bookingRef == "" {
		return nil, fmt.Errorf("%w: no booking reference in %s", domain.ErrUnrecognizedPayload, env.EventType)
	}

	// Order events carry the order id directly, capture events link back to it.
	orderID := res.ID
	if strings.HasPrefix(env.EventType, "PAYMENT.CAPTURE.") {
		orderID = res.SupplementaryData.RelatedIDs.OrderID
	}

	outcome, ok := eventOutcomes[env.EventType]
	if !ok {
		outcome = domain.OutcomePending
	}

	return &domain.WebhookEvent{
		EventID:           env.ID,
		BookingRef:        bookingRef,
		ProviderPaymentID: orderID,
		Outcome:           outcome,
	}, nil
}

func (g *Gateway) captureFromOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	o, raw, err := g.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return g.captureResult(orderID, o, raw), nil
}

func (g *Gateway) captureResult(orderID string, o order, raw []byte) *domain.CaptureResult {
	outcome := domain.OutcomePending
	if c := firstCapture(o); c.Status != "" {
		if mapped, ok := captureOutcomes[c.Status]; ok {
			outcome = mapped
		}
	} else if o.Status == "COMPLETED" {
		outcome = domain.OutcomeCompleted
	} else if o.Status == "VOIDED" {
		outcome = domain.OutcomeFailed
	}

	res := &domain.CaptureResult{ProviderPaymentID: orderID, Outcome: outcome, Raw: raw}
	if outcome == domain.OutcomeCompleted {
		res.CapturedAt = g.now().UTC()
	}
	return res
}

func (g *Gateway) getOrder(ctx context.Context, orderID string) (order, []byte, error) {
	raw, status, err := g.call(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, "")
	if err != nil {
		return order{}, nil, err
	}
	if status < 200 || status >= 300 {
		return order{}, nil, gateway.StatusError("paypal get order", status)
	}

	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return order{}, nil, fmt.Errorf("%w: decode order: %v", domain.ErrProviderUnavailable, err)
	}
	return o, raw, nil
}

// call performs an authenticated request and returns the body and status.
// Only transport failures are returned as errors.
func (g *Gateway) call(ctx context.Context, method, path string, payload any, requestID string) ([]byte, int, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return nil, 0, gateway.TransportError("paypal "+path, err)
	}
	defer res.Body.Close()

	raw, err := gateway.ReadBody(res)
	if err != nil {
		return nil, 0, gateway.TransportError("paypal "+path, err)
	}

	if res.StatusCode == http.StatusUnauthorized {
		g.mu.Lock()
		g.token = ""
		g.mu.Unlock()
	}
	return raw, res.StatusCode, nil
}

// accessToken returns a cached OAuth token, refreshing it a minute early.
func (g *Gateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := g.client.Do(req)
	if err != nil {
		return "", gateway.TransportError("paypal oauth", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: paypal oauth returned %d", domain.ErrProviderUnavailable, res.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", domain.ErrProviderUnavailable, err)
	}

	g.token = tok.AccessToken
	g.tokenExpiry = g.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return g.token, nil
}

func firstCapture(o order) capture {
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0]
		}
	}
	return capture{}
}

func captureIDFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return ""
	}
	return firstCapture(o).ID
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
	q.Set("provider", string(domain.ProviderPayPal))
	u.RawQuery = q.Encode()
	return u.String()
}

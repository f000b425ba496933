// Package omise adapts the Omise card and QR payment API as a third gateway.
package omise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

const (
	HeaderSignature = "omise-signature"
	HeaderTimestamp = "omise-signature-timestamp"
)

var chargeOutcomes = map[string]domain.PaymentOutcome{
	"successful": domain.OutcomeCompleted,
	"pending":    domain.OutcomePending,
	"failed":     domain.OutcomeFailed,
	"expired":    domain.OutcomeFailed,
	"reversed":   domain.OutcomeFailed,
}

type Config struct {
	PublicKey     string
	SecretKey     string
	WebhookSecret string
	SourceType    string
	ReturnURL     string
}

type Gateway struct {
	cfg    Config
	client *omise.Client
	log    *zap.Logger
	now    func() time.Time
}

func New(cfg Config, log *zap.Logger) (*Gateway, error) {
	client, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	client.SetDebug(false)
	if cfg.SourceType == "" {
		cfg.SourceType = "promptpay"
	}
	return &Gateway{cfg: cfg, client: client, log: log, now: time.Now}, nil
}

func (g *Gateway) Provider() domain.Provider { return domain.ProviderOmise }

func (g *Gateway) CreatePayment(ctx context.Context, bookingID string, amountUSD float64, currency string) (*domain.PaymentInit, error) {
	amount := toMinorUnits(amountUSD)
	currency = strings.ToLower(currency)

	src := &omise.Source{}
	if err := g.do(ctx, "create source", func() error {
		return g.client.Do(src, &operations.CreateSource{
			Type:     g.cfg.SourceType,
			Amount:   amount,
			Currency: currency,
		})
	}, zap.String("booking_id", bookingID)); err != nil {
		return nil, err
	}

	ch := &omise.Charge{}
	if err := g.do(ctx, "create charge", func() error {
		return g.client.Do(ch, &operations.CreateCharge{
			Amount:    amount,
			Currency:  currency,
			Source:    src.ID,
			ReturnURI: g.cfg.ReturnURL + "?bookingId=" + bookingID + "&provider=omise",
			Metadata:  map[string]interface{}{"booking_id": bookingID},
		})
	}, zap.String("booking_id", bookingID), zap.String("source_id", src.ID)); err != nil {
		return nil, err
	}

	if string(ch.Status) == "failed" {
		return nil, fmt.Errorf("%w: charge %s failed at creation", domain.ErrProviderRejected, ch.ID)
	}
	if ch.AuthorizeURI == "" {
		return nil, fmt.Errorf("%w: charge %s has no authorize uri", domain.ErrProviderRejected, ch.ID)
	}

	raw, _ := json.Marshal(ch)
	return &domain.PaymentInit{PaymentURL: ch.AuthorizeURI, ProviderPaymentID: ch.ID, Raw: raw}, nil
}

// CapturePayment reads the charge state. Charges created from a source are
// captured automatically once the payer authorizes them.
func (g *Gateway) CapturePayment(ctx context.Context, _ string, chargeID string) (*domain.CaptureResult, error) {
	ch := &omise.Charge{}
	if err := g.do(ctx, "retrieve charge", func() error {
		return g.client.Do(ch, &operations.RetrieveCharge{ChargeID: chargeID})
	}, zap.String("charge_id", chargeID)); err != nil {
		return nil, err
	}

	outcome, ok := chargeOutcomes[string(ch.Status)]
	if !ok {
		outcome = domain.OutcomePending
	}

	raw, _ := json.Marshal(ch)
	res := &domain.CaptureResult{ProviderPaymentID: ch.ID, Outcome: outcome, Raw: raw}
	if outcome == domain.OutcomeCompleted {
		res.CapturedAt = g.now().UTC()
	}
	return res, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, payment *domain.Payment) (*domain.RefundResult, error) {
	refund := &omise.Refund{}
	if err := g.do(ctx, "create refund", func() error {
		return g.client.Do(refund, &operations.CreateRefund{
			ChargeID: payment.ProviderPaymentID,
			Amount:   toMinorUnits(payment.AmountUSD),
		})
	}, zap.String("booking_id", payment.BookingID), zap.String("charge_id", payment.ProviderPaymentID)); err != nil {
		return nil, err
	}
	return &domain.RefundResult{Refunded: refund.ID != "", Reference: refund.ID}, nil
}

// VerifyWebhook accepts the delivery when any of the comma separated
// signatures matches, so the secret can be rotated without downtime.
func (g *Gateway) VerifyWebhook(raw []byte, header http.Header) error {
	sigs := header.Get(HeaderSignature)
	ts := header.Get(HeaderTimestamp)
	if sigs == "" || ts == "" {
		return fmt.Errorf("%w: missing signature headers", domain.ErrInvalidSignature)
	}

	payload := SigningPayload(ts, raw)
	for _, sig := range strings.Split(sigs, ",") {
		if crypto.VerifySignature(crypto.HMACSHA256Hex, payload, sig, g.cfg.WebhookSecret) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func SigningPayload(timestamp string, raw []byte) []byte {
	out := make([]byte, 0, len(timestamp)+1+len(raw))
	out = append(out, timestamp...)
	out = append(out, '.')
	return append(out, raw...)
}

type event struct {
	ID   string          `json:"id"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

func (g *Gateway) ParseWebhook(raw []byte) (*domain.WebhookEvent, error) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecognizedPayload, err)
	}
	if !strings.HasPrefix(ev.Key, "charge.") || len(ev.Data) == 0 {
		return nil, fmt.Errorf("%w: unsupported event %q", domain.ErrUnrecognizedPayload, ev.Key)
	}

	var ch omise.Charge
	if err := json.Unmarshal(ev.Data, &ch); err != nil {
		return nil, fmt.Errorf("%w: charge: %v", domain.ErrUnrecognizedPayload, err)
	}

	bookingID, _ := ch.Metadata["booking_id"].(string)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: charge %s has no booking_id", domain.ErrUnrecognizedPayload, ch.ID)
	}

	outcome, ok := chargeOutcomes[string(ch.Status)]
	if !ok {
		outcome = domain.OutcomePending
	}

	return &domain.WebhookEvent{
		EventID:           ev.ID,
		BookingRef:        bookingID,
		ProviderPaymentID: ch.ID,
		Outcome:           outcome,
	}, nil
}

// do runs a client operation while honouring ctx; the omise client itself
// has no context support. A call abandoned on ctx keeps running, and its
// eventual result is logged because Omise may still have applied it.
func (g *Gateway) do(ctx context.Context, op string, call func() error, fields ...zap.Field) error {
	errc := make(chan error, 1)
	go func() {
		errc <- call()
	}()

	select {
	case <-ctx.Done():
		go g.reportAbandoned(op, g.now(), errc, fields)
		return fmt.Errorf("%w: omise: %v", domain.ErrProviderUnavailable, ctx.Err())
	case err := <-errc:
		return classify(err)
	}
}

func (g *Gateway) reportAbandoned(op string, abandonedAt time.Time, errc <-chan error, fields []zap.Field) {
	err := <-errc
	fields = append(fields,
		zap.String("op", op),
		zap.Duration("late_by", g.now().Sub(abandonedAt)),
	)
	if err != nil {
		g.log.Info("abandoned omise call failed", append(fields, zap.Error(err))...)
		return
	}
	g.log.Warn("abandoned omise call succeeded, reconcile with the omise dashboard", fields...)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var oe *omise.Error
	if errors.As(err, &oe) {
		if oe.StatusCode == http.StatusUnauthorized || oe.StatusCode >= 500 {
			return fmt.Errorf("%w: omise %s: %s", domain.ErrProviderUnavailable, oe.Code, oe.Message)
		}
		return fmt.Errorf("%w: omise %s: %s", domain.ErrProviderRejected, oe.Code, oe.Message)
	}
	return fmt.Errorf("%w: omise: %v", domain.ErrProviderUnavailable, err)
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

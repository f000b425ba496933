package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/ports"
)

const defaultProviderTimeout = 15 * time.Second

// PaymentService routes payment calls to the gateway registered for a
// provider. Gateways are kept in registration order so payment options are
// listed deterministically.
type PaymentService struct {
	gateways map[domain.Provider]ports.ProviderGateway
	order    []domain.Provider
	timeout  time.Duration
}

func NewPaymentService(timeout time.Duration, gateways ...ports.ProviderGateway) *PaymentService {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	s := &PaymentService{
		gateways: make(map[domain.Provider]ports.ProviderGateway, len(gateways)),
		timeout:  timeout,
	}
	for _, g := range gateways {
		s.Register(g)
	}
	return s
}

// Register adds or replaces the gateway for g.Provider().
func (s *PaymentService) Register(g ports.ProviderGateway) {
	p := g.Provider()
	if _, exists := s.gateways[p]; !exists {
		s.order = append(s.order, p)
	}
	s.gateways[p] = g
}

func (s *PaymentService) Gateway(provider domain.Provider) (ports.ProviderGateway, error) {
	g, ok := s.gateways[domain.ParseProvider(string(provider))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, provider)
	}
	return g, nil
}

func (s *PaymentService) Providers() []domain.Provider {
	out := make([]domain.Provider, len(s.order))
	copy(out, s.order)
	return out
}

func (s *PaymentService) Supports(provider domain.Provider) bool {
	_, err := s.Gateway(provider)
	return err == nil
}

func (s *PaymentService) InitiatePayment(ctx context.Context, bookingID string, provider domain.Provider, amountUSD float64, currency string) (*domain.PaymentInit, error) {
	g, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	init, err := g.CreatePayment(ctx, bookingID, amountUSD, currency)
	if err != nil {
		return nil, providerError(ctx, err)
	}
	return init, nil
}

func (s *PaymentService) CapturePayment(ctx context.Context, bookingID string, provider domain.Provider, providerPaymentID string) (*domain.CaptureResult, error) {
	g, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := g.CapturePayment(ctx, bookingID, providerPaymentID)
	if err != nil {
		return nil, providerError(ctx, err)
	}
	return res, nil
}

func (s *PaymentService) RefundPayment(ctx context.Context, payment *domain.Payment) (*domain.RefundResult, error) {
	g, err := s.Gateway(payment.Provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := g.RefundPayment(ctx, payment)
	if err != nil {
		return nil, providerError(ctx, err)
	}
	return res, nil
}

func (s *PaymentService) VerifyWebhook(provider domain.Provider, raw []byte, header http.Header) error {
	g, err := s.Gateway(provider)
	if err != nil {
		return err
	}
	return g.VerifyWebhook(raw, header)
}

func (s *PaymentService) ParseWebhook(provider domain.Provider, raw []byte) (*domain.WebhookEvent, error) {
	g, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}
	return g.ParseWebhook(raw)
}

// providerError makes sure a timed-out call is reported as unavailable even
// when the gateway surfaced the raw context error.
func providerError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderRejected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %v", domain.ErrProviderUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

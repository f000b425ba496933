// Package memory is a mutex-guarded Store for development and tests. Every
// read returns a copy so callers never share mutable state with the store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	bookings       map[string]*domain.Booking
	payments       map[string]*domain.Payment
	paymentsByBook map[string][]string
	nfts           map[string]*domain.NFT
	users          map[string]*domain.User
	merchants      map[string]*domain.Merchant
	services       map[string]*domain.Service
	webhookLogs    []*domain.WebhookLog
}

func NewStore() *Store {
	return &Store{
		now:            time.Now,
		bookings:       make(map[string]*domain.Booking),
		payments:       make(map[string]*domain.Payment),
		paymentsByBook: make(map[string][]string),
		nfts:           make(map[string]*domain.NFT),
		users:          make(map[string]*domain.User),
		merchants:      make(map[string]*domain.Merchant),
		services:       make(map[string]*domain.Service),
	}
}

func (s *Store) CreateBooking(_ context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[booking.ID]; ok {
		return domain.ErrConflict
	}
	if booking.Status != domain.BookingCancelled {
		for _, b := range s.bookings {
			if b.BookingHash == booking.BookingHash && b.Status != domain.BookingCancelled {
				return domain.ErrConflict
			}
		}
	}

	now := s.now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Version == 0 {
		booking.Version = 1
	}

	cp := *booking
	s.bookings[booking.ID] = &cp
	return nil
}

func (s *Store) GetBooking(_ context.Context, bookingID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetActiveBookingByHash(_ context.Context, hash string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bookings {
		if b.BookingHash == hash && b.Status != domain.BookingCancelled {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (s *Store) UpdateBooking(_ context.Context, bookingID string, upd domain.BookingUpdate) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	s.applyBooking(b, upd.Status)

	cp := *b
	return &cp, nil
}

func (s *Store) GetBookingsByUser(_ context.Context, userID string) ([]*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[payment.ID]; ok {
		return domain.ErrConflict
	}
	if _, ok := s.bookings[payment.BookingID]; !ok {
		return domain.ErrBookingNotFound
	}

	now := s.now()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	s.payments[payment.ID] = clonePayment(payment)
	s.paymentsByBook[payment.BookingID] = append(s.paymentsByBook[payment.BookingID], payment.ID)
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (s *Store) GetPaymentByBooking(_ context.Context, bookingID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.paymentsByBook[bookingID]
	if len(ids) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(s.payments[ids[len(ids)-1]]), nil
}

func (s *Store) ListPaymentsByBooking(_ context.Context, bookingID string) ([]*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.paymentsByBook[bookingID]
	out := make([]*domain.Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, clonePayment(s.payments[id]))
	}
	return out, nil
}

func (s *Store) GetPaymentByProviderRef(_ context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if providerPaymentID == "" {
		return nil, domain.ErrPaymentNotFound
	}
	for _, p := range s.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Store) UpdatePayment(_ context.Context, paymentID string, upd domain.PaymentUpdate) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	s.applyPayment(p, upd)
	return clonePayment(p), nil
}

// Settle checks both guards before touching either row, so a miss on one
// side leaves the other unchanged.
func (s *Store) Settle(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[st.BookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if len(st.BookingFrom) > 0 && !slices.Contains(st.BookingFrom, b.Status) {
		return domain.ErrStaleState
	}

	var p *domain.Payment
	if st.PaymentID != "" {
		p, ok = s.payments[st.PaymentID]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		if p.BookingID != st.BookingID {
			return domain.ErrStaleState
		}
		if len(st.PaymentFrom) > 0 && !slices.Contains(st.PaymentFrom, p.Status) {
			return domain.ErrStaleState
		}
	}

	if st.BookingTo != nil {
		s.applyBooking(b, st.BookingTo)
	}
	if p != nil {
		s.applyPayment(p, st.Payment)
	}
	return nil
}

func (s *Store) CreateNFT(_ context.Context, nft *domain.NFT) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nfts[nft.ID]; ok {
		return domain.ErrConflict
	}
	for _, n := range s.nfts {
		if n.BookingID == nft.BookingID {
			return domain.ErrNFTAlreadyMinted
		}
	}

	now := s.now()
	if nft.CreatedAt.IsZero() {
		nft.CreatedAt = now
	}
	nft.UpdatedAt = now

	cp := *nft
	s.nfts[nft.ID] = &cp
	return nil
}

func (s *Store) GetNFT(_ context.Context, nftID string) (*domain.NFT, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nfts[nftID]
	if !ok {
		return nil, domain.ErrNFTNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *Store) GetNFTByBooking(_ context.Context, bookingID string) (*domain.NFT, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nfts {
		if n.BookingID == bookingID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, domain.ErrNFTNotFound
}

func (s *Store) MarkNFTBurned(_ context.Context, nftID string, at time.Time) (*domain.NFT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nfts[nftID]
	if !ok {
		return nil, domain.ErrNFTNotFound
	}
	if !n.Burned {
		n.Burned = true
		n.BurnedAt = &at
		n.UpdatedAt = s.now()
	}

	cp := *n
	return &cp, nil
}

func (s *Store) CreateWebhookLog(_ context.Context, log *domain.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	cp := *log
	cp.Payload = slices.Clone(log.Payload)
	s.webhookLogs = append(s.webhookLogs, &cp)
	return nil
}

// WebhookLogs returns every recorded delivery in arrival order.
func (s *Store) WebhookLogs() []domain.WebhookLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WebhookLog, 0, len(s.webhookLogs))
	for _, l := range s.webhookLogs {
		out = append(out, *l)
	}
	return out
}

func (s *Store) applyBooking(b *domain.Booking, status *domain.BookingStatus) {
	if status != nil {
		b.Status = *status
	}
	b.Version++
	b.UpdatedAt = s.now()
}

func (s *Store) applyPayment(p *domain.Payment, upd domain.PaymentUpdate) {
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.CapturedAt != nil {
		t := *upd.CapturedAt
		p.CapturedAt = &t
	}
	if upd.RawResponse != nil {
		p.RawResponse = slices.Clone(upd.RawResponse)
	}
	if upd.RefundReference != nil {
		p.RefundReference = *upd.RefundReference
	}
	if upd.ManualRefund != nil {
		p.ManualRefund = *upd.ManualRefund
	}
	p.UpdatedAt = s.now()
}

func clonePayment(p *domain.Payment) *domain.Payment {
	cp := *p
	cp.RawResponse = slices.Clone(p.RawResponse)
	if p.CapturedAt != nil {
		t := *p.CapturedAt
		cp.CapturedAt = &t
	}
	return &cp
}

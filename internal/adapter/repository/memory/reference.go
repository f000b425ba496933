package memory

import (
	"context"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetMerchant(_ context.Context, merchantID string) (*domain.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merchants[merchantID]
	if !ok {
		return nil, domain.ErrMerchantNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) GetService(_ context.Context, serviceID string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[serviceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

// PutUser, PutMerchant and PutService seed reference data, which the
// platform itself never writes.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Store) PutMerchant(m domain.Merchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchants[m.ID] = &m
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = &svc
}

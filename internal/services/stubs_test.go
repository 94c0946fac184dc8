package services

import (
	"context"
	"sync"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "repo error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubCatalog struct {
	services []domain.ServiceCatalogEntry
	err      error
}

func (s *stubCatalog) ListServices(context.Context) ([]domain.ServiceCatalogEntry, error) {
	return s.services, s.err
}

func (s *stubCatalog) FindService(_ context.Context, id string) (domain.ServiceCatalogEntry, error) {
	for _, svc := range s.services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return domain.ServiceCatalogEntry{}, &stubRepoError{notFound: true}
}

type stubSpecialRates struct {
	mu       sync.Mutex
	rates    []domain.SpecialRate
	listErr  error
	writeErr error
	listed   []string
	deleted  []string
}

func (s *stubSpecialRates) ListByCustomer(_ context.Context, customerID string) ([]domain.SpecialRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, customerID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.SpecialRate
	for _, rate := range s.rates {
		if rate.CustomerID == customerID {
			out = append(out, rate)
		}
	}
	return out, nil
}

func (s *stubSpecialRates) Insert(ctx context.Context, rate domain.SpecialRate, guard repositories.SpecialRateGuard) (domain.SpecialRate, error) {
	if s.writeErr != nil {
		return domain.SpecialRate{}, s.writeErr
	}
	existing, _ := s.ListByCustomer(ctx, rate.CustomerID)
	if guard != nil {
		if err := guard(existing); err != nil {
			return domain.SpecialRate{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, rate)
	return rate, nil
}

func (s *stubSpecialRates) Delete(_ context.Context, customerID, rateID string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rate := range s.rates {
		if rate.CustomerID == customerID && rate.ID == rateID {
			s.rates = append(s.rates[:i], s.rates[i+1:]...)
			s.deleted = append(s.deleted, rateID)
			return nil
		}
	}
	return &stubRepoError{notFound: true}
}

type stubPromotions struct {
	promotions []domain.Promotion
	err        error
	calls      int
	mu         sync.Mutex
}

func (s *stubPromotions) ListActive(context.Context) ([]domain.Promotion, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.promotions, s.err
}

func (s *stubPromotions) FindByID(_ context.Context, id string) (domain.Promotion, error) {
	if s.err != nil {
		return domain.Promotion{}, s.err
	}
	for _, promo := range s.promotions {
		if promo.ID == id {
			return promo, nil
		}
	}
	return domain.Promotion{}, &stubRepoError{notFound: true}
}

type stubTaxRates struct {
	rates []domain.TaxRate
	err   error
}

func (s *stubTaxRates) ListTaxRates(context.Context) ([]domain.TaxRate, error) {
	return s.rates, s.err
}

type stubCustomers struct {
	customers map[string]domain.Customer
	err       error
}

func (s *stubCustomers) FindCustomer(_ context.Context, id string) (domain.Customer, error) {
	if s.err != nil {
		return domain.Customer{}, s.err
	}
	customer, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, &stubRepoError{notFound: true}
	}
	return customer, nil
}

type stubPublisher struct {
	events []domain.RateChangeEvent
	err    error
}

func (s *stubPublisher) PublishRateChange(_ context.Context, event domain.RateChangeEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubMetrics struct {
	mu              sync.Mutex
	quotes          int
	specialRateHits int
	clamped         []string
}

func (m *stubMetrics) RecordQuote(context.Context, string, string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes++
}

func (m *stubMetrics) RecordSpecialRateHit(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specialRateHits++
}

func (m *stubMetrics) RecordDiscountClamped(_ context.Context, promotionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clamped = append(m.clamped, promotionID)
}

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

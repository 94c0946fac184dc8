package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/repositories"
)

// QuoteServiceDeps bundles collaborators for the quote service.
type QuoteServiceDeps struct {
	Engine       *PricingEngine
	Catalog      repositories.ServiceCatalogRepository
	SpecialRates repositories.SpecialRateRepository
	Promotions   repositories.PromotionRepository
	TaxRates     repositories.TaxRateRepository
	Customers    repositories.CustomerRepository
	Metrics      PricingMetrics
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type quoteService struct {
	engine       *PricingEngine
	catalog      repositories.ServiceCatalogRepository
	specialRates repositories.SpecialRateRepository
	promotions   repositories.PromotionRepository
	taxRates     repositories.TaxRateRepository
	customers    repositories.CustomerRepository
	metrics      PricingMetrics
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

var _ QuoteService = (*quoteService)(nil)

// NewQuoteService wires the pricing pipeline to its reference data. Customers and Metrics are optional.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Engine == nil {
		return nil, errors.New("quote service: pricing engine is required")
	}
	if deps.Catalog == nil || deps.SpecialRates == nil || deps.Promotions == nil || deps.TaxRates == nil {
		return nil, errors.New("quote service: catalog, special rate, promotion and tax repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &quoteService{
		engine:       deps.Engine,
		catalog:      deps.Catalog,
		specialRates: deps.SpecialRates,
		promotions:   deps.Promotions,
		taxRates:     deps.TaxRates,
		customers:    deps.Customers,
		metrics:      deps.Metrics,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

func (s *quoteService) Quote(ctx context.Context, cmd QuoteCommand) (PricingResult, error) {
	req := cmd.Request
	req.ServiceTypeID = strings.TrimSpace(req.ServiceTypeID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.SelectedPromotionID = strings.TrimSpace(req.SelectedPromotionID)
	if err := validateQuoteRequest(req); err != nil {
		return PricingResult{}, err
	}

	var snapshot domain.PricingSnapshot
	var registeredAt *time.Time
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snapshot.Catalog, err = s.catalog.ListServices(gctx)
		return err
	})
	g.Go(func() (err error) {
		snapshot.TaxRates, err = s.taxRates.ListTaxRates(gctx)
		return err
	})
	if req.SelectedPromotionID != "" {
		g.Go(func() (err error) {
			snapshot.Promotions, err = s.promotions.ListActive(gctx)
			return err
		})
	}
	if req.CustomerID != "" {
		g.Go(func() (err error) {
			snapshot.SpecialRates, err = s.specialRates.ListByCustomer(gctx, req.CustomerID)
			return err
		})
		if req.CustomerRegisteredAt == nil {
			g.Go(func() (err error) {
				registeredAt, err = s.registration(gctx, req.CustomerID)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		s.logger(ctx, "quote_snapshot_failed", map[string]any{"serviceTypeId": req.ServiceTypeID, "error": err.Error()})
		return PricingResult{}, fmt.Errorf("%w: %v", ErrQuoteSnapshotUnavailable, err)
	}
	if req.CustomerRegisteredAt == nil {
		req.CustomerRegisteredAt = registeredAt
	}

	result := s.engine.ComputePricing(ctx, req, snapshot)
	s.record(ctx, req, result)
	return result, nil
}

func (s *quoteService) EligiblePromotions(ctx context.Context, query PromotionQuery) ([]Promotion, error) {
	q, err := s.eligibilityQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	promotions, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteSnapshotUnavailable, err)
	}
	return FilterEligiblePromotions(q, promotions), nil
}

func (s *quoteService) CheckPromotion(ctx context.Context, promotionID string, query PromotionQuery) (bool, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return false, fmt.Errorf("%w: promotion id is required", ErrQuoteInvalidInput)
	}
	q, err := s.eligibilityQuery(ctx, query)
	if err != nil {
		return false, err
	}
	promo, err := s.promotions.FindByID(ctx, promotionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, ErrPromotionNotFound
		}
		return false, fmt.Errorf("%w: %v", ErrQuoteSnapshotUnavailable, err)
	}
	return IsPromotionEligible(promotionID, q, []domain.Promotion{promo}), nil
}

func (s *quoteService) eligibilityQuery(ctx context.Context, query PromotionQuery) (PromotionEligibilityQuery, error) {
	serviceTypeID := strings.TrimSpace(query.ServiceTypeID)
	if serviceTypeID == "" {
		return PromotionEligibilityQuery{}, fmt.Errorf("%w: service type id is required", ErrQuoteInvalidInput)
	}
	now := s.clock()
	q := PromotionEligibilityQuery{
		CustomerID:    strings.TrimSpace(query.CustomerID),
		ServiceTypeID: serviceTypeID,
		BookingDate:   query.BookingDate,
		RegisteredAt:  query.RegisteredAt,
		Now:           now,
		Location:      s.engine.Location(),
	}
	if q.BookingDate.IsZero() {
		q.BookingDate = now
	}
	if q.RegisteredAt == nil && q.CustomerID != "" {
		registeredAt, err := s.registration(ctx, q.CustomerID)
		if err != nil {
			return PromotionEligibilityQuery{}, fmt.Errorf("%w: %v", ErrQuoteSnapshotUnavailable, err)
		}
		q.RegisteredAt = registeredAt
	}
	return q, nil
}

// registration looks up when the customer registered. Unknown customers have no registration date.
func (s *quoteService) registration(ctx context.Context, customerID string) (*time.Time, error) {
	if s.customers == nil {
		return nil, nil
	}
	customer, err := s.customers.FindCustomer(ctx, customerID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return customer.RegisteredAt, nil
}

func (s *quoteService) record(ctx context.Context, req PricingRequest, result PricingResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordQuote(ctx, string(result.Currency), req.ServiceTypeID, len(result.Warnings))
	if result.UsedSpecialRate {
		s.metrics.RecordSpecialRateHit(ctx, req.ServiceTypeID)
	}
	if result.DiscountClamped {
		s.metrics.RecordDiscountClamped(ctx, result.AppliedPromotionID)
	}
}

func validateQuoteRequest(req PricingRequest) error {
	if req.ServiceTypeID == "" {
		return fmt.Errorf("%w: service type id is required", ErrQuoteInvalidInput)
	}
	if req.CurrencyBasis != "" && !req.CurrencyBasis.Valid() {
		return fmt.Errorf("%w: unsupported currency basis %q", ErrQuoteInvalidInput, req.CurrencyBasis)
	}
	if req.FeeMode != "" && req.FeeMode != domain.FeeModeSingle && req.FeeMode != domain.FeeModePerItem {
		return fmt.Errorf("%w: unsupported fee mode %q", ErrQuoteInvalidInput, req.FeeMode)
	}
	if req.Distance.IsNegative() {
		return fmt.Errorf("%w: distance must not be negative", ErrQuoteInvalidInput)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/repositories"
)

// SpecialRateServiceDeps bundles collaborators for special rate administration.
type SpecialRateServiceDeps struct {
	Repository repositories.SpecialRateRepository
	Publisher  RateChangePublisher
	Location   *time.Location
	Clock      func() time.Time
	IDGen      func() string
	Logger     func(context.Context, string, map[string]any)
}

type specialRateService struct {
	repo      repositories.SpecialRateRepository
	publisher RateChangePublisher
	location  *time.Location
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ SpecialRateService = (*specialRateService)(nil)

// NewSpecialRateService constructs the special rate service. Publisher is optional.
func NewSpecialRateService(deps SpecialRateServiceDeps) (SpecialRateService, error) {
	if deps.Repository == nil {
		return nil, errors.New("special rate service: repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &specialRateService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		location:  loc,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		logger:    logger,
	}, nil
}

func (s *specialRateService) ListSpecialRates(ctx context.Context, customerID string) ([]SpecialRate, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrSpecialRateInvalid)
	}
	rates, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return rates, nil
}

func (s *specialRateService) CreateSpecialRate(ctx context.Context, cmd CreateSpecialRateCommand) (SpecialRate, error) {
	rate := domain.SpecialRate{
		ID:             s.newID(),
		CustomerID:     strings.TrimSpace(cmd.CustomerID),
		ServiceTypeID:  strings.TrimSpace(cmd.ServiceTypeID),
		PriceBase:      cmd.PriceBase,
		PriceSecondary: cmd.PriceSecondary,
		StartDate:      cmd.StartDate,
		EndDate:        cmd.EndDate,
	}
	if err := ValidateSpecialRate(rate, s.location); err != nil {
		return SpecialRate{}, err
	}

	saved, err := s.repo.Insert(ctx, rate, func(existing []domain.SpecialRate) error {
		return ValidateNoOverlap(rate, existing, s.location)
	})
	if err != nil {
		if errors.Is(err, ErrSpecialRateOverlap) {
			s.logger(ctx, "special_rate_overlap_rejected", map[string]any{"customerId": rate.CustomerID, "serviceTypeId": rate.ServiceTypeID})
			return SpecialRate{}, err
		}
		return SpecialRate{}, s.mapError(err)
	}

	s.logger(ctx, "special_rate_created", map[string]any{"customerId": saved.CustomerID, "rateId": saved.ID, "actorId": cmd.ActorID})
	s.publish(ctx, domain.RateChangeCreated, saved.CustomerID, saved.ServiceTypeID, saved.ID)
	return saved, nil
}

func (s *specialRateService) DeleteSpecialRate(ctx context.Context, cmd DeleteSpecialRateCommand) error {
	customerID := strings.TrimSpace(cmd.CustomerID)
	rateID := strings.TrimSpace(cmd.RateID)
	if customerID == "" || rateID == "" {
		return fmt.Errorf("%w: customer id and rate id are required", ErrSpecialRateInvalid)
	}
	if err := s.repo.Delete(ctx, customerID, rateID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "special_rate_deleted", map[string]any{"customerId": customerID, "rateId": rateID, "actorId": cmd.ActorID})
	s.publish(ctx, domain.RateChangeDeleted, customerID, "", rateID)
	return nil
}

func (s *specialRateService) publish(ctx context.Context, eventType, customerID, serviceTypeID, rateID string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishRateChange(ctx, domain.RateChangeEvent{
		Type:          eventType,
		CustomerID:    customerID,
		ServiceTypeID: serviceTypeID,
		RateID:        rateID,
		OccurredAt:    s.clock(),
	})
	if err != nil {
		s.logger(ctx, "special_rate_publish_failed", map[string]any{"type": eventType, "rateId": rateID, "error": err.Error()})
	}
}

func (s *specialRateService) mapError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrSpecialRateNotFound, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrSpecialRateUnavailable, err)
	default:
		return err
	}
}

// ValidateSpecialRate checks that a rate is complete and its window is ordered by calendar date.
func ValidateSpecialRate(rate domain.SpecialRate, loc *time.Location) error {
	if strings.TrimSpace(rate.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrSpecialRateInvalid)
	}
	if strings.TrimSpace(rate.ServiceTypeID) == "" {
		return fmt.Errorf("%w: service type id is required", ErrSpecialRateInvalid)
	}
	if rate.PriceBase.IsNegative() {
		return fmt.Errorf("%w: base price must not be negative", ErrSpecialRateInvalid)
	}
	if rate.PriceSecondary != nil && rate.PriceSecondary.IsNegative() {
		return fmt.Errorf("%w: secondary price must not be negative", ErrSpecialRateInvalid)
	}
	start, okStart := calendarDateOf(rate.StartDate, loc)
	end, okEnd := calendarDateOf(rate.EndDate, loc)
	if !okStart || !okEnd {
		return fmt.Errorf("%w: start and end dates are required", ErrSpecialRateInvalid)
	}
	if start > end {
		return fmt.Errorf("%w: start date is after end date", ErrSpecialRateInvalid)
	}
	return nil
}

// ValidateNoOverlap rejects candidate when another rate for the same service shares a calendar day with it.
func ValidateNoOverlap(candidate domain.SpecialRate, existing []domain.SpecialRate, loc *time.Location) error {
	start, okStart := calendarDateOf(candidate.StartDate, loc)
	end, okEnd := calendarDateOf(candidate.EndDate, loc)
	if !okStart || !okEnd {
		return nil
	}
	for _, other := range existing {
		if other.ID == candidate.ID || other.ServiceTypeID != candidate.ServiceTypeID {
			continue
		}
		otherStart, ok1 := calendarDateOf(other.StartDate, loc)
		otherEnd, ok2 := calendarDateOf(other.EndDate, loc)
		if !ok1 || !ok2 || otherStart > otherEnd {
			continue
		}
		if start <= otherEnd && otherStart <= end {
			return fmt.Errorf("%w: conflicts with rate %s", ErrSpecialRateOverlap, other.ID)
		}
	}
	return nil
}

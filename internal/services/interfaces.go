package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	PricingRequest     = domain.PricingRequest
	PricingResult      = domain.PricingResult
	Promotion          = domain.Promotion
	SpecialRate        = domain.SpecialRate
	SystemHealthReport = domain.SystemHealthReport
)

// QuoteService prices bookings against the current reference data.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (PricingResult, error)
	EligiblePromotions(ctx context.Context, query PromotionQuery) ([]Promotion, error)
	CheckPromotion(ctx context.Context, promotionID string, query PromotionQuery) (bool, error)
}

// SpecialRateService manages customer negotiated rates.
type SpecialRateService interface {
	ListSpecialRates(ctx context.Context, customerID string) ([]SpecialRate, error)
	CreateSpecialRate(ctx context.Context, cmd CreateSpecialRateCommand) (SpecialRate, error)
	DeleteSpecialRate(ctx context.Context, cmd DeleteSpecialRateCommand) error
}

// SystemService reports service health for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// RateChangePublisher notifies downstream consumers about special rate changes.
type RateChangePublisher interface {
	PublishRateChange(ctx context.Context, event domain.RateChangeEvent) error
}

// PricingMetrics records quote outcomes.
type PricingMetrics interface {
	RecordQuote(ctx context.Context, currency, serviceTypeID string, warnings int)
	RecordSpecialRateHit(ctx context.Context, serviceTypeID string)
	RecordDiscountClamped(ctx context.Context, promotionID string)
}

// QuoteCommand asks for the price of a booking.
type QuoteCommand struct {
	Request PricingRequest
}

// PromotionQuery describes the booking promotions are listed or checked against. A zero
// BookingDate means today.
type PromotionQuery struct {
	ServiceTypeID string
	CustomerID    string
	BookingDate   time.Time
	RegisteredAt  *time.Time
}

// CreateSpecialRateCommand carries a new negotiated rate.
type CreateSpecialRateCommand struct {
	CustomerID     string
	ServiceTypeID  string
	PriceBase      decimal.Decimal
	PriceSecondary *decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	ActorID        string
}

// DeleteSpecialRateCommand removes a negotiated rate.
type DeleteSpecialRateCommand struct {
	CustomerID string
	RateID     string
	ActorID    string
}

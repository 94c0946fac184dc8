package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const pricingMeterName = "github.com/ds-advance/api/internal/services/pricing"

// PricingMetrics records quote outcomes. Instruments that fail to register are skipped.
type PricingMetrics struct {
	quotes          metric.Int64Counter
	specialRateHits metric.Int64Counter
	discountClamped metric.Int64Counter
}

// NewPricingMetrics registers the pricing instruments on meter, defaulting to the global provider.
func NewPricingMetrics(meter metric.Meter, logger *zap.Logger) *PricingMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(pricingMeterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &PricingMetrics{}
	var err error
	if m.quotes, err = meter.Int64Counter("pricing.quotes", metric.WithDescription("Quotes computed, by currency and outcome")); err != nil {
		logger.Warn("observability: unable to register pricing.quotes", zap.Error(err))
	}
	if m.specialRateHits, err = meter.Int64Counter("pricing.special_rate_hits", metric.WithDescription("Quotes priced from a negotiated special rate")); err != nil {
		logger.Warn("observability: unable to register pricing.special_rate_hits", zap.Error(err))
	}
	if m.discountClamped, err = meter.Int64Counter("pricing.discount_clamped", metric.WithDescription("Quotes whose promotion exceeded the subtotal")); err != nil {
		logger.Warn("observability: unable to register pricing.discount_clamped", zap.Error(err))
	}
	return m
}

// RecordQuote counts a computed quote.
func (m *PricingMetrics) RecordQuote(ctx context.Context, currency, serviceTypeID string, warnings int) {
	if m == nil || m.quotes == nil {
		return
	}
	outcome := "clean"
	if warnings > 0 {
		outcome = "flagged"
	}
	m.quotes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", currency),
		attribute.String("service_type", serviceTypeID),
		attribute.String("outcome", outcome),
	))
}

// RecordSpecialRateHit counts a quote priced from a special rate.
func (m *PricingMetrics) RecordSpecialRateHit(ctx context.Context, serviceTypeID string) {
	if m == nil || m.specialRateHits == nil {
		return
	}
	m.specialRateHits.Add(ctx, 1, metric.WithAttributes(attribute.String("service_type", serviceTypeID)))
}

// RecordDiscountClamped counts a promotion that was capped at the subtotal.
func (m *PricingMetrics) RecordDiscountClamped(ctx context.Context, promotionID string) {
	if m == nil || m.discountClamped == nil {
		return
	}
	m.discountClamped.Add(ctx, 1, metric.WithAttributes(attribute.String("promotion_id", promotionID)))
}

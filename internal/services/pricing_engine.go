package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

const (
	defaultAllocationScale int32 = 6
	maxAllocationScale     int32 = 12
)

var defaultExchangeRate = decimal.NewFromInt(4100)

// PricingEngine turns a booking request and a reference data snapshot into a chargeable amount.
// It holds only immutable configuration and is safe for concurrent use.
type PricingEngine struct {
	location            *time.Location
	defaultExchangeRate decimal.Decimal
	defaultFeeMode      domain.FeeMode
	scale               int32
	now                 func() time.Time
	logger              func(context.Context, string, map[string]any)
}

// PricingEngineDeps configures the pricing engine. Zero values fall back to the package defaults.
type PricingEngineDeps struct {
	Location            *time.Location
	DefaultExchangeRate decimal.Decimal
	DefaultFeeMode      domain.FeeMode
	AllocationScale     int32
	Now                 func() time.Time
	Logger              func(context.Context, string, map[string]any)
}

// NewPricingEngine validates deps and returns a ready engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	rate := deps.DefaultExchangeRate
	if rate.IsZero() {
		rate = defaultExchangeRate
	}
	if !rate.IsPositive() {
		return nil, errors.New("pricing engine: default exchange rate must be positive")
	}
	mode := deps.DefaultFeeMode
	if mode == "" {
		mode = domain.FeeModeSingle
	}
	if mode != domain.FeeModeSingle && mode != domain.FeeModePerItem {
		return nil, errors.New("pricing engine: unsupported default fee mode")
	}
	scale := deps.AllocationScale
	if scale == 0 {
		scale = defaultAllocationScale
	}
	if scale < 0 || scale > maxAllocationScale {
		return nil, errors.New("pricing engine: allocation scale out of range")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		location:            loc,
		defaultExchangeRate: rate,
		defaultFeeMode:      mode,
		scale:               scale,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

var defaultPricingEngine, _ = NewPricingEngine(PricingEngineDeps{})

// ComputePricing prices a booking with the default engine configuration (UTC calendar dates,
// 4100 fallback exchange rate, single fee mode).
func ComputePricing(req domain.PricingRequest, catalog []domain.ServiceCatalogEntry, rates []domain.SpecialRate, promotions []domain.Promotion, taxes []domain.TaxRate) domain.PricingResult {
	return defaultPricingEngine.ComputePricing(context.Background(), req, domain.PricingSnapshot{
		Catalog:      catalog,
		SpecialRates: rates,
		Promotions:   promotions,
		TaxRates:     taxes,
	})
}

// Location returns the business location calendar dates are evaluated in.
func (e *PricingEngine) Location() *time.Location {
	return e.location
}

// DefaultExchangeRate returns the rate applied when a request carries none.
func (e *PricingEngine) DefaultExchangeRate() decimal.Decimal {
	return e.defaultExchangeRate
}

// ComputePricing runs the pricing pipeline: currency basis, special rate, subtotal, promotion,
// discount, tax and per-parcel distribution. It never fails; unusable input is normalised and
// reported through result warnings.
func (e *PricingEngine) ComputePricing(ctx context.Context, req domain.PricingRequest, snapshot domain.PricingSnapshot) domain.PricingResult {
	warnings := warningSet{}

	basis, mixed := ResolveCurrencyBasis(req.CurrencyBasis, req.Items)
	if mixed {
		warnings.add(domain.WarningMixedItemCurrency)
	}

	exchangeRate := req.ExchangeRate
	if !exchangeRate.IsPositive() {
		e.logger(ctx, "pricing_exchange_rate_defaulted", map[string]any{"requested": exchangeRate.String(), "applied": e.defaultExchangeRate.String()})
		exchangeRate = e.defaultExchangeRate
		warnings.add(domain.WarningExchangeRateDefaulted)
	}
	conv := newCurrencyConverter(exchangeRate, e.scale)

	bookingDate := req.BookingDate
	if bookingDate.IsZero() {
		bookingDate = e.now()
		warnings.add(domain.WarningBookingDateDefaulted)
	}

	parcels := parcelCount(req)
	result := domain.PricingResult{
		Currency:     basis,
		ExchangeRate: exchangeRate,
	}

	service, ok := findService(snapshot.Catalog, req.ServiceTypeID)
	if !ok {
		warnings.add(domain.WarningUnknownService)
		result.PerItemFees = DistributeFee(FeeSplit{}, parcels, e.scale)
		result.Warnings = warnings.list()
		return result
	}

	unitPrice := catalogUnitPrice(service, basis, conv, nonNegative(req.Distance))
	special := ResolveSpecialRate(SpecialRateQuery{
		CustomerID:    req.CustomerID,
		ServiceTypeID: service.ID,
		BookingDate:   bookingDate,
		Basis:         basis,
		ExchangeRate:  exchangeRate,
		Location:      e.location,
	}, snapshot.SpecialRates)
	if special.Used {
		unitPrice = special.Price
		result.UsedSpecialRate = true
		result.SpecialRateID = special.RateID
	}
	if special.Overlapping {
		e.logger(ctx, "pricing_special_rate_overlap", map[string]any{"customerId": req.CustomerID, "serviceTypeId": service.ID, "selected": special.RateID})
		warnings.add(domain.WarningOverlappingSpecialRates)
	}

	subtotal := unitPrice.Mul(decimal.NewFromInt(e.billableUnits(req)))

	var selected *domain.Promotion
	if promoID := strings.TrimSpace(req.SelectedPromotionID); promoID != "" {
		eligible := FilterEligiblePromotions(PromotionEligibilityQuery{
			CustomerID:    req.CustomerID,
			ServiceTypeID: service.ID,
			BookingDate:   bookingDate,
			RegisteredAt:  req.CustomerRegisteredAt,
			Now:           e.now(),
			Location:      e.location,
		}, snapshot.Promotions)
		for i := range eligible {
			if eligible[i].ID == promoID {
				selected = &eligible[i]
				break
			}
		}
		if selected == nil {
			e.logger(ctx, "pricing_promotion_cleared", map[string]any{"promotionId": promoID, "serviceTypeId": service.ID})
			result.PromotionCleared = true
			warnings.add(domain.WarningPromotionNotEligible)
		}
	}

	discount, clamped := calculateDiscount(subtotal, selected, DiscountConversion{
		Basis:        basis,
		ExchangeRate: exchangeRate,
		Scale:        e.scale,
	})
	if clamped {
		result.DiscountClamped = true
		e.logger(ctx, "pricing_discount_clamped", map[string]any{"subtotal": subtotal.String(), "promotionId": selected.ID})
	}
	if selected != nil {
		result.AppliedPromotionID = selected.ID
	}

	taxRate := findTaxRate(snapshot.TaxRates, service.TaxRateID)
	if taxRate == nil && strings.TrimSpace(service.TaxRateID) != "" {
		warnings.add(domain.WarningTaxRateMissing)
	}
	if taxRate != nil {
		result.TaxRateID = taxRate.ID
	}
	tax := CalculateTax(subtotal.Sub(discount), taxRate)
	total := nonNegative(subtotal.Sub(discount).Add(tax))

	split := FeeSplit{Total: total}
	if basis == domain.CurrencySecondary {
		split.TotalSecondary = total
		split.TotalBase = conv.toBase(total)
	} else {
		split.TotalBase = total
		split.TotalSecondary = conv.toSecondary(total)
	}

	result.Subtotal = subtotal
	result.Discount = discount
	result.Tax = tax
	result.Total = total
	result.UnitPrice = unitPrice
	result.TotalBase = split.TotalBase
	result.TotalSecondary = split.TotalSecondary
	result.PerItemFees = DistributeFee(split, parcels, e.scale)
	result.Warnings = warnings.list()
	return result
}

func (e *PricingEngine) billableUnits(req domain.PricingRequest) int64 {
	mode := req.FeeMode
	if mode != domain.FeeModeSingle && mode != domain.FeeModePerItem {
		mode = e.defaultFeeMode
	}
	if mode != domain.FeeModePerItem {
		return 1
	}
	if len(req.Items) == 0 {
		return int64(atLeastOne(req.ItemCount))
	}
	units := int64(0)
	for _, item := range req.Items {
		units += int64(atLeastOne(item.Quantity))
	}
	return units
}

// parcelCount is the number of rows the fee is distributed over.
func parcelCount(req domain.PricingRequest) int {
	if len(req.Items) > 0 {
		return len(req.Items)
	}
	return atLeastOne(req.ItemCount)
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func findService(catalog []domain.ServiceCatalogEntry, id string) (domain.ServiceCatalogEntry, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ServiceCatalogEntry{}, false
	}
	for _, entry := range catalog {
		if entry.ID == id {
			return entry, true
		}
	}
	return domain.ServiceCatalogEntry{}, false
}

type warningSet []string

func (w *warningSet) add(flag string) {
	for _, existing := range *w {
		if existing == flag {
			return
		}
	}
	*w = append(*w, flag)
}

func (w warningSet) list() []string {
	if len(w) == 0 {
		return nil
	}
	return append([]string(nil), w...)
}

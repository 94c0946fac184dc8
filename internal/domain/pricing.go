package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyCode identifies which side of the two-currency system an amount is expressed in.
type CurrencyCode string

const (
	CurrencyBase      CurrencyCode = "BASE"
	CurrencySecondary CurrencyCode = "SECONDARY"
)

// ParseCurrencyCode normalises user supplied currency tags. Unknown values report ok=false.
func ParseCurrencyCode(raw string) (CurrencyCode, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(CurrencyBase):
		return CurrencyBase, true
	case string(CurrencySecondary):
		return CurrencySecondary, true
	default:
		return "", false
	}
}

// Valid reports whether the code is one of the two supported currencies.
func (c CurrencyCode) Valid() bool {
	return c == CurrencyBase || c == CurrencySecondary
}

// DiscountType enumerates how a promotion value is interpreted.
type DiscountType string

const (
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountPercentage  DiscountType = "PERCENTAGE"
)

// Eligibility enumerates which customers a promotion targets.
type Eligibility string

const (
	EligibilityAll                 Eligibility = "ALL"
	EligibilitySpecificUsers       Eligibility = "SPECIFIC_USERS"
	EligibilityRegisteredLast7Days Eligibility = "REGISTERED_LAST_7_DAYS"
	EligibilityRegisteredLastMonth Eligibility = "REGISTERED_LAST_MONTH"
	EligibilityRegisteredLastYear  Eligibility = "REGISTERED_LAST_YEAR"
)

// ProductScope enumerates which services a promotion applies to.
type ProductScope string

const (
	ScopeAllProducts      ProductScope = "ALL_PRODUCTS"
	ScopeSpecificProducts ProductScope = "SPECIFIC_PRODUCTS"
)

// FeeMode selects how the unit price is multiplied into the booking subtotal.
type FeeMode string

const (
	// FeeModeSingle charges one delivery fee per booking regardless of parcel count.
	FeeModeSingle FeeMode = "single"
	// FeeModePerItem charges the unit price for every billable unit.
	FeeModePerItem FeeMode = "per_item"
)

// ParseFeeMode normalises fee mode names. Unknown values report ok=false.
func ParseFeeMode(raw string) (FeeMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(FeeModeSingle), "single_fee":
		return FeeModeSingle, true
	case string(FeeModePerItem), "per-item", "peritem":
		return FeeModePerItem, true
	default:
		return "", false
	}
}

// ServiceCatalogEntry is the configured default pricing of a parcel service.
type ServiceCatalogEntry struct {
	ID                            string
	Name                          string
	DefaultPrice                  decimal.Decimal
	DefaultPriceSecondary         *decimal.Decimal
	PricePerDistanceUnit          *decimal.Decimal
	PricePerDistanceUnitSecondary *decimal.Decimal
	TaxRateID                     string
	Active                        bool
}

// SpecialRate is a customer specific negotiated price valid within an inclusive date window.
type SpecialRate struct {
	ID             string
	CustomerID     string
	ServiceTypeID  string
	PriceBase      decimal.Decimal
	PriceSecondary *decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Promotion is a time bounded discount rule restricted by customer eligibility and service scope.
type Promotion struct {
	ID                string
	Code              string
	Description       string
	DiscountType      DiscountType
	Value             decimal.Decimal
	Currency          CurrencyCode
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
	Eligibility       Eligibility
	AllowedUserIDs    []string
	ProductScope      ProductScope
	AllowedProductIDs []string
}

// TaxRate is a configured percentage applied to the discounted subtotal.
type TaxRate struct {
	ID          string
	Name        string
	RatePercent decimal.Decimal
}

// Customer carries the customer attributes pricing depends on.
type Customer struct {
	ID           string
	Name         string
	RegisteredAt *time.Time
}

// BookingItem is one parcel row of a booking.
type BookingItem struct {
	ID          string
	CODCurrency CurrencyCode
	CODAmount   decimal.Decimal
	Quantity    int
}

// PricingRequest captures everything the engine needs besides the data snapshot.
type PricingRequest struct {
	ServiceTypeID        string
	CustomerID           string
	BookingDate          time.Time
	ItemCount            int
	CurrencyBasis        CurrencyCode
	SelectedPromotionID  string
	CustomerRegisteredAt *time.Time
	ExchangeRate         decimal.Decimal
	Items                []BookingItem
	FeeMode              FeeMode
	Distance             decimal.Decimal
}

// PricingSnapshot bundles the read-only reference data a pricing call operates on.
type PricingSnapshot struct {
	Catalog      []ServiceCatalogEntry
	SpecialRates []SpecialRate
	Promotions   []Promotion
	TaxRates     []TaxRate
}

// PerItemFee is the share of the booking fee stored against a single parcel row.
type PerItemFee struct {
	Amount          decimal.Decimal
	BaseAmount      decimal.Decimal
	SecondaryAmount decimal.Decimal
}

// PricingResult is the outcome of a pricing call. Amounts are in Currency unless suffixed.
type PricingResult struct {
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Currency           CurrencyCode
	UsedSpecialRate    bool
	PerItemFees        []PerItemFee
	UnitPrice          decimal.Decimal
	TotalBase          decimal.Decimal
	TotalSecondary     decimal.Decimal
	ExchangeRate       decimal.Decimal
	SpecialRateID      string
	AppliedPromotionID string
	PromotionCleared   bool
	DiscountClamped    bool
	TaxRateID          string
	Warnings           []string
}

// Pricing warnings flag best-effort adjustments applied to partially filled input.
const (
	WarningUnknownService          = "unknown_service"
	WarningExchangeRateDefaulted   = "exchange_rate_defaulted"
	WarningOverlappingSpecialRates = "overlapping_special_rates"
	WarningPromotionNotEligible    = "promotion_not_eligible"
	WarningMixedItemCurrency       = "mixed_item_currency"
	WarningTaxRateMissing          = "tax_rate_missing"
	WarningBookingDateDefaulted    = "booking_date_defaulted"
)

// HasWarning reports whether the result carries the given warning flag.
func (r PricingResult) HasWarning(flag string) bool {
	for _, w := range r.Warnings {
		if w == flag {
			return true
		}
	}
	return false
}

// RateChangeEvent notifies other booking surfaces that a customer's negotiated rates changed.
type RateChangeEvent struct {
	Type          string    `json:"type"`
	CustomerID    string    `json:"customerId"`
	ServiceTypeID string    `json:"serviceTypeId"`
	RateID        string    `json:"rateId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Rate change event types.
const (
	RateChangeCreated = "special_rate.created"
	RateChangeDeleted = "special_rate.deleted"
)

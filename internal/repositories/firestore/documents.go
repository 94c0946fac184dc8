package firestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// Amounts are stored as decimal strings so no float rounding ever touches a price.

type serviceDocument struct {
	Name                          string  `firestore:"name"`
	DefaultPrice                  string  `firestore:"defaultPrice"`
	DefaultPriceSecondary         *string `firestore:"defaultPriceSecondary,omitempty"`
	PricePerDistanceUnit          *string `firestore:"pricePerDistanceUnit,omitempty"`
	PricePerDistanceUnitSecondary *string `firestore:"pricePerDistanceUnitSecondary,omitempty"`
	TaxRateID                     string  `firestore:"taxRateId,omitempty"`
	Active                        bool    `firestore:"active"`

	problems []string
}

func decodeServiceDocument(f *fieldReader) serviceDocument {
	doc := serviceDocument{
		Name:                          f.str("name"),
		DefaultPrice:                  f.str("defaultPrice"),
		DefaultPriceSecondary:         f.optionalStr("defaultPriceSecondary"),
		PricePerDistanceUnit:          f.optionalStr("pricePerDistanceUnit"),
		PricePerDistanceUnitSecondary: f.optionalStr("pricePerDistanceUnitSecondary"),
		TaxRateID:                     f.str("taxRateId"),
		Active:                        f.boolean("active"),
	}
	doc.problems = f.problems
	return doc
}

func (d serviceDocument) toDomain(id string) (domain.ServiceCatalogEntry, error) {
	entry := domain.ServiceCatalogEntry{
		ID:        id,
		Name:      d.Name,
		TaxRateID: strings.TrimSpace(d.TaxRateID),
		Active:    d.Active,
	}
	var err error
	if entry.DefaultPrice, err = parseAmount("defaultPrice", d.DefaultPrice); err != nil {
		return domain.ServiceCatalogEntry{}, err
	}
	if entry.DefaultPriceSecondary, err = parseOptionalAmount("defaultPriceSecondary", d.DefaultPriceSecondary); err != nil {
		return domain.ServiceCatalogEntry{}, err
	}
	if entry.PricePerDistanceUnit, err = parseOptionalAmount("pricePerDistanceUnit", d.PricePerDistanceUnit); err != nil {
		return domain.ServiceCatalogEntry{}, err
	}
	if entry.PricePerDistanceUnitSecondary, err = parseOptionalAmount("pricePerDistanceUnitSecondary", d.PricePerDistanceUnitSecondary); err != nil {
		return domain.ServiceCatalogEntry{}, err
	}
	return entry, nil
}

type specialRateDocument struct {
	ServiceTypeID  string    `firestore:"serviceTypeId"`
	PriceBase      string    `firestore:"priceBase"`
	PriceSecondary *string   `firestore:"priceSecondary,omitempty"`
	StartDate      time.Time `firestore:"startDate"`
	EndDate        time.Time `firestore:"endDate"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`

	problems []string
}

func decodeSpecialRateDocument(f *fieldReader) specialRateDocument {
	doc := specialRateDocument{
		ServiceTypeID:  f.str("serviceTypeId"),
		PriceBase:      f.str("priceBase"),
		PriceSecondary: f.optionalStr("priceSecondary"),
		StartDate:      f.date("startDate"),
		EndDate:        f.date("endDate"),
		CreatedAt:      f.date("createdAt"),
		UpdatedAt:      f.date("updatedAt"),
	}
	doc.problems = f.problems
	return doc
}

func newSpecialRateDocument(rate domain.SpecialRate) specialRateDocument {
	return specialRateDocument{
		ServiceTypeID:  rate.ServiceTypeID,
		PriceBase:      rate.PriceBase.String(),
		PriceSecondary: formatOptionalAmount(rate.PriceSecondary),
		StartDate:      rate.StartDate.UTC(),
		EndDate:        rate.EndDate.UTC(),
		CreatedAt:      rate.CreatedAt.UTC(),
		UpdatedAt:      rate.UpdatedAt.UTC(),
	}
}

func (d specialRateDocument) toDomain(customerID, id string) (domain.SpecialRate, error) {
	rate := domain.SpecialRate{
		ID:            id,
		CustomerID:    customerID,
		ServiceTypeID: d.ServiceTypeID,
		StartDate:     d.StartDate,
		EndDate:       d.EndDate,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	var err error
	if rate.PriceBase, err = parseAmount("priceBase", d.PriceBase); err != nil {
		return domain.SpecialRate{}, err
	}
	if rate.PriceSecondary, err = parseOptionalAmount("priceSecondary", d.PriceSecondary); err != nil {
		return domain.SpecialRate{}, err
	}
	return rate, nil
}

type promotionDocument struct {
	Code              string    `firestore:"code"`
	Description       string    `firestore:"description,omitempty"`
	DiscountType      string    `firestore:"discountType"`
	Value             string    `firestore:"value"`
	Currency          string    `firestore:"currency,omitempty"`
	StartDate         time.Time `firestore:"startDate"`
	EndDate           time.Time `firestore:"endDate"`
	IsActive          bool      `firestore:"isActive"`
	Eligibility       string    `firestore:"eligibility"`
	AllowedUserIDs    []string  `firestore:"allowedUserIds,omitempty"`
	ProductScope      string    `firestore:"productScope"`
	AllowedProductIDs []string  `firestore:"allowedProductIds,omitempty"`

	problems []string
}

func decodePromotionDocument(f *fieldReader) promotionDocument {
	doc := promotionDocument{
		Code:              f.str("code"),
		Description:       f.str("description"),
		DiscountType:      f.str("discountType"),
		Value:             f.str("value"),
		Currency:          f.str("currency"),
		StartDate:         f.date("startDate"),
		EndDate:           f.date("endDate"),
		IsActive:          f.boolean("isActive"),
		Eligibility:       f.str("eligibility"),
		AllowedUserIDs:    f.strs("allowedUserIds"),
		ProductScope:      f.str("productScope"),
		AllowedProductIDs: f.strs("allowedProductIds"),
	}
	doc.problems = f.problems
	return doc
}

func (d promotionDocument) toDomain(id string) (domain.Promotion, error) {
	value, err := parseAmount("value", d.Value)
	if err != nil {
		return domain.Promotion{}, err
	}
	currency, ok := domain.ParseCurrencyCode(d.Currency)
	if !ok {
		currency = domain.CurrencyBase
	}
	// Enum values are kept verbatim; unknown ones fail closed in the eligibility filter.
	return domain.Promotion{
		ID:                id,
		Code:              d.Code,
		Description:       d.Description,
		DiscountType:      domain.DiscountType(strings.ToUpper(strings.TrimSpace(d.DiscountType))),
		Value:             value,
		Currency:          currency,
		StartDate:         d.StartDate,
		EndDate:           d.EndDate,
		IsActive:          d.IsActive,
		Eligibility:       domain.Eligibility(strings.ToUpper(strings.TrimSpace(d.Eligibility))),
		AllowedUserIDs:    d.AllowedUserIDs,
		ProductScope:      domain.ProductScope(strings.ToUpper(strings.TrimSpace(d.ProductScope))),
		AllowedProductIDs: d.AllowedProductIDs,
	}, nil
}

type taxRateDocument struct {
	Name        string `firestore:"name"`
	RatePercent string `firestore:"ratePercent"`

	problems []string
}

func decodeTaxRateDocument(f *fieldReader) taxRateDocument {
	doc := taxRateDocument{
		Name:        f.str("name"),
		RatePercent: f.str("ratePercent"),
	}
	doc.problems = f.problems
	return doc
}

func (d taxRateDocument) toDomain(id string) (domain.TaxRate, error) {
	rate, err := parseAmount("ratePercent", d.RatePercent)
	if err != nil {
		return domain.TaxRate{}, err
	}
	return domain.TaxRate{ID: id, Name: d.Name, RatePercent: rate}, nil
}

type customerDocument struct {
	Name         string     `firestore:"name"`
	RegisteredAt *time.Time `firestore:"registeredAt,omitempty"`
}

func decodeCustomerDocument(f *fieldReader) customerDocument {
	return customerDocument{
		Name:         f.str("name"),
		RegisteredAt: f.optionalDate("registeredAt"),
	}
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", field, err)
	}
	return value, nil
}

func parseOptionalAmount(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value, err := parseAmount(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func formatOptionalAmount(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}

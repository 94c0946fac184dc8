package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ds-advance/api/internal/domain"
)

// snapshotFile is the YAML layout of a pricing snapshot fixture. Amounts are decimal strings and
// dates are YYYY-MM-DD in the business location or RFC3339.
type snapshotFile struct {
	Catalog      []catalogEntry    `yaml:"catalog"`
	SpecialRates []specialRateItem `yaml:"special_rates"`
	Promotions   []promotionItem   `yaml:"promotions"`
	TaxRates     []taxRateItem     `yaml:"tax_rates"`
}

type catalogEntry struct {
	ID                            string `yaml:"id"`
	Name                          string `yaml:"name"`
	DefaultPrice                  string `yaml:"default_price"`
	DefaultPriceSecondary         string `yaml:"default_price_secondary"`
	PricePerDistanceUnit          string `yaml:"price_per_distance_unit"`
	PricePerDistanceUnitSecondary string `yaml:"price_per_distance_unit_secondary"`
	TaxRateID                     string `yaml:"tax_rate_id"`
	Active                        *bool  `yaml:"active"`
}

type specialRateItem struct {
	ID             string `yaml:"id"`
	CustomerID     string `yaml:"customer_id"`
	ServiceTypeID  string `yaml:"service_type_id"`
	PriceBase      string `yaml:"price_base"`
	PriceSecondary string `yaml:"price_secondary"`
	StartDate      string `yaml:"start_date"`
	EndDate        string `yaml:"end_date"`
	CreatedAt      string `yaml:"created_at"`
}

type promotionItem struct {
	ID                string   `yaml:"id"`
	Code              string   `yaml:"code"`
	Description       string   `yaml:"description"`
	DiscountType      string   `yaml:"discount_type"`
	Value             string   `yaml:"value"`
	Currency          string   `yaml:"currency"`
	StartDate         string   `yaml:"start_date"`
	EndDate           string   `yaml:"end_date"`
	IsActive          bool     `yaml:"is_active"`
	Eligibility       string   `yaml:"eligibility"`
	AllowedUserIDs    []string `yaml:"allowed_user_ids"`
	ProductScope      string   `yaml:"product_scope"`
	AllowedProductIDs []string `yaml:"allowed_product_ids"`
}

type taxRateItem struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	RatePercent string `yaml:"rate_percent"`
}

type requestFile struct {
	ServiceTypeID        string        `yaml:"service_type_id"`
	CustomerID           string        `yaml:"customer_id"`
	BookingDate          string        `yaml:"booking_date"`
	ItemCount            int           `yaml:"item_count"`
	CurrencyBasis        string        `yaml:"currency_basis"`
	SelectedPromotionID  string        `yaml:"selected_promotion_id"`
	CustomerRegisteredAt string        `yaml:"customer_registered_at"`
	ExchangeRate         string        `yaml:"exchange_rate"`
	Items                []requestItem `yaml:"items"`
	FeeMode              string        `yaml:"fee_mode"`
	Distance             string        `yaml:"distance"`
}

type requestItem struct {
	ID          string `yaml:"id"`
	CODCurrency string `yaml:"cod_currency"`
	CODAmount   string `yaml:"cod_amount"`
	Quantity    int    `yaml:"quantity"`
}

func decodeYAMLFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// fixtureParser accumulates the first conversion error so callers can convert a whole file and check once.
type fixtureParser struct {
	loc *time.Location
	err error
}

func (p *fixtureParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *fixtureParser) amount(field, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail("%s: invalid amount %q", field, raw)
	}
	return value
}

func (p *fixtureParser) optionalAmount(field, raw string) *decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	value := p.amount(field, raw)
	return &value
}

func (p *fixtureParser) date(field, raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, p.loc); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.fail("%s: invalid date %q", field, raw)
	}
	return t
}

func (s snapshotFile) toDomain(loc *time.Location) (domain.PricingSnapshot, error) {
	p := &fixtureParser{loc: loc}
	var snapshot domain.PricingSnapshot
	for _, entry := range s.Catalog {
		active := entry.Active == nil || *entry.Active
		if !active {
			continue
		}
		snapshot.Catalog = append(snapshot.Catalog, domain.ServiceCatalogEntry{
			ID:                            entry.ID,
			Name:                          entry.Name,
			DefaultPrice:                  p.amount("catalog."+entry.ID+".default_price", entry.DefaultPrice),
			DefaultPriceSecondary:         p.optionalAmount("catalog."+entry.ID+".default_price_secondary", entry.DefaultPriceSecondary),
			PricePerDistanceUnit:          p.optionalAmount("catalog."+entry.ID+".price_per_distance_unit", entry.PricePerDistanceUnit),
			PricePerDistanceUnitSecondary: p.optionalAmount("catalog."+entry.ID+".price_per_distance_unit_secondary", entry.PricePerDistanceUnitSecondary),
			TaxRateID:                     entry.TaxRateID,
			Active:                        true,
		})
	}
	for _, rate := range s.SpecialRates {
		snapshot.SpecialRates = append(snapshot.SpecialRates, domain.SpecialRate{
			ID:             rate.ID,
			CustomerID:     rate.CustomerID,
			ServiceTypeID:  rate.ServiceTypeID,
			PriceBase:      p.amount("special_rates."+rate.ID+".price_base", rate.PriceBase),
			PriceSecondary: p.optionalAmount("special_rates."+rate.ID+".price_secondary", rate.PriceSecondary),
			StartDate:      p.date("special_rates."+rate.ID+".start_date", rate.StartDate),
			EndDate:        p.date("special_rates."+rate.ID+".end_date", rate.EndDate),
			CreatedAt:      p.date("special_rates."+rate.ID+".created_at", rate.CreatedAt),
		})
	}
	for _, promo := range s.Promotions {
		currency, _ := domain.ParseCurrencyCode(promo.Currency)
		snapshot.Promotions = append(snapshot.Promotions, domain.Promotion{
			ID:                promo.ID,
			Code:              promo.Code,
			Description:       promo.Description,
			DiscountType:      domain.DiscountType(strings.ToUpper(strings.TrimSpace(promo.DiscountType))),
			Value:             p.amount("promotions."+promo.ID+".value", promo.Value),
			Currency:          currency,
			StartDate:         p.date("promotions."+promo.ID+".start_date", promo.StartDate),
			EndDate:           p.date("promotions."+promo.ID+".end_date", promo.EndDate),
			IsActive:          promo.IsActive,
			Eligibility:       domain.Eligibility(strings.ToUpper(strings.TrimSpace(promo.Eligibility))),
			AllowedUserIDs:    promo.AllowedUserIDs,
			ProductScope:      domain.ProductScope(strings.ToUpper(strings.TrimSpace(promo.ProductScope))),
			AllowedProductIDs: promo.AllowedProductIDs,
		})
	}
	for _, tax := range s.TaxRates {
		snapshot.TaxRates = append(snapshot.TaxRates, domain.TaxRate{
			ID:          tax.ID,
			Name:        tax.Name,
			RatePercent: p.amount("tax_rates."+tax.ID+".rate_percent", tax.RatePercent),
		})
	}
	return snapshot, p.err
}

func (r requestFile) toDomain(loc *time.Location) (domain.PricingRequest, error) {
	p := &fixtureParser{loc: loc}
	req := domain.PricingRequest{
		ServiceTypeID:       r.ServiceTypeID,
		CustomerID:          r.CustomerID,
		BookingDate:         p.date("booking_date", r.BookingDate),
		ItemCount:           r.ItemCount,
		SelectedPromotionID: r.SelectedPromotionID,
		ExchangeRate:        p.amount("exchange_rate", r.ExchangeRate),
		Distance:            p.amount("distance", r.Distance),
	}
	if strings.TrimSpace(r.CurrencyBasis) != "" {
		code, ok := domain.ParseCurrencyCode(r.CurrencyBasis)
		if !ok {
			p.fail("currency_basis: unsupported value %q", r.CurrencyBasis)
		}
		req.CurrencyBasis = code
	}
	if strings.TrimSpace(r.FeeMode) != "" {
		mode, ok := domain.ParseFeeMode(r.FeeMode)
		if !ok {
			p.fail("fee_mode: unsupported value %q", r.FeeMode)
		}
		req.FeeMode = mode
	}
	if registered := p.date("customer_registered_at", r.CustomerRegisteredAt); !registered.IsZero() {
		req.CustomerRegisteredAt = &registered
	}
	for i, item := range r.Items {
		code, _ := domain.ParseCurrencyCode(item.CODCurrency)
		req.Items = append(req.Items, domain.BookingItem{
			ID:          item.ID,
			CODCurrency: code,
			CODAmount:   p.amount(fmt.Sprintf("items[%d].cod_amount", i), item.CODAmount),
			Quantity:    item.Quantity,
		})
	}
	return req, p.err
}

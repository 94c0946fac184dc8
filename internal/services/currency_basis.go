package services

import (
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// ResolveCurrencyBasis decides once per booking which currency the delivery fee is priced in.
// An explicit basis wins, then the first item's declared COD currency, then BASE. The second
// return value reports whether any item declares a currency other than the chosen basis.
func ResolveCurrencyBasis(explicit domain.CurrencyCode, items []domain.BookingItem) (domain.CurrencyCode, bool) {
	basis := domain.CurrencyBase
	switch {
	case explicit.Valid():
		basis = explicit
	case len(items) > 0 && items[0].CODCurrency.Valid():
		basis = items[0].CODCurrency
	}

	mixed := false
	for _, item := range items {
		if item.CODCurrency.Valid() && item.CODCurrency != basis {
			mixed = true
			break
		}
	}
	return basis, mixed
}

// currencyConverter converts amounts between the base and secondary currency using the
// secondary-per-base exchange rate threaded through the request.
type currencyConverter struct {
	rate     decimal.Decimal
	divScale int32
}

func newCurrencyConverter(rate decimal.Decimal, divScale int32) currencyConverter {
	return currencyConverter{rate: rate, divScale: divScale}
}

func (c currencyConverter) convert(amount decimal.Decimal, from, to domain.CurrencyCode) decimal.Decimal {
	if from == to || !from.Valid() || !to.Valid() {
		return amount
	}
	if to == domain.CurrencySecondary {
		return amount.Mul(c.rate)
	}
	if !c.rate.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(c.rate, c.divScale)
}

func (c currencyConverter) toSecondary(amount decimal.Decimal) decimal.Decimal {
	return c.convert(amount, domain.CurrencyBase, domain.CurrencySecondary)
}

func (c currencyConverter) toBase(amount decimal.Decimal) decimal.Decimal {
	return c.convert(amount, domain.CurrencySecondary, domain.CurrencyBase)
}

// catalogUnitPrice resolves the catalog default unit price in the booking currency. Secondary
// prices fall back to the base price converted at the request exchange rate.
func catalogUnitPrice(entry domain.ServiceCatalogEntry, basis domain.CurrencyCode, conv currencyConverter, distance decimal.Decimal) decimal.Decimal {
	price := nonNegative(entry.DefaultPrice)
	perUnit := decimal.Zero
	if entry.PricePerDistanceUnit != nil {
		perUnit = nonNegative(*entry.PricePerDistanceUnit)
	}

	if basis == domain.CurrencySecondary {
		if entry.DefaultPriceSecondary != nil {
			price = nonNegative(*entry.DefaultPriceSecondary)
		} else {
			price = conv.toSecondary(price)
		}
		if entry.PricePerDistanceUnitSecondary != nil {
			perUnit = nonNegative(*entry.PricePerDistanceUnitSecondary)
		} else {
			perUnit = conv.toSecondary(perUnit)
		}
	}

	if distance.IsPositive() && perUnit.IsPositive() {
		price = price.Add(perUnit.Mul(distance))
	}
	return price
}

func nonNegative(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

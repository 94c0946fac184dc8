package services

import (
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountConversion carries what a fixed-amount discount needs to be expressed in the booking
// currency.
type DiscountConversion struct {
	Basis        domain.CurrencyCode
	ExchangeRate decimal.Decimal
	Scale        int32
}

// CalculateDiscount returns the discount a promotion grants on subtotal, never negative and never
// larger than the subtotal.
func CalculateDiscount(subtotal decimal.Decimal, promo *domain.Promotion, conv DiscountConversion) decimal.Decimal {
	discount, _ := calculateDiscount(subtotal, promo, conv)
	return discount
}

// calculateDiscount additionally reports whether the raw promotion value had to be clamped.
func calculateDiscount(subtotal decimal.Decimal, promo *domain.Promotion, conv DiscountConversion) (decimal.Decimal, bool) {
	subtotal = nonNegative(subtotal)
	if promo == nil {
		return decimal.Zero, false
	}

	var raw decimal.Decimal
	switch promo.DiscountType {
	case domain.DiscountFixedAmount:
		raw = promo.Value
		currency := promo.Currency
		if !currency.Valid() {
			currency = domain.CurrencyBase
		}
		if conv.Basis.Valid() && currency != conv.Basis {
			raw = newCurrencyConverter(conv.ExchangeRate, conv.Scale).convert(raw, currency, conv.Basis)
		}
	case domain.DiscountPercentage:
		raw = subtotal.Mul(promo.Value).Div(hundred)
	default:
		return decimal.Zero, false
	}

	if raw.IsNegative() {
		return decimal.Zero, false
	}
	if raw.GreaterThan(subtotal) {
		return subtotal, true
	}
	return raw, false
}

package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// CalculateTax applies the rate percentage to the taxable amount. A missing rate yields zero tax.
func CalculateTax(taxable decimal.Decimal, rate *domain.TaxRate) decimal.Decimal {
	if rate == nil {
		return decimal.Zero
	}
	percent := nonNegative(rate.RatePercent)
	return nonNegative(taxable).Mul(percent).Div(hundred)
}

func findTaxRate(rates []domain.TaxRate, id string) *domain.TaxRate {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	for i := range rates {
		if rates[i].ID == id {
			return &rates[i]
		}
	}
	return nil
}

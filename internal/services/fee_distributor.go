package services

import (
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// FeeSplit is a booking total with its base and secondary currency breakdown.
type FeeSplit struct {
	Total          decimal.Decimal
	TotalBase      decimal.Decimal
	TotalSecondary decimal.Decimal
}

// DistributeFee spreads the booking fee evenly over n parcel rows. Each column is split in units of
// 10^-scale and leftover units go one each to the first rows so the rows sum back to the booking
// totals exactly.
func DistributeFee(split FeeSplit, n int, scale int32) []domain.PerItemFee {
	if n < 1 {
		n = 1
	}
	if scale < 0 {
		scale = 0
	}

	amounts := splitEvenly(split.Total, n, scale)
	bases := splitEvenly(split.TotalBase, n, scale)
	secondaries := splitEvenly(split.TotalSecondary, n, scale)

	fees := make([]domain.PerItemFee, n)
	for i := range fees {
		fees[i] = domain.PerItemFee{
			Amount:          amounts[i],
			BaseAmount:      bases[i],
			SecondaryAmount: secondaries[i],
		}
	}
	return fees
}

// splitEvenly divides amount into n shares of whole 10^-scale units. Units are counted in
// arbitrary precision. Precision finer than the scale stays with the first row.
func splitEvenly(amount decimal.Decimal, n int, scale int32) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	if n == 0 {
		return out
	}
	amount = nonNegative(amount)
	units := amount.Shift(scale).Floor()
	residue := amount.Sub(units.Shift(-scale))

	quotient, remainder := units.QuoRem(decimal.NewFromInt(int64(n)), 0)
	// remainder < n, so it always fits
	extra := remainder.IntPart()
	share := quotient.Shift(-scale)
	unit := decimal.New(1, -scale)
	for i := range out {
		out[i] = share
		if int64(i) < extra {
			out[i] = out[i].Add(unit)
		}
	}
	out[0] = out[0].Add(residue)
	return out
}

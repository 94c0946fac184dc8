package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

func TestDistributeFeeReconciles(t *testing.T) {
	split := FeeSplit{
		Total:          decimal.RequireFromString("10.00"),
		TotalBase:      decimal.RequireFromString("10.00"),
		TotalSecondary: decimal.RequireFromString("41000"),
	}

	for n := 1; n <= 50; n++ {
		fees := DistributeFee(split, n, 6)
		if len(fees) != n {
			t.Fatalf("n=%d: expected %d rows, got %d", n, n, len(fees))
		}
		sumAmount, sumBase, sumSecondary := decimal.Zero, decimal.Zero, decimal.Zero
		for _, fee := range fees {
			sumAmount = sumAmount.Add(fee.Amount)
			sumBase = sumBase.Add(fee.BaseAmount)
			sumSecondary = sumSecondary.Add(fee.SecondaryAmount)
		}
		if !sumAmount.Equal(split.Total) || !sumBase.Equal(split.TotalBase) || !sumSecondary.Equal(split.TotalSecondary) {
			t.Fatalf("n=%d: rows do not reconcile: %s %s %s", n, sumAmount, sumBase, sumSecondary)
		}
	}
}

func TestDistributeFeeSpreadsRemainderFromFirstRow(t *testing.T) {
	fees := DistributeFee(FeeSplit{Total: decimal.RequireFromString("0.05")}, 3, 2)
	want := []string{"0.02", "0.02", "0.01"}
	for i, fee := range fees {
		if !fee.Amount.Equal(decimal.RequireFromString(want[i])) {
			t.Fatalf("row %d: expected %s, got %s", i, want[i], fee.Amount)
		}
	}
}

func TestDistributeFeeKeepsSubScalePrecision(t *testing.T) {
	total := decimal.RequireFromString("1.0000005")
	fees := DistributeFee(FeeSplit{Total: total}, 2, 6)
	if !fees[0].Amount.Add(fees[1].Amount).Equal(total) {
		t.Fatalf("expected rows to sum to %s, got %s + %s", total, fees[0].Amount, fees[1].Amount)
	}
}

func TestDistributeFeeNormalisesCount(t *testing.T) {
	fees := DistributeFee(FeeSplit{Total: decimal.NewFromInt(3)}, 0, 6)
	if len(fees) != 1 || !fees[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected single row carrying the total, got %+v", fees)
	}
}

func TestDistributeFeeLargeTotals(t *testing.T) {
	cases := []struct {
		name  string
		total string
		n     int
		scale int32
		want  []string
	}{
		{name: "secondary fee at max scale", total: "10000000", n: 2, scale: 12, want: []string{"5000000", "5000000"}},
		{name: "huge per item total", total: "20000000000000", n: 3, scale: 6, want: []string{"6666666666666.666667", "6666666666666.666667", "6666666666666.666666"}},
		{name: "beyond int64 units", total: "123456789012345678901", n: 4, scale: 12, want: []string{"30864197253086419725.25", "30864197253086419725.25", "30864197253086419725.25", "30864197253086419725.25"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := decimal.RequireFromString(tc.total)
			fees := DistributeFee(FeeSplit{Total: total}, tc.n, tc.scale)
			sum := decimal.Zero
			for i, fee := range fees {
				if fee.Amount.IsNegative() {
					t.Fatalf("row %d is negative: %s", i, fee.Amount)
				}
				if !fee.Amount.Equal(decimal.RequireFromString(tc.want[i])) {
					t.Fatalf("row %d: expected %s, got %s", i, tc.want[i], fee.Amount)
				}
				sum = sum.Add(fee.Amount)
			}
			if !sum.Equal(total) {
				t.Fatalf("rows sum to %s, expected %s", sum, total)
			}
		})
	}
}

func TestResolveCurrencyBasis(t *testing.T) {
	cases := []struct {
		name      string
		explicit  domain.CurrencyCode
		items     []domain.BookingItem
		wantBasis domain.CurrencyCode
		wantMixed bool
	}{
		{name: "defaults to base", wantBasis: domain.CurrencyBase},
		{name: "explicit wins", explicit: domain.CurrencySecondary, items: []domain.BookingItem{{CODCurrency: domain.CurrencyBase}}, wantBasis: domain.CurrencySecondary, wantMixed: true},
		{name: "first item decides", items: []domain.BookingItem{{CODCurrency: domain.CurrencySecondary}, {CODCurrency: domain.CurrencySecondary}}, wantBasis: domain.CurrencySecondary},
		{name: "mixed items flagged", items: []domain.BookingItem{{CODCurrency: domain.CurrencyBase}, {CODCurrency: domain.CurrencySecondary}}, wantBasis: domain.CurrencyBase, wantMixed: true},
		{name: "unknown tags ignored", explicit: domain.CurrencyCode("KHR"), items: []domain.BookingItem{{CODCurrency: "", CODAmount: decimal.NewFromInt(5000)}}, wantBasis: domain.CurrencyBase},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			basis, mixed := ResolveCurrencyBasis(tc.explicit, tc.items)
			if basis != tc.wantBasis || mixed != tc.wantMixed {
				t.Fatalf("expected (%s,%v), got (%s,%v)", tc.wantBasis, tc.wantMixed, basis, mixed)
			}
		})
	}
}

func TestCalculateDiscountAndTax(t *testing.T) {
	subtotal := decimal.RequireFromString("20")
	pct := &domain.Promotion{DiscountType: domain.DiscountPercentage, Value: decimal.NewFromInt(25)}
	if got := CalculateDiscount(subtotal, pct, DiscountConversion{Basis: domain.CurrencyBase}); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5, got %s", got)
	}
	if got := CalculateDiscount(subtotal, nil, DiscountConversion{}); !got.IsZero() {
		t.Fatalf("expected no discount without promotion, got %s", got)
	}
	fixed := &domain.Promotion{DiscountType: domain.DiscountFixedAmount, Value: decimal.NewFromInt(2), Currency: domain.CurrencyBase}
	conv := DiscountConversion{Basis: domain.CurrencySecondary, ExchangeRate: decimal.NewFromInt(4100), Scale: 6}
	if got := CalculateDiscount(decimal.NewFromInt(20000), fixed, conv); !got.Equal(decimal.NewFromInt(8200)) {
		t.Fatalf("expected converted discount 8200, got %s", got)
	}
	unknown := &domain.Promotion{DiscountType: domain.DiscountType("BOGO"), Value: decimal.NewFromInt(2)}
	if got := CalculateDiscount(subtotal, unknown, DiscountConversion{}); !got.IsZero() {
		t.Fatalf("expected unknown discount type to grant nothing, got %s", got)
	}

	if got := CalculateTax(decimal.NewFromInt(15), &domain.TaxRate{RatePercent: decimal.NewFromInt(10)}); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected tax 1.5, got %s", got)
	}
	if got := CalculateTax(decimal.NewFromInt(15), nil); !got.IsZero() {
		t.Fatalf("expected zero tax without rate, got %s", got)
	}
	if got := CalculateTax(decimal.NewFromInt(15), &domain.TaxRate{RatePercent: decimal.NewFromInt(-10)}); !got.IsZero() {
		t.Fatalf("expected negative rate clamped, got %s", got)
	}
}

package services

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
)

// SpecialRateQuery identifies the booking a negotiated rate is looked up for.
type SpecialRateQuery struct {
	CustomerID    string
	ServiceTypeID string
	BookingDate   time.Time
	Basis         domain.CurrencyCode
	ExchangeRate  decimal.Decimal
	Location      *time.Location
}

// SpecialRateResolution is the outcome of a special rate lookup.
type SpecialRateResolution struct {
	Price       decimal.Decimal
	Used        bool
	RateID      string
	Overlapping bool
}

// ResolveSpecialRate returns the customer's negotiated price active on the booking date, priced
// in the requested basis. When several windows match, the one starting latest wins, then the most
// recently created, then the lowest id.
func ResolveSpecialRate(q SpecialRateQuery, rates []domain.SpecialRate) SpecialRateResolution {
	customerID := strings.TrimSpace(q.CustomerID)
	serviceID := strings.TrimSpace(q.ServiceTypeID)
	if customerID == "" || serviceID == "" {
		return SpecialRateResolution{}
	}
	booking, ok := calendarDateOf(q.BookingDate, q.Location)
	if !ok {
		return SpecialRateResolution{}
	}

	matches := make([]domain.SpecialRate, 0, 1)
	for _, rate := range rates {
		if strings.TrimSpace(rate.CustomerID) != customerID || strings.TrimSpace(rate.ServiceTypeID) != serviceID {
			continue
		}
		if !dateWithin(booking, rate.StartDate, rate.EndDate, q.Location) {
			continue
		}
		matches = append(matches, rate)
	}
	if len(matches) == 0 {
		return SpecialRateResolution{}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return specialRatePrecedes(matches[i], matches[j])
	})
	selected := matches[0]

	price := nonNegative(selected.PriceBase)
	if q.Basis == domain.CurrencySecondary {
		if selected.PriceSecondary != nil {
			price = nonNegative(*selected.PriceSecondary)
		} else {
			price = price.Mul(q.ExchangeRate)
		}
	}

	return SpecialRateResolution{
		Price:       price,
		Used:        true,
		RateID:      selected.ID,
		Overlapping: len(matches) > 1,
	}
}

func specialRatePrecedes(a, b domain.SpecialRate) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// calendarDate is a date without time of day, encoded as yyyymmdd so it orders naturally.
type calendarDate int

func calendarDateOf(t time.Time, loc *time.Location) (calendarDate, bool) {
	if t.IsZero() {
		return 0, false
	}
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return calendarDate(y*10000 + int(m)*100 + d), true
}

// dateWithin reports whether date lies in the inclusive [start, end] calendar window. Missing or
// inverted windows are never active.
func dateWithin(date calendarDate, start, end time.Time, loc *time.Location) bool {
	from, ok := calendarDateOf(start, loc)
	if !ok {
		return false
	}
	to, ok := calendarDateOf(end, loc)
	if !ok {
		return false
	}
	if from > to {
		return false
	}
	return from <= date && date <= to
}

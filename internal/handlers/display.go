package handlers

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ds-advance/api/internal/domain"
)

// amountFormatter renders amounts in the currencies the two pricing sides map to.
type amountFormatter struct {
	tag       language.Tag
	base      currency.Unit
	secondary currency.Unit
}

func newAmountFormatter(locale, baseISO, secondaryISO string) amountFormatter {
	f := amountFormatter{
		tag:       language.English,
		base:      currency.USD,
		secondary: currency.MustParseISO("KHR"),
	}
	if tag, err := language.Parse(strings.TrimSpace(locale)); err == nil {
		f.tag = tag
	}
	if unit, err := currency.ParseISO(strings.TrimSpace(baseISO)); err == nil {
		f.base = unit
	}
	if unit, err := currency.ParseISO(strings.TrimSpace(secondaryISO)); err == nil {
		f.secondary = unit
	}
	return f
}

// withLocale returns a copy using the first parseable tag of an Accept-Language header.
func (f amountFormatter) withLocale(acceptLanguage string) amountFormatter {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return f
	}
	f.tag = tags[0]
	return f
}

func (f amountFormatter) unit(code domain.CurrencyCode) currency.Unit {
	if code == domain.CurrencySecondary {
		return f.secondary
	}
	return f.base
}

// format renders amount with the currency symbol and the unit's standard precision.
func (f amountFormatter) format(amount decimal.Decimal, code domain.CurrencyCode) string {
	unit := f.unit(code)
	scale, _ := currency.Standard.Rounding(unit)
	rounded := amount.Round(int32(scale))
	printer := message.NewPrinter(f.tag)
	return printer.Sprint(currency.Symbol(unit.Amount(rounded.InexactFloat64())))
}

// isoCode is the ISO 4217 code of the currency side.
func (f amountFormatter) isoCode(code domain.CurrencyCode) string {
	return f.unit(code).String()
}

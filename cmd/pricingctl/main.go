// Command pricingctl prices a booking against a YAML snapshot and checks snapshots for
// conflicting special rates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/platform/observability"
	"github.com/ds-advance/api/internal/services"
)

const defaultTimezone = "Asia/Phnom_Penh"

const usage = `usage: pricingctl <command> [flags]

commands:
  quote     -snapshot FILE -request FILE   price a booking and print the result as JSON
  validate  -snapshot FILE                 report invalid or overlapping special rates
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "quote":
		return runQuote(ctx, args[1:], stdout, stderr)
	case "validate":
		return runValidate(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
}

type commonFlags struct {
	snapshot string
	timezone string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.snapshot, "snapshot", "", "path to the snapshot YAML")
	fs.StringVar(&c.timezone, "tz", defaultTimezone, "business timezone for calendar dates")
}

func (c *commonFlags) location() (*time.Location, error) {
	return time.LoadLocation(c.timezone)
}

func loadSnapshot(path string, loc *time.Location) (domain.PricingSnapshot, error) {
	var file snapshotFile
	if err := decodeYAMLFile(path, &file); err != nil {
		return domain.PricingSnapshot{}, err
	}
	return file.toDomain(loc)
}

func runQuote(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	requestPath := fs.String("request", "", "path to the request YAML")
	exchangeRate := fs.String("exchange-rate", "4100", "fallback exchange rate")
	feeMode := fs.String("fee-mode", string(domain.FeeModeSingle), "default fee mode (single|per_item)")
	verbose := fs.Bool("v", false, "log pricing events to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.snapshot == "" || *requestPath == "" {
		fmt.Fprintln(stderr, "quote: -snapshot and -request are required")
		return 2
	}
	loc, err := common.location()
	if err != nil {
		fmt.Fprintf(stderr, "quote: %v\n", err)
		return 2
	}
	rate, err := decimal.NewFromString(*exchangeRate)
	if err != nil {
		fmt.Fprintf(stderr, "quote: invalid -exchange-rate %q\n", *exchangeRate)
		return 2
	}
	mode, ok := domain.ParseFeeMode(*feeMode)
	if !ok {
		fmt.Fprintf(stderr, "quote: invalid -fee-mode %q\n", *feeMode)
		return 2
	}

	snapshot, err := loadSnapshot(common.snapshot, loc)
	if err != nil {
		fmt.Fprintf(stderr, "quote: load snapshot: %v\n", err)
		return 1
	}
	var reqFile requestFile
	if err := decodeYAMLFile(*requestPath, &reqFile); err != nil {
		fmt.Fprintf(stderr, "quote: load request: %v\n", err)
		return 1
	}
	req, err := reqFile.toDomain(loc)
	if err != nil {
		fmt.Fprintf(stderr, "quote: %v\n", err)
		return 1
	}

	logger := zap.NewNop()
	if *verbose {
		logger = newStderrLogger(stderr)
	}
	defer func() { _ = logger.Sync() }()

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Location:            loc,
		DefaultExchangeRate: rate,
		DefaultFeeMode:      mode,
		Logger:              observability.EventLogger(logger.Named("pricing"), "pricing engine"),
	})
	if err != nil {
		fmt.Fprintf(stderr, "quote: %v\n", err)
		return 2
	}

	result := engine.ComputePricing(ctx, req, snapshot)
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(newQuoteOutput(result)); err != nil {
		fmt.Fprintf(stderr, "quote: %v\n", err)
		return 1
	}
	return 0
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.snapshot == "" {
		fmt.Fprintln(stderr, "validate: -snapshot is required")
		return 2
	}
	loc, err := common.location()
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 2
	}
	snapshot, err := loadSnapshot(common.snapshot, loc)
	if err != nil {
		fmt.Fprintf(stderr, "validate: load snapshot: %v\n", err)
		return 1
	}

	problems := specialRateProblems(snapshot.SpecialRates, loc)
	for _, problem := range problems {
		fmt.Fprintln(stdout, problem)
	}
	if len(problems) > 0 {
		return 1
	}
	fmt.Fprintf(stdout, "ok: %d special rates\n", len(snapshot.SpecialRates))
	return 0
}

// specialRateProblems reports each invalid rate and each overlapping pair once.
func specialRateProblems(rates []domain.SpecialRate, loc *time.Location) []string {
	byCustomer := make(map[string][]domain.SpecialRate)
	var problems []string
	for _, rate := range rates {
		if err := services.ValidateSpecialRate(rate, loc); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", rate.ID, err))
			continue
		}
		if err := services.ValidateNoOverlap(rate, byCustomer[rate.CustomerID], loc); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", rate.ID, err))
		}
		byCustomer[rate.CustomerID] = append(byCustomer[rate.CustomerID], rate)
	}
	sort.Strings(problems)
	return problems
}

func newStderrLogger(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zap.DebugLevel,
	)
	return zap.New(core)
}

type quoteOutput struct {
	Currency           string          `json:"currency"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalBase          decimal.Decimal `json:"total_base"`
	TotalSecondary     decimal.Decimal `json:"total_secondary"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	UsedSpecialRate    bool            `json:"used_special_rate"`
	SpecialRateID      string          `json:"special_rate_id,omitempty"`
	AppliedPromotionID string          `json:"applied_promotion_id,omitempty"`
	PromotionCleared   bool            `json:"promotion_cleared,omitempty"`
	DiscountClamped    bool            `json:"discount_clamped,omitempty"`
	TaxRateID          string          `json:"tax_rate_id,omitempty"`
	PerItemFees        []perItemOutput `json:"per_item_fees"`
	Warnings           []string        `json:"warnings,omitempty"`
}

type perItemOutput struct {
	Amount          decimal.Decimal `json:"amount"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	SecondaryAmount decimal.Decimal `json:"secondary_amount"`
}

func newQuoteOutput(result domain.PricingResult) quoteOutput {
	out := quoteOutput{
		Currency:           string(result.Currency),
		Subtotal:           result.Subtotal,
		Discount:           result.Discount,
		Tax:                result.Tax,
		Total:              result.Total,
		UnitPrice:          result.UnitPrice,
		TotalBase:          result.TotalBase,
		TotalSecondary:     result.TotalSecondary,
		ExchangeRate:       result.ExchangeRate,
		UsedSpecialRate:    result.UsedSpecialRate,
		SpecialRateID:      result.SpecialRateID,
		AppliedPromotionID: result.AppliedPromotionID,
		PromotionCleared:   result.PromotionCleared,
		DiscountClamped:    result.DiscountClamped,
		TaxRateID:          result.TaxRateID,
		PerItemFees:        make([]perItemOutput, 0, len(result.PerItemFees)),
		Warnings:           result.Warnings,
	}
	for _, fee := range result.PerItemFees {
		out.PerItemFees = append(out.PerItemFees, perItemOutput(fee))
	}
	return out
}

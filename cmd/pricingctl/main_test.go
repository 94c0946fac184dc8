package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQuote(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"quote",
		"-snapshot", filepath.Join("testdata", "snapshot.yaml"),
		"-request", filepath.Join("testdata", "request.yaml"),
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var out struct {
		Currency           string          `json:"currency"`
		Subtotal           decimal.Decimal `json:"subtotal"`
		Discount           decimal.Decimal `json:"discount"`
		Tax                decimal.Decimal `json:"tax"`
		Total              decimal.Decimal `json:"total"`
		TotalSecondary     decimal.Decimal `json:"total_secondary"`
		UsedSpecialRate    bool            `json:"used_special_rate"`
		SpecialRateID      string          `json:"special_rate_id"`
		AppliedPromotionID string          `json:"applied_promotion_id"`
		PerItemFees        []perItemOutput `json:"per_item_fees"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))

	assert.Equal(t, "BASE", out.Currency)
	assert.True(t, out.UsedSpecialRate)
	assert.Equal(t, "rate-1", out.SpecialRateID)
	assert.Equal(t, "promo-1", out.AppliedPromotionID)
	assert.True(t, out.Subtotal.Equal(decimal.RequireFromString("4.00")), out.Subtotal.String())
	assert.True(t, out.Discount.Equal(decimal.RequireFromString("1.00")), out.Discount.String())
	assert.True(t, out.Tax.Equal(decimal.RequireFromString("0.30")), out.Tax.String())
	assert.True(t, out.Total.Equal(decimal.RequireFromString("3.30")), out.Total.String())
	assert.True(t, out.TotalSecondary.Equal(decimal.RequireFromString("13200")), out.TotalSecondary.String())
	require.Len(t, out.PerItemFees, 2)
	sum := out.PerItemFees[0].Amount.Add(out.PerItemFees[1].Amount)
	assert.True(t, sum.Equal(out.Total), sum.String())
}

func TestRunQuoteRequiresFiles(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"quote", "-snapshot", filepath.Join("testdata", "snapshot.yaml")}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "-request")
}

func TestRunQuoteRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	request := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(request, []byte("service_type_id: svc-express\nsurprise: true\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"quote",
		"-snapshot", filepath.Join("testdata", "snapshot.yaml"),
		"-request", request,
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "surprise")
}

func TestRunQuoteRejectsBadAmounts(t *testing.T) {
	dir := t.TempDir()
	request := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(request, []byte("service_type_id: svc-express\nexchange_rate: lots\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"quote",
		"-snapshot", filepath.Join("testdata", "snapshot.yaml"),
		"-request", request,
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "exchange_rate")
}

func TestRunValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"validate", "-snapshot", filepath.Join("testdata", "snapshot.yaml")}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "ok: 1 special rates\n", stdout.String())
}

func TestRunValidateReportsProblems(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"validate", "-snapshot", filepath.Join("testdata", "overlapping.yaml")}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2, stdout.String())
	assert.True(t, strings.HasPrefix(lines[0], "rate-2:"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "rate-4:"), lines[1])
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
}

func TestSnapshotToDomainSkipsInactiveServices(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Phnom_Penh")
	require.NoError(t, err)

	var file snapshotFile
	require.NoError(t, decodeYAMLFile(filepath.Join("testdata", "snapshot.yaml"), &file))
	snapshot, err := file.toDomain(loc)
	require.NoError(t, err)

	require.Len(t, snapshot.Catalog, 1)
	assert.Equal(t, "svc-express", snapshot.Catalog[0].ID)
	require.NotNil(t, snapshot.Catalog[0].DefaultPriceSecondary)
	assert.Equal(t, "20000", snapshot.Catalog[0].DefaultPriceSecondary.String())
	require.Len(t, snapshot.SpecialRates, 1)
	assert.Equal(t, loc, snapshot.SpecialRates[0].StartDate.Location())
	require.Len(t, snapshot.Promotions, 1)
	assert.EqualValues(t, "FIXED_AMOUNT", snapshot.Promotions[0].DiscountType)
}

func TestDefaultTimezoneResolvesWithoutSystemZoneinfo(t *testing.T) {
	// An empty ZONEINFO must not break the default zone.
	t.Setenv("ZONEINFO", t.TempDir())
	loc, err := time.LoadLocation(defaultTimezone)
	require.NoError(t, err)
	assert.Equal(t, defaultTimezone, loc.String())
}

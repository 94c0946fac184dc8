//go:build integration

package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
	pconfig "github.com/ds-advance/api/internal/platform/config"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/repositories"
)

var errOverlap = errors.New("overlap")

func TestSpecialRateRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "pricing-test", EmulatorHost: host})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewSpecialRateRepository(provider)
	if err != nil {
		t.Fatalf("new special rate repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	customerID := "cust-" + time.Now().Format("150405.000000")
	rate := domain.SpecialRate{
		ID:            "rate-1",
		CustomerID:    customerID,
		ServiceTypeID: "svc-express",
		PriceBase:     decimal.RequireFromString("4.00"),
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if _, err := repo.Insert(ctx, rate, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := rate
	second.ID = "rate-2"
	_, err = repo.Insert(ctx, second, func(existing []domain.SpecialRate) error {
		if len(existing) != 1 {
			t.Fatalf("expected guard to see 1 rate, got %d", len(existing))
		}
		return errOverlap
	})
	if !repositories.IsConflict(err) || !errors.Is(err, errOverlap) {
		t.Fatalf("expected conflict wrapping guard error, got %v", err)
	}

	rates, err := repo.ListByCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rates) != 1 || !rates[0].PriceBase.Equal(rate.PriceBase) {
		t.Fatalf("unexpected rates %+v", rates)
	}

	if err := repo.Delete(ctx, customerID, "rate-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, customerID, "rate-1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

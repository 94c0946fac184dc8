package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/repositories"
)

type stubCatalog struct {
	entries []domain.ServiceCatalogEntry
	calls   int
}

func (s *stubCatalog) ListServices(context.Context) ([]domain.ServiceCatalogEntry, error) {
	s.calls++
	return s.entries, nil
}

func (s *stubCatalog) FindService(context.Context, string) (domain.ServiceCatalogEntry, error) {
	return s.entries[0], nil
}

type stubSpecialRates struct {
	rates     []domain.SpecialRate
	insertErr error
}

func (s *stubSpecialRates) ListByCustomer(context.Context, string) ([]domain.SpecialRate, error) {
	return s.rates, nil
}

func (s *stubSpecialRates) Insert(_ context.Context, rate domain.SpecialRate, _ repositories.SpecialRateGuard) (domain.SpecialRate, error) {
	if s.insertErr != nil {
		return domain.SpecialRate{}, s.insertErr
	}
	return rate, nil
}

func (s *stubSpecialRates) Delete(context.Context, string, string) error { return nil }

type stubPromotions struct{}

func (stubPromotions) ListActive(context.Context) ([]domain.Promotion, error) { return nil, nil }

func (stubPromotions) FindByID(context.Context, string) (domain.Promotion, error) {
	return domain.Promotion{}, nil
}

type stubTaxRates struct{}

func (stubTaxRates) ListTaxRates(context.Context) ([]domain.TaxRate, error) {
	return []domain.TaxRate{{ID: "vat", RatePercent: decimal.NewFromInt(10)}}, nil
}

type logRecorder struct {
	events []string
}

func (l *logRecorder) log(_ context.Context, event string, _ map[string]any) {
	l.events = append(l.events, event)
}

func newTestCache(t *testing.T, catalog *stubCatalog, rates *stubSpecialRates) (*SnapshotCache, redismock.ClientMock, *logRecorder) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	logs := &logRecorder{}
	cache, err := NewSnapshotCache(SnapshotCacheDeps{
		Client: db,
		Sources: Sources{
			Catalog:      catalog,
			SpecialRates: rates,
			Promotions:   stubPromotions{},
			TaxRates:     stubTaxRates{},
		},
		TTL:    30 * time.Second,
		Logger: logs.log,
	})
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	return cache, mock, logs
}

func TestSnapshotCacheReadThroughThenHit(t *testing.T) {
	catalog := &stubCatalog{entries: []domain.ServiceCatalogEntry{{ID: "svc-express", DefaultPrice: decimal.RequireFromString("5.00"), Active: true}}}
	cache, mock, _ := newTestCache(t, catalog, &stubSpecialRates{})
	ctx := context.Background()
	key := "pricing:snapshot:catalog"

	payload, err := json.Marshal(catalog.entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, payload, 30*time.Second).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(payload))

	first, err := cache.ListServices(ctx)
	if err != nil {
		t.Fatalf("ListServices miss: %v", err)
	}
	second, err := cache.ListServices(ctx)
	if err != nil {
		t.Fatalf("ListServices hit: %v", err)
	}

	if catalog.calls != 1 {
		t.Fatalf("expected one source read, got %d", catalog.calls)
	}
	if len(first) != 1 || len(second) != 1 || !second[0].DefaultPrice.Equal(first[0].DefaultPrice) {
		t.Fatalf("cached entries differ: %+v vs %+v", first, second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}
}

func TestSnapshotCacheFallsThroughOnRedisFailure(t *testing.T) {
	cache, mock, logs := newTestCache(t, &stubCatalog{}, &stubSpecialRates{})
	ctx := context.Background()
	key := "pricing:snapshot:tax_rates"

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	payload, _ := json.Marshal([]domain.TaxRate{{ID: "vat", RatePercent: decimal.NewFromInt(10)}})
	mock.ExpectSet(key, payload, 30*time.Second).SetErr(errors.New("connection refused"))

	rates, err := cache.ListTaxRates(ctx)
	if err != nil {
		t.Fatalf("ListTaxRates must not surface cache errors: %v", err)
	}
	if len(rates) != 1 || rates[0].ID != "vat" {
		t.Fatalf("unexpected rates %+v", rates)
	}
	if len(logs.events) != 2 || logs.events[0] != "snapshot_cache_read_failed" || logs.events[1] != "snapshot_cache_write_failed" {
		t.Fatalf("unexpected log events %v", logs.events)
	}
}

func TestSnapshotCacheInsertInvalidatesCustomerKey(t *testing.T) {
	cache, mock, _ := newTestCache(t, &stubCatalog{}, &stubSpecialRates{})
	ctx := context.Background()

	mock.ExpectDel("pricing:snapshot:special_rates:cust-1").SetVal(1)

	if _, err := cache.Insert(ctx, domain.SpecialRate{ID: "rate-1", CustomerID: "cust-1"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}
}

func TestSnapshotCacheFailedInsertKeepsCache(t *testing.T) {
	boom := errors.New("conflict")
	cache, mock, _ := newTestCache(t, &stubCatalog{}, &stubSpecialRates{insertErr: boom})

	if _, err := cache.Insert(context.Background(), domain.SpecialRate{CustomerID: "cust-1"}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no redis calls expected: %v", err)
	}
}

func TestSnapshotCacheInvalidateKinds(t *testing.T) {
	cache, mock, _ := newTestCache(t, &stubCatalog{}, &stubSpecialRates{})
	mock.ExpectDel("pricing:snapshot:catalog", "pricing:snapshot:promotions").SetVal(2)

	cache.Invalidate(context.Background(), KindCatalog, KindPromotions)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key(KindSpecialRates, " cust-9 "); got != "pricing:snapshot:special_rates:cust-9" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key(KindCatalog, ""); got != "pricing:snapshot:catalog" {
		t.Fatalf("unexpected key %q", got)
	}
}

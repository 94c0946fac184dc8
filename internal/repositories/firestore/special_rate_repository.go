package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/ds-advance/api/internal/domain"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/repositories"
)

const (
	customersCollection    = "customers"
	specialRatesCollection = "specialRates"

	specialRateTxAttempts = 3
	specialRateTxTimeout  = 10 * time.Second
)

// SpecialRateRepository stores negotiated rates at customers/{customerId}/specialRates.
type SpecialRateRepository struct {
	provider *pfirestore.Provider
	rates    *pfirestore.Collection[specialRateDocument]
	now      func() time.Time
	opts     repoOptions
}

var _ repositories.SpecialRateRepository = (*SpecialRateRepository)(nil)

// NewSpecialRateRepository constructs a Firestore-backed special rate repository.
func NewSpecialRateRepository(provider *pfirestore.Provider, opts ...Option) (*SpecialRateRepository, error) {
	if provider == nil {
		return nil, errors.New("special rate repository requires firestore provider")
	}
	return &SpecialRateRepository{
		provider: provider,
		rates:    pfirestore.NewSubCollection(provider, customersCollection, specialRatesCollection, mapDecoder(decodeSpecialRateDocument)),
		now:      time.Now,
		opts:     newRepoOptions(opts),
	}, nil
}

// ListByCustomer returns every rate stored for the customer, newest window first.
func (r *SpecialRateRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.SpecialRate, error) {
	customerID = strings.TrimSpace(customerID)
	docs, err := r.rates.Query(ctx, customerID, func(q firestore.Query) firestore.Query {
		return q.OrderBy("startDate", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return r.decodeSpecialRates(ctx, customerID, docs), nil
}

// Insert creates the rate inside a transaction. guard sees the rates already stored for the
// customer; a guard error aborts the write and is returned as a conflict.
func (r *SpecialRateRepository) Insert(ctx context.Context, rate domain.SpecialRate, guard repositories.SpecialRateGuard) (domain.SpecialRate, error) {
	customerID := strings.TrimSpace(rate.CustomerID)
	ref, err := r.rates.Ref(ctx, customerID, strings.TrimSpace(rate.ID))
	if err != nil {
		return domain.SpecialRate{}, err
	}

	now := r.now().UTC()
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = now
	}
	rate.UpdatedAt = now
	rate.CustomerID = customerID

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := r.rates.QueryTx(ctx, tx, customerID, func(q firestore.Query) firestore.Query {
			return q.Where("serviceTypeId", "==", rate.ServiceTypeID)
		})
		if err != nil {
			return err
		}
		if guard != nil {
			existing := r.decodeSpecialRates(ctx, customerID, docs)
			if err := guard(existing); err != nil {
				return pfirestore.ConflictError("special_rates.insert", err)
			}
		}
		return tx.Create(ref, newSpecialRateDocument(rate))
	}, pfirestore.WithTxAttempts(specialRateTxAttempts), pfirestore.WithTxTimeout(specialRateTxTimeout))
	if err != nil {
		return domain.SpecialRate{}, pfirestore.WrapError("special_rates.insert", err)
	}
	return rate, nil
}

// Delete removes a rate; deleting a missing rate reports not found.
func (r *SpecialRateRepository) Delete(ctx context.Context, customerID string, rateID string) error {
	return r.rates.Delete(ctx, strings.TrimSpace(customerID), strings.TrimSpace(rateID))
}

// decodeSpecialRates leaves out rates whose prices cannot be read. Unreadable dates decode as zero
// and the rate is never active.
func (r *SpecialRateRepository) decodeSpecialRates(ctx context.Context, customerID string, docs []pfirestore.Document[specialRateDocument]) []domain.SpecialRate {
	rates := make([]domain.SpecialRate, 0, len(docs))
	for _, doc := range docs {
		r.opts.documentNormalised(ctx, specialRatesCollection, doc.ID, doc.Data.problems)
		rate, err := doc.Data.toDomain(customerID, doc.ID)
		if err != nil {
			r.opts.documentSkipped(ctx, specialRatesCollection, doc.ID, err)
			continue
		}
		rates = append(rates, rate)
	}
	return rates
}

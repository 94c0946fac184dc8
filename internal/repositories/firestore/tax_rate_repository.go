package firestore

import (
	"context"
	"errors"

	"github.com/ds-advance/api/internal/domain"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/repositories"
)

const taxRatesCollection = "taxRates"

// TaxRateRepository reads tax rates from Firestore.
type TaxRateRepository struct {
	taxRates *pfirestore.Collection[taxRateDocument]
	opts     repoOptions
}

var _ repositories.TaxRateRepository = (*TaxRateRepository)(nil)

func NewTaxRateRepository(provider *pfirestore.Provider, opts ...Option) (*TaxRateRepository, error) {
	if provider == nil {
		return nil, errors.New("tax rate repository requires firestore provider")
	}
	return &TaxRateRepository{
		taxRates: pfirestore.NewCollection(provider, taxRatesCollection, mapDecoder(decodeTaxRateDocument)),
		opts:     newRepoOptions(opts),
	}, nil
}

func (r *TaxRateRepository) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	docs, err := r.taxRates.Query(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	rates := make([]domain.TaxRate, 0, len(docs))
	for _, doc := range docs {
		r.opts.documentNormalised(ctx, taxRatesCollection, doc.ID, doc.Data.problems)
		rate, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			r.opts.documentSkipped(ctx, taxRatesCollection, doc.ID, err)
			continue
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

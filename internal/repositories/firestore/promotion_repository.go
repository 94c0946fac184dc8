package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/ds-advance/api/internal/domain"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/repositories"
)

const promotionsCollection = "promotions"

// PromotionRepository reads promotions from Firestore.
type PromotionRepository struct {
	promotions *pfirestore.Collection[promotionDocument]
	opts       repoOptions
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider, opts ...Option) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		promotions: pfirestore.NewCollection(provider, promotionsCollection, mapDecoder(decodePromotionDocument)),
		opts:       newRepoOptions(opts),
	}, nil
}

// ListActive returns active promotions ordered by start date so callers see a stable order.
func (r *PromotionRepository) ListActive(ctx context.Context) ([]domain.Promotion, error) {
	docs, err := r.promotions.Query(ctx, "", func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).OrderBy("startDate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	promotions := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		r.opts.documentNormalised(ctx, promotionsCollection, doc.ID, doc.Data.problems)
		promo, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			r.opts.documentSkipped(ctx, promotionsCollection, doc.ID, err)
			continue
		}
		promotions = append(promotions, promo)
	}
	return promotions, nil
}

// FindByID loads a promotion regardless of its active flag.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return domain.Promotion{}, pfirestore.NotFoundError("promotions.get", errors.New("promotion id is required"))
	}
	doc, err := r.promotions.Get(ctx, "", promotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	promo, err := doc.Data.toDomain(doc.ID)
	if err != nil {
		return domain.Promotion{}, pfirestore.NotFoundError("promotions.get", fmt.Errorf("promotion %s: %w", doc.ID, err))
	}
	return promo, nil
}

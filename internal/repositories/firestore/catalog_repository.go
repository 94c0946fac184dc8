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

const servicesCollection = "services"

// ServiceCatalogRepository reads the parcel service catalog from Firestore.
type ServiceCatalogRepository struct {
	services *pfirestore.Collection[serviceDocument]
	opts     repoOptions
}

var _ repositories.ServiceCatalogRepository = (*ServiceCatalogRepository)(nil)

// NewServiceCatalogRepository constructs a Firestore-backed catalog repository.
func NewServiceCatalogRepository(provider *pfirestore.Provider, opts ...Option) (*ServiceCatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("service catalog repository requires firestore provider")
	}
	return &ServiceCatalogRepository{
		services: pfirestore.NewCollection(provider, servicesCollection, mapDecoder(decodeServiceDocument)),
		opts:     newRepoOptions(opts),
	}, nil
}

// ListServices returns the active services ordered by document ID. Services whose prices cannot be
// read are left out.
func (r *ServiceCatalogRepository) ListServices(ctx context.Context) ([]domain.ServiceCatalogEntry, error) {
	docs, err := r.services.Query(ctx, "", func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.ServiceCatalogEntry, 0, len(docs))
	for _, doc := range docs {
		r.opts.documentNormalised(ctx, servicesCollection, doc.ID, doc.Data.problems)
		entry, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			r.opts.documentSkipped(ctx, servicesCollection, doc.ID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FindService loads a single service regardless of its active flag.
func (r *ServiceCatalogRepository) FindService(ctx context.Context, serviceID string) (domain.ServiceCatalogEntry, error) {
	doc, err := r.services.Get(ctx, "", strings.TrimSpace(serviceID))
	if err != nil {
		return domain.ServiceCatalogEntry{}, err
	}
	entry, err := doc.Data.toDomain(doc.ID)
	if err != nil {
		return domain.ServiceCatalogEntry{}, pfirestore.NotFoundError("services.get", fmt.Errorf("service %s: %w", doc.ID, err))
	}
	return entry, nil
}

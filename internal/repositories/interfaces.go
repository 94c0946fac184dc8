package repositories

import (
	"context"
	"errors"

	"github.com/ds-advance/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ServiceCatalogRepository reads the parcel service catalog.
type ServiceCatalogRepository interface {
	// ListServices returns active services only.
	ListServices(ctx context.Context) ([]domain.ServiceCatalogEntry, error)
	FindService(ctx context.Context, serviceID string) (domain.ServiceCatalogEntry, error)
}

// SpecialRateGuard inspects the customer's stored rates inside the insert transaction and rejects
// the write by returning an error.
type SpecialRateGuard func(existing []domain.SpecialRate) error

// SpecialRateRepository persists negotiated rates under their customer.
type SpecialRateRepository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]domain.SpecialRate, error)
	Insert(ctx context.Context, rate domain.SpecialRate, guard SpecialRateGuard) (domain.SpecialRate, error)
	Delete(ctx context.Context, customerID string, rateID string) error
}

// PromotionRepository reads promotion definitions.
type PromotionRepository interface {
	// ListActive returns promotions flagged active; date windows are evaluated by the caller.
	ListActive(ctx context.Context) ([]domain.Promotion, error)
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
}

// TaxRateRepository reads configured tax rates.
type TaxRateRepository interface {
	ListTaxRates(ctx context.Context) ([]domain.TaxRate, error)
}

// CustomerRepository reads the customer attributes pricing depends on.
type CustomerRepository interface {
	FindCustomer(ctx context.Context, customerID string) (domain.Customer, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err is a repository not-found error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a repository conflict error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a transient repository outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

package firestore

import (
	"context"
	"errors"
	"strings"

	"github.com/ds-advance/api/internal/domain"
	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
	"github.com/ds-advance/api/internal/repositories"
)

// CustomerRepository reads customer registration data from Firestore.
type CustomerRepository struct {
	customers *pfirestore.Collection[customerDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewCollection(provider, customersCollection, mapDecoder(decodeCustomerDocument)),
	}, nil
}

func (r *CustomerRepository) FindCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, pfirestore.NotFoundError("customers.get", errors.New("customer id is required"))
	}
	doc, err := r.customers.Get(ctx, "", customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	customer := domain.Customer{ID: doc.ID, Name: doc.Data.Name}
	if doc.Data.RegisteredAt != nil {
		registered := doc.Data.RegisteredAt.UTC()
		customer.RegisteredAt = &registered
	}
	return customer, nil
}

package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/orderdeck/api/internal/platform/firestore"
	"github.com/orderdeck/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository set behind the
// repositories.Registry contract. RunInTx opens a Firestore transaction and
// threads it through the context so nested repository calls join it.
type Registry struct {
	provider *pfirestore.Provider

	orders    *OrderRepository
	coupons   *CouponRepository
	counters  *CounterRepository
	customers *CustomerRepository
	catalog   *CatalogRepository
	stores    *StoreRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithHealthRepository overrides the default firestore-only dependency probe,
// typically to add pubsub, storage, and secret manager checks wired in DI.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		if health != nil {
			r.health = health
		}
	}
}

// NewRegistry wires the full Firestore repository set on a shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: order repository: %w", err)
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: coupon repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: counter repository: %w", err)
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: customer repository: %w", err)
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: catalog repository: %w", err)
	}
	stores, err := NewStoreRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: store repository: %w", err)
	}

	registry := &Registry{
		provider:  provider,
		orders:    orders,
		coupons:   coupons,
		counters:  counters,
		customers: customers,
		catalog:   catalog,
		stores:    stores,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}

	if registry.health == nil {
		health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{
				Name: "firestore",
				Check: func(ctx context.Context) error {
					_, err := provider.Client(ctx)
					return err
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("registry: health repository: %w", err)
		}
		registry.health = health
	}

	return registry, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a single Firestore transaction. Repository calls
// made with the derived context participate in it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	if _, ok := pfirestore.TransactionFrom(ctx); ok {
		// Already inside a unit of work; nested calls reuse the outer transaction.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTransaction(ctx, tx))
	})
}

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository     { return r.coupons }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }
func (r *Registry) Catalog() repositories.CatalogRepository    { return r.catalog }
func (r *Registry) Stores() repositories.StoreRepository       { return r.stores }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

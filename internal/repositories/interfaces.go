package repositories

import (
	"context"
	"time"

	domain "github.com/orderdeck/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Coupons() CouponRepository
	Counters() CounterRepository
	Customers() CustomerRepository
	Catalog() CatalogRepository
	Stores() StoreRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query helpers for stores and customers.
type OrderRepository interface {
	// Insert creates the order document, failing with a conflict when the ID exists.
	Insert(ctx context.Context, order domain.Order) error
	// Update persists the order guarded by its optimistic version field. A stale
	// version yields a conflict RepositoryError.
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CouponRepository maintains coupon definitions and redemption counts.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, storeID, code string) (domain.Coupon, error)
	// Redeem increments the coupon usage count, honouring the usage limit. It
	// participates in an ambient transaction when one is running.
	Redeem(ctx context.Context, storeID, code string, now time.Time) (domain.Coupon, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CustomerRepository stores loyalty members and their point balances.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	// AddPoints atomically adjusts the point balance and appends a ledger entry.
	AddPoints(ctx context.Context, customerID string, points int64, reason domain.PointReason, orderID string, now time.Time) (domain.Customer, error)
	// AddSpend atomically increases lifetime spend and returns the updated customer.
	AddSpend(ctx context.Context, customerID string, amount int64, now time.Time) (domain.Customer, error)
	SetTier(ctx context.Context, customerID string, tier domain.LoyaltyTier, now time.Time) error
}

// CatalogRepository reads product pricing snapshots and adjusts tracked stock.
type CatalogRepository interface {
	// ProductSnapshots loads current pricing and availability for the requested products.
	ProductSnapshots(ctx context.Context, storeID string, productIDs []string) (map[string]domain.ProductSnapshot, error)
	// DecrementStock reduces tracked stock, failing with a conflict when the
	// remaining quantity is insufficient. Transaction-aware.
	DecrementStock(ctx context.Context, storeID, productID string, quantity int64) error
	// IncrementStock returns previously decremented stock, e.g. when an order is
	// cancelled. Transaction-aware.
	IncrementStock(ctx context.Context, storeID, productID string, quantity int64) error
}

// StoreRepository resolves store metadata and tenant ownership.
type StoreRepository interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
	// TenantOf returns the owning tenant for a store without loading the full document.
	TenantOf(ctx context.Context, storeID string) (string, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	TenantID   string
	StoreID    string
	CustomerID string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

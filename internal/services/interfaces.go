package services

import (
	"context"
	"time"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderItemAddon     = domain.OrderItemAddon
	OrderStatus        = domain.OrderStatus
	StatusHistoryEntry = domain.StatusHistoryEntry
	Coupon             = domain.Coupon
	Customer           = domain.Customer
	Store              = domain.Store
	ProductSnapshot    = domain.ProductSnapshot
	VariantSnapshot    = domain.VariantSnapshot
	AddonSnapshot      = domain.AddonSnapshot
	SystemHealthReport = domain.SystemHealthReport

	OrderListFilter = repositories.OrderListFilter
)

// PricingEngine validates an order draft against the catalog and computes
// frozen line prices, totals, discounts, and the prep-time estimate. It never
// mutates coupon usage; the validated coupon is returned so the order flow can
// redeem it inside its own transaction.
type PricingEngine interface {
	Price(ctx context.Context, cmd PriceOrderCommand) (PricedOrder, error)
}

// OrderService owns the order lifecycle: creation, status transitions,
// cancellation, payment signal application, and reads.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Transition(ctx context.Context, cmd TransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ApplyPaymentSignal(ctx context.Context, cmd ApplyPaymentSignalCommand) (Order, error)
}

// CounterService allocates human-readable order numbers unique per store and day.
type CounterService interface {
	NextOrderNumber(ctx context.Context, storeID string, asOf time.Time) (string, error)
}

// LoyaltyService applies completion side effects: points accrual, lifetime
// spend, and tier promotion. Effects are best-effort; the returned error is
// for logging and tests, never for rolling back the completed order.
type LoyaltyService interface {
	OnOrderCompleted(ctx context.Context, order Order) error
}

// SystemService aggregates dependency health for operational endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// CatalogSnapshotAccessor is the read surface the pricing engine validates against.
type CatalogSnapshotAccessor interface {
	ProductSnapshots(ctx context.Context, storeID string, productIDs []string) (map[string]domain.ProductSnapshot, error)
}

// Commands and results ------------------------------------------------------

// OrderDraftAddon selects an add-on with its per-line quantity.
type OrderDraftAddon struct {
	AddonID  string
	Quantity int
}

// OrderDraftLine is one requested line before validation and price freezing.
type OrderDraftLine struct {
	ProductID string
	VariantID *string
	Quantity  int
	Addons    []OrderDraftAddon
}

// PriceOrderCommand carries the draft the pricing engine validates.
type PriceOrderCommand struct {
	StoreID    string
	Lines      []OrderDraftLine
	CouponCode *string
}

// PricedOrder is the frozen result of validation: priced items, totals, the
// validated coupon when one applied, and the prep-time estimate.
type PricedOrder struct {
	Items         []OrderItem
	GrossAmount   int64
	Discount      int64
	NetAmount     int64
	Coupon        *Coupon
	EstimatedMins int
}

// CreateOrderCommand carries everything needed to place an order.
type CreateOrderCommand struct {
	TenantID   string
	StoreID    string
	CustomerID string
	Type       domain.OrderType
	Lines      []OrderDraftLine
	CouponCode *string
	TableRef   *string
	Note       string
	ActorID    string
}

// TransitionCommand requests a status change on an existing order.
type TransitionCommand struct {
	OrderID        string
	Target         OrderStatus
	ActorID        string
	Note           string
	ExpectedStatus *OrderStatus
}

// CancelOrderCommand cancels an order from a cancellable status.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// PaymentSignalKind enumerates gateway outcomes translated from webhooks.
type PaymentSignalKind string

const (
	PaymentSignalConfirmed PaymentSignalKind = "confirmed"
	PaymentSignalFailed    PaymentSignalKind = "failed"
	PaymentSignalRefunded  PaymentSignalKind = "refunded"
)

// ApplyPaymentSignalCommand mutates an order's payment status. The order
// status itself is never touched; surfacing the change to an operator is the
// notification layer's job.
type ApplyPaymentSignalCommand struct {
	OrderID   string
	Kind      PaymentSignalKind
	Reference string
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	TenantID       string
	StoreID        string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderNotifier fans an order event out to connected real-time subscribers.
type OrderNotifier interface {
	NotifyOrderEvent(ctx context.Context, event OrderEvent, order Order)
}

// ReceiptDispatcher renders and sends the kitchen/receipt ticket for an order.
// Dispatch is fire-and-forget; failures never block the order flow.
type ReceiptDispatcher interface {
	DispatchReceipt(ctx context.Context, order Order)
}

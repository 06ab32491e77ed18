package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates the lifecycle states an order moves through.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus normalises raw input into a known status, reporting whether it matched.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return status, true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are legal out of the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentStatus tracks the payment lifecycle independently from the order status.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderType distinguishes how the order is fulfilled.
type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeout  OrderType = "takeout"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeChannel  OrderType = "channel"
)

// Order is the aggregate owned by a store and referenced by the ordering customer.
// Monetary amounts are minor currency units. History is append-only; the last
// entry always mirrors Status.
type Order struct {
	ID            string               `firestore:"id"`
	Number        string               `firestore:"number"`
	TenantID      string               `firestore:"tenantId"`
	StoreID       string               `firestore:"storeId"`
	CustomerID    string               `firestore:"customerId"`
	Type          OrderType            `firestore:"type"`
	Status        OrderStatus          `firestore:"status"`
	PaymentStatus PaymentStatus        `firestore:"paymentStatus"`
	Items         []OrderItem          `firestore:"items"`
	GrossAmount   int64                `firestore:"grossAmount"`
	Discount      int64                `firestore:"discount"`
	NetAmount     int64                `firestore:"netAmount"`
	CouponCode    *string              `firestore:"couponCode,omitempty"`
	TableRef      *string              `firestore:"tableRef,omitempty"`
	Note          string               `firestore:"note,omitempty"`
	EstimatedMins int                  `firestore:"estimatedMins"`
	RefundPending bool                 `firestore:"refundPending"`
	History       []StatusHistoryEntry `firestore:"history"`
	Version       int64                `firestore:"version"`
	CreatedAt     time.Time            `firestore:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt"`
	CompletedAt   *time.Time           `firestore:"completedAt,omitempty"`
	CancelledAt   *time.Time           `firestore:"cancelledAt,omitempty"`
}

// OrderItem is a line frozen at validation time; prices are never recomputed
// from a later catalog state.
type OrderItem struct {
	ProductID string           `firestore:"productId"`
	VariantID *string          `firestore:"variantId,omitempty"`
	Name      string           `firestore:"name"`
	UnitPrice int64            `firestore:"unitPrice"`
	Quantity  int              `firestore:"quantity"`
	Total     int64            `firestore:"total"`
	Addons    []OrderItemAddon `firestore:"addons,omitempty"`
}

// OrderItemAddon records a selected add-on with its own frozen unit price.
type OrderItemAddon struct {
	AddonID   string `firestore:"addonId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

// StatusHistoryEntry is one element of the append-only transition audit trail.
type StatusHistoryEntry struct {
	Status    OrderStatus `firestore:"status"`
	Note      string      `firestore:"note,omitempty"`
	Actor     string      `firestore:"actor,omitempty"`
	CreatedAt time.Time   `firestore:"createdAt"`
}

// CouponType selects the discount rule a coupon applies.
type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFixedAmount  CouponType = "fixed_amount"
	CouponTypeFreeShipping CouponType = "free_shipping"
)

// Coupon is store-scoped. Redemption is all-or-nothing: the usage counter is
// incremented in the same transaction as the order it discounts.
type Coupon struct {
	ID          string     `firestore:"id"`
	StoreID     string     `firestore:"storeId"`
	Code        string     `firestore:"code"`
	Type        CouponType `firestore:"type"`
	Value       int64      `firestore:"value"`
	MinAmount   *int64     `firestore:"minAmount,omitempty"`
	MaxDiscount *int64     `firestore:"maxDiscount,omitempty"`
	StartsAt    time.Time  `firestore:"startsAt"`
	EndsAt      time.Time  `firestore:"endsAt"`
	Active      bool       `firestore:"active"`
	UsageLimit  *int64     `firestore:"usageLimit,omitempty"`
	UsageCount  int64      `firestore:"usageCount"`
}

// LoyaltyTier enumerates cumulative-spend tiers.
type LoyaltyTier string

const (
	LoyaltyTierBronze   LoyaltyTier = "bronze"
	LoyaltyTierSilver   LoyaltyTier = "silver"
	LoyaltyTierGold     LoyaltyTier = "gold"
	LoyaltyTierPlatinum LoyaltyTier = "platinum"
)

// TierForSpend maps cumulative lifetime spend to a loyalty tier.
func TierForSpend(spend int64) LoyaltyTier {
	switch {
	case spend >= 10000:
		return LoyaltyTierPlatinum
	case spend >= 5000:
		return LoyaltyTierGold
	case spend >= 1000:
		return LoyaltyTierSilver
	default:
		return LoyaltyTierBronze
	}
}

// Customer carries the loyalty ledger projections used by the completion processor.
type Customer struct {
	ID            string      `firestore:"id"`
	TenantID      string      `firestore:"tenantId"`
	DisplayName   string      `firestore:"displayName"`
	Points        int64       `firestore:"points"`
	LifetimeSpend int64       `firestore:"lifetimeSpend"`
	Tier          LoyaltyTier `firestore:"tier"`
	UpdatedAt     time.Time   `firestore:"updatedAt"`
}

// PointReason classifies point ledger mutations.
type PointReason string

const (
	PointReasonEarned   PointReason = "earned"
	PointReasonRedeemed PointReason = "redeemed"
	PointReasonAdjusted PointReason = "adjusted"
)

// Store is the tenant-owned unit all orders and rooms are scoped to.
type Store struct {
	ID          string `firestore:"id"`
	TenantID    string `firestore:"tenantId"`
	Name        string `firestore:"name"`
	Timezone    string `firestore:"timezone"`
	PrinterKind string `firestore:"printerKind"`
}

// ProductSnapshot is the catalog view the pricing engine validates against.
// Stock semantics: TrackStock=false means unlimited; otherwise StockQuantity
// is the currently available count.
type ProductSnapshot struct {
	ProductID     string            `firestore:"productId"`
	Name          string            `firestore:"name"`
	BasePrice     int64             `firestore:"basePrice"`
	Available     bool              `firestore:"available"`
	TrackStock    bool              `firestore:"trackStock"`
	StockQuantity int64             `firestore:"stockQuantity"`
	Variants      []VariantSnapshot `firestore:"variants,omitempty"`
	Addons        []AddonSnapshot   `firestore:"addons,omitempty"`
}

// VariantSnapshot is a purchasable variation whose price overrides the base price.
type VariantSnapshot struct {
	ID    string `firestore:"id"`
	Name  string `firestore:"name"`
	Price int64  `firestore:"price"`
}

// AddonSnapshot is an optional extra with a per-line quantity ceiling.
type AddonSnapshot struct {
	ID          string `firestore:"id"`
	Name        string `firestore:"name"`
	Price       int64  `firestore:"price"`
	MaxQuantity int    `firestore:"maxQuantity"`
}

// Pagination carries page-size and continuation-token inputs for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a single page of results plus the token for the next one.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery bounds list queries by an inclusive lower and exclusive upper value.
type RangeQuery[T any] struct {
	From *T
	To   *T
}

// Health status values reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck records the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

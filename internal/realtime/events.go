package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/services"
)

// Broadcast severity levels accepted from operators.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const broadcastEventType = "tenant.broadcast"

// ErrInvalidBroadcast signals a broadcast with no message or an unknown level.
var ErrInvalidBroadcast = errors.New("realtime: invalid broadcast")

// staffStatusLabels are the operator-screen labels for each order status.
var staffStatusLabels = map[domain.OrderStatus]string{
	domain.OrderStatusPending:   "New",
	domain.OrderStatusConfirmed: "Confirmed",
	domain.OrderStatusPreparing: "In the kitchen",
	domain.OrderStatusReady:     "Ready for pickup",
	domain.OrderStatusCompleted: "Completed",
	domain.OrderStatusCancelled: "Cancelled",
}

// customerStatusMessages are the messages shown on the ordering customer's device.
var customerStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusPending:   "Your order has been received.",
	domain.OrderStatusConfirmed: "Your order is confirmed.",
	domain.OrderStatusPreparing: "Your order is being prepared.",
	domain.OrderStatusReady:     "Your order is ready for pickup.",
	domain.OrderStatusCompleted: "Thank you, enjoy your meal.",
	domain.OrderStatusCancelled: "Your order has been cancelled.",
}

// CustomerDirectory resolves display names for the store-facing event shape.
type CustomerDirectory interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// NotifierDeps bundles collaborators required to construct the notifier.
type NotifierDeps struct {
	Hub       *Hub
	Customers CustomerDirectory
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Notifier shapes order events per audience and publishes them through the
// hub. It implements services.OrderNotifier.
type Notifier struct {
	hub       *Hub
	customers CustomerDirectory
	clock     func() time.Time
	logger    *zap.Logger
	sanitizer *bluemonday.Policy
}

var _ services.OrderNotifier = (*Notifier)(nil)

// NewNotifier builds the fan-out adapter between the order service and the hub.
func NewNotifier(deps NotifierDeps) (*Notifier, error) {
	if deps.Hub == nil {
		return nil, errors.New("realtime notifier: hub is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		hub:       deps.Hub,
		customers: deps.Customers,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// NotifyOrderEvent publishes the store-facing and customer-facing shapes of
// the event. Guest orders skip the customer room.
func (n *Notifier) NotifyOrderEvent(ctx context.Context, event services.OrderEvent, order services.Order) {
	n.NotifyStoreOfOrderEvent(ctx, event, order)
	n.NotifyCustomerOfOrderEvent(ctx, event, order)
}

// NotifyStoreOfOrderEvent delivers the full operator view: every line item,
// the customer's display name, and the staff status label.
func (n *Notifier) NotifyStoreOfOrderEvent(ctx context.Context, event services.OrderEvent, order services.Order) {
	data := map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.Number,
		"status":        string(order.Status),
		"statusLabel":   staffStatusLabels[order.Status],
		"paymentStatus": string(order.PaymentStatus),
		"type":          string(order.Type),
		"items":         shapeItems(order.Items),
		"netAmount":     order.NetAmount,
		"note":          n.sanitize(order.Note),
		"actorId":       event.ActorID,
	}
	if event.PreviousStatus != "" {
		data["previousStatus"] = event.PreviousStatus
	}
	if order.TableRef != nil {
		data["tableRef"] = *order.TableRef
	}
	if name := n.customerDisplayName(ctx, order.CustomerID); name != "" {
		data["customerName"] = name
	}

	n.hub.Publish(StoreRoom(order.StoreID), Event{
		Type:       event.Type,
		Data:       data,
		OccurredAt: event.OccurredAt,
	})
}

// NotifyCustomerOfOrderEvent delivers the compact customer view: a status
// message and the minutes still expected to remain.
func (n *Notifier) NotifyCustomerOfOrderEvent(ctx context.Context, event services.OrderEvent, order services.Order) {
	customerID := strings.TrimSpace(order.CustomerID)
	if customerID == "" {
		return
	}

	data := map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.Number,
		"status":      string(order.Status),
		"message":     customerStatusMessages[order.Status],
	}
	if mins := remainingMinutes(order, n.clock()); mins >= 0 {
		data["remainingMins"] = mins
	}

	n.hub.Publish(UserRoom(customerID), Event{
		Type:       event.Type,
		Data:       data,
		OccurredAt: event.OccurredAt,
	})
}

// BroadcastToTenant publishes an operator announcement to every subscriber of
// the tenant, or only to the given store rooms when any are named. The
// message is sanitized before fan-out.
func (n *Notifier) BroadcastToTenant(ctx context.Context, tenantID, message, level string, storeIDs []string) (int, error) {
	message = strings.TrimSpace(n.sanitize(message))
	if message == "" {
		return 0, fmt.Errorf("%w: message is required", ErrInvalidBroadcast)
	}
	switch level {
	case LevelInfo, LevelWarning, LevelError:
	case "":
		level = LevelInfo
	default:
		return 0, fmt.Errorf("%w: unknown level %q", ErrInvalidBroadcast, level)
	}

	event := Event{
		Type: broadcastEventType,
		Data: map[string]any{
			"message": message,
			"level":   level,
		},
		OccurredAt: n.clock(),
	}

	if len(storeIDs) == 0 {
		return n.hub.Publish(TenantRoom(tenantID), event), nil
	}

	delivered := 0
	for _, storeID := range storeIDs {
		if storeID = strings.TrimSpace(storeID); storeID == "" {
			continue
		}
		delivered += n.hub.Publish(StoreRoom(storeID), event)
	}
	return delivered, nil
}

func (n *Notifier) customerDisplayName(ctx context.Context, customerID string) string {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || n.customers == nil {
		return ""
	}
	customer, err := n.customers.FindByID(ctx, customerID)
	if err != nil {
		n.logger.Debug("customer lookup for event shaping failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return ""
	}
	return customer.DisplayName
}

func (n *Notifier) sanitize(value string) string {
	if value == "" {
		return ""
	}
	return n.sanitizer.Sanitize(value)
}

func shapeItems(items []domain.OrderItem) []map[string]any {
	shaped := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"name":     item.Name,
			"quantity": item.Quantity,
			"total":    item.Total,
		}
		if len(item.Addons) > 0 {
			addons := make([]string, 0, len(item.Addons))
			for _, addon := range item.Addons {
				addons = append(addons, addon.Name)
			}
			entry["addons"] = addons
		}
		shaped = append(shaped, entry)
	}
	return shaped
}

// remainingMinutes estimates minutes left until the order should be ready.
// Negative means the estimate no longer applies (terminal status or no estimate).
func remainingMinutes(order services.Order, now time.Time) int {
	if order.EstimatedMins <= 0 || order.Status.IsTerminal() {
		return -1
	}
	elapsed := int(now.Sub(order.CreatedAt) / time.Minute)
	remaining := order.EstimatedMins - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

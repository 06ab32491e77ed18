package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"

	orderIDPrefix = "ord_"

	// Version conflicts on concurrent transitions are retried this many times
	// before surfacing to the caller.
	transitionRetryAttempts = 3
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates an illegal status transition was attempted.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:     {domain.OrderStatusCompleted},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusPreparing,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Coupons     repositories.CouponRepository
	Catalog     repositories.CatalogRepository
	Stores      repositories.StoreRepository
	Pricing     PricingEngine
	Counters    CounterService
	Loyalty     LoyaltyService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Notifier    OrderNotifier
	Printing    ReceiptDispatcher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	coupons    repositories.CouponRepository
	catalog    repositories.CatalogRepository
	stores     repositories.StoreRepository
	pricing    PricingEngine
	counters   CounterService
	loyalty    LoyaltyService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	notifier   OrderNotifier
	printing   ReceiptDispatcher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("order service: store repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		coupons:    deps.Coupons,
		catalog:    deps.Catalog,
		stores:     deps.Stores,
		pricing:    deps.Pricing,
		counters:   deps.Counters,
		loyalty:    deps.Loyalty,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		notifier: deps.Notifier,
		printing: deps.Printing,
		logger:   logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return Order{}, fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one line", ErrOrderInvalidInput)
	}
	orderType := cmd.Type
	if orderType == "" {
		orderType = domain.OrderTypeDineIn
	}

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	tenantID := strings.TrimSpace(cmd.TenantID)
	if tenantID == "" {
		tenantID = store.TenantID
	}
	if tenantID != store.TenantID {
		return Order{}, fmt.Errorf("%w: store %s does not belong to tenant %s", ErrOrderInvalidInput, storeID, tenantID)
	}

	priced, err := s.pricing.Price(ctx, PriceOrderCommand{
		StoreID:    storeID,
		Lines:      cmd.Lines,
		CouponCode: cmd.CouponCode,
	})
	if err != nil {
		return Order{}, err
	}

	now := s.now()

	number, err := s.counters.NextOrderNumber(ctx, storeID, now)
	if err != nil {
		return Order{}, err
	}

	actor := strings.TrimSpace(cmd.ActorID)
	order := Order{
		ID:            orderIDPrefix + s.newID(),
		Number:        number,
		TenantID:      store.TenantID,
		StoreID:       storeID,
		CustomerID:    strings.TrimSpace(cmd.CustomerID),
		Type:          orderType,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Items:         priced.Items,
		GrossAmount:   priced.GrossAmount,
		Discount:      priced.Discount,
		NetAmount:     priced.NetAmount,
		TableRef:      cloneStringPtr(cmd.TableRef),
		Note:          strings.TrimSpace(cmd.Note),
		EstimatedMins: priced.EstimatedMins,
		History: []StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			Actor:     actor,
			CreatedAt: now,
		}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if priced.Coupon != nil {
		code := priced.Coupon.Code
		order.CouponCode = &code
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if priced.Coupon != nil {
			if _, err := s.coupons.Redeem(txCtx, storeID, priced.Coupon.Code, now); err != nil {
				if isConflict(err) {
					return fmt.Errorf("%w: code %s", ErrCouponLimitReached, priced.Coupon.Code)
				}
				return s.mapRepositoryError(err)
			}
		}
		if s.catalog != nil {
			for productID, quantity := range aggregateLineQuantities(order.Items) {
				if err := s.catalog.DecrementStock(txCtx, storeID, productID, quantity); err != nil {
					if isConflict(err) {
						return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
					}
					return s.mapRepositoryError(err)
				}
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if s.printing != nil {
		go s.printing.DispatchReceipt(context.WithoutCancel(ctx), order)
	}

	event := OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		TenantID:      order.TenantID,
		StoreID:       order.StoreID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    now,
	}
	s.publishEvent(ctx, event)
	s.notify(ctx, event, order)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(string(cmd.Target))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown target status %q", ErrOrderInvalidInput, cmd.Target)
	}
	actor := strings.TrimSpace(cmd.ActorID)

	order, prevStatus, err := s.updateWithRetry(ctx, orderID, func(_ context.Context, order *Order, now time.Time) error {
		if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, order.Status)
		}
		return s.applyStatusTransition(order, target, actor, strings.TrimSpace(cmd.Note), now)
	})
	if err != nil {
		return Order{}, err
	}

	s.afterStatusChange(ctx, order, prevStatus, actor)
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)

	order, prevStatus, err := s.updateWithRetry(ctx, orderID, func(txCtx context.Context, order *Order, now time.Time) error {
		if !slices.Contains(cancellableStatuses, order.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.OrderStatusCancelled)
		}
		if err := s.applyStatusTransition(order, domain.OrderStatusCancelled, actor, reason, now); err != nil {
			return err
		}
		if order.PaymentStatus == domain.PaymentStatusPaid {
			// Money already moved; the refund completes out of band and the
			// payment status flips only on gateway confirmation.
			order.RefundPending = true
		}
		// Creation decremented tracked stock, so cancellation returns it in the
		// same transaction that flips the status.
		if s.catalog != nil {
			for productID, quantity := range aggregateLineQuantities(order.Items) {
				if err := s.catalog.IncrementStock(txCtx, order.StoreID, productID, quantity); err != nil {
					return s.mapRepositoryError(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.afterStatusChange(ctx, order, prevStatus, actor)
	return order, nil
}

func (s *orderService) ApplyPaymentSignal(ctx context.Context, cmd ApplyPaymentSignalCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	target, err := paymentStatusFor(cmd.Kind)
	if err != nil {
		return Order{}, err
	}

	var changed bool
	order, _, err := s.updateWithRetry(ctx, orderID, func(_ context.Context, order *Order, now time.Time) error {
		if order.PaymentStatus == target {
			changed = false
			return errNoUpdateNeeded
		}
		order.PaymentStatus = target
		if target == domain.PaymentStatusRefunded {
			order.RefundPending = false
		}
		order.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return order, nil
	}

	event := OrderEvent{
		Type:          orderEventPaymentChanged,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		TenantID:      order.TenantID,
		StoreID:       order.StoreID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"paymentStatus": string(order.PaymentStatus),
			"reference":     cmd.Reference,
		},
	}
	s.publishEvent(ctx, event)
	s.notify(ctx, event, order)

	return order, nil
}

// errNoUpdateNeeded short-circuits the retry loop when the mutation is a no-op.
var errNoUpdateNeeded = errors.New("order: no update needed")

// updateWithRetry loads the order, applies the mutation, and persists it with
// the version guard, all inside one unit of work so side writes issued by the
// mutation (restocking, coupon releases) commit or roll back with the order.
// Stale-version conflicts reload and retry a bounded number of times. Returns
// the persisted order and its status before the mutation.
func (s *orderService) updateWithRetry(ctx context.Context, orderID string, mutate func(txCtx context.Context, order *Order, now time.Time) error) (Order, domain.OrderStatus, error) {
	var lastErr error
	for attempt := 0; attempt < transitionRetryAttempts; attempt++ {
		var (
			order      Order
			prevStatus domain.OrderStatus
		)
		err := s.runInTx(ctx, func(txCtx context.Context) error {
			loaded, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			prevStatus = loaded.Status

			now := s.now()
			if err := mutate(txCtx, &loaded, now); err != nil {
				if errors.Is(err, errNoUpdateNeeded) {
					order = loaded
				}
				return err
			}

			loaded.Version++
			if err := s.orders.Update(txCtx, loaded); err != nil {
				return err
			}
			order = loaded
			return nil
		})
		if err == nil {
			return order, prevStatus, nil
		}
		if errors.Is(err, errNoUpdateNeeded) {
			return order, prevStatus, nil
		}
		if isConflict(err) {
			lastErr = err
			continue
		}
		return Order{}, "", s.mapRepositoryError(err)
	}
	return Order{}, "", fmt.Errorf("%w: %v", ErrOrderConflict, lastErr)
}

func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, actor, note string, now time.Time) error {
	current := order.Status
	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	order.History = append(order.History, StatusHistoryEntry{
		Status:    target,
		Note:      note,
		Actor:     actor,
		CreatedAt: now,
	})

	switch target {
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

// afterStatusChange runs the post-commit fan-out shared by Transition and
// Cancel: completion side effects, the event bus, and the realtime hub.
func (s *orderService) afterStatusChange(ctx context.Context, order Order, prevStatus domain.OrderStatus, actor string) {
	if order.Status == domain.OrderStatusCompleted && s.loyalty != nil {
		// Detached from the request: loyalty effects never block or revert
		// a completed order.
		go func(effectCtx context.Context, completed Order) {
			if err := s.loyalty.OnOrderCompleted(effectCtx, completed); err != nil {
				s.logger(effectCtx, "order.loyalty.effects.failed", map[string]any{
					"order_id": completed.ID,
					"error":    err.Error(),
				})
			}
		}(context.WithoutCancel(ctx), order)
	}

	event := OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		TenantID:       order.TenantID,
		StoreID:        order.StoreID,
		CustomerID:     order.CustomerID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     order.UpdatedAt,
	}
	s.publishEvent(ctx, event)
	s.notify(ctx, event, order)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) notify(ctx context.Context, event OrderEvent, order Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyOrderEvent(ctx, event, order)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func paymentStatusFor(kind PaymentSignalKind) (domain.PaymentStatus, error) {
	switch kind {
	case PaymentSignalConfirmed:
		return domain.PaymentStatusPaid, nil
	case PaymentSignalFailed:
		return domain.PaymentStatusFailed, nil
	case PaymentSignalRefunded:
		return domain.PaymentStatusRefunded, nil
	default:
		return "", fmt.Errorf("%w: unknown payment signal %q", ErrOrderInvalidInput, kind)
	}
}

// aggregateLineQuantities sums requested quantities per product so stock moves
// once per product regardless of how many lines reference it.
func aggregateLineQuantities(items []OrderItem) map[string]int64 {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[item.ProductID] += int64(item.Quantity)
	}
	return totals
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	ref := strings.TrimSpace(*value)
	if ref == "" {
		return nil
	}
	return &ref
}

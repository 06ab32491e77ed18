package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/payments"
	"github.com/orderdeck/api/internal/platform/auth"
	"github.com/orderdeck/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(context.Context, services.TransitionCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
	signalFn     func(context.Context, services.ApplyPaymentSignalCommand) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ApplyPaymentSignal(ctx context.Context, cmd services.ApplyPaymentSignalCommand) (services.Order, error) {
	if s.signalFn != nil {
		return s.signalFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func newOrderRouter(service services.OrderService) http.Handler {
	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

type stubProvider struct {
	name        string
	authorizeFn func(context.Context, payments.AuthorizeRequest) (payments.Intent, error)
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Authorize(ctx context.Context, req payments.AuthorizeRequest) (payments.Intent, error) {
	if p.authorizeFn != nil {
		return p.authorizeFn(ctx, req)
	}
	return payments.Intent{}, errors.New("not implemented")
}

func (p *stubProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
	return payments.Refund{}, errors.New("not implemented")
}

func (p *stubProvider) Lookup(ctx context.Context, intentID string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

func newPaymentRouter(t *testing.T, service services.OrderService, provider payments.Provider) http.Handler {
	t.Helper()
	manager, err := payments.NewManager(provider)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	handler := NewOrderHandlers(nil, service, manager)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func staffIdentity() *auth.Identity {
	return &auth.Identity{
		UID:      "staff-1",
		TenantID: "tenant-1",
		StoreIDs: []string{"store-1"},
		Roles:    []string{auth.RoleStaff},
	}
}

func customerIdentity() *auth.Identity {
	return &auth.Identity{
		UID:      "cust-1",
		TenantID: "tenant-1",
		Roles:    []string{auth.RoleCustomer},
	}
}

func sampleStoredOrder() services.Order {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "ord_123",
		Number:        "20250601-0042",
		TenantID:      "tenant-1",
		StoreID:       "store-1",
		CustomerID:    "cust-1",
		Type:          domain.OrderTypeTakeout,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Items: []services.OrderItem{
			{ProductID: "prod-1", Name: "Burger", UnitPrice: 1200, Quantity: 2, Total: 2400},
		},
		GrossAmount: 2400,
		NetAmount:   2400,
		History: []services.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Actor: "cust-1", CreatedAt: created},
		},
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleStoredOrder(), nil
		},
	}
	router := newOrderRouter(service)

	body := `{
		"store_id": "store-1",
		"type": "takeout",
		"coupon_code": "SAVE10",
		"lines": [
			{"product_id": "prod-1", "quantity": 2, "addons": [{"addon_id": "add-1", "quantity": 1}]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TenantID != "tenant-1" {
		t.Fatalf("expected tenant from identity, got %q", captured.TenantID)
	}
	if captured.CustomerID != "cust-1" {
		t.Fatalf("expected customer to be the caller, got %q", captured.CustomerID)
	}
	if captured.ActorID != "cust-1" {
		t.Fatalf("expected actor cust-1, got %q", captured.ActorID)
	}
	if captured.Type != domain.OrderTypeTakeout {
		t.Fatalf("expected takeout order, got %q", captured.Type)
	}
	if captured.CouponCode == nil || *captured.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon code SAVE10, got %#v", captured.CouponCode)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].ProductID != "prod-1" {
		t.Fatalf("unexpected draft lines: %#v", captured.Lines)
	}
	if len(captured.Lines[0].Addons) != 1 || captured.Lines[0].Addons[0].AddonID != "add-1" {
		t.Fatalf("unexpected draft addons: %#v", captured.Lines[0].Addons)
	}

	var payload orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "ord_123" || payload.Number != "20250601-0042" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestOrderHandlersCreateOrderOverridesCustomerForCustomers(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleStoredOrder(), nil
		},
	}
	router := newOrderRouter(service)

	body := `{"store_id": "store-1", "type": "takeout", "customer_id": "somebody-else", "lines": [{"product_id": "p", "quantity": 1}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.CustomerID != "cust-1" {
		t.Fatalf("expected customer override to cust-1, got %q", captured.CustomerID)
	}
}

func TestOrderHandlersCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "unknown type", body: `{"store_id": "store-1", "type": "drive_through", "lines": []}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newOrderRouter(&stubOrderService{})
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body))
			req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersCreateOrderMapsServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid input", err: services.ErrOrderInvalidInput, wantStatus: http.StatusBadRequest},
		{name: "unavailable product", err: services.ErrProductUnavailable, wantStatus: http.StatusUnprocessableEntity},
		{name: "stock conflict", err: services.ErrInsufficientStock, wantStatus: http.StatusConflict},
		{name: "coupon exhausted", err: services.ErrCouponLimitReached, wantStatus: http.StatusConflict},
		{name: "expired coupon", err: services.ErrCouponExpired, wantStatus: http.StatusUnprocessableEntity},
		{name: "validation timeout", err: services.ErrValidationTimeout, wantStatus: http.StatusGatewayTimeout},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(service)

			body := `{"store_id": "store-1", "type": "takeout", "lines": [{"product_id": "p", "quantity": 1}]}`
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
			req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersGetOrderScopesAccess(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_123" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleStoredOrder(), nil
		},
	}
	router := newOrderRouter(service)

	tests := []struct {
		name       string
		identity   *auth.Identity
		wantStatus int
	}{
		{name: "owning customer", identity: customerIdentity(), wantStatus: http.StatusOK},
		{name: "store staff", identity: staffIdentity(), wantStatus: http.StatusOK},
		{
			name: "staff of another store",
			identity: &auth.Identity{
				UID:      "staff-2",
				TenantID: "tenant-1",
				StoreIDs: []string{"store-9"},
				Roles:    []string{auth.RoleStaff},
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "foreign tenant",
			identity: &auth.Identity{
				UID:      "cust-1",
				TenantID: "tenant-2",
				Roles:    []string{auth.RoleCustomer},
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
			req = req.WithContext(auth.WithIdentity(req.Context(), tc.identity))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersListOrdersForStaff(t *testing.T) {
	fromExpected := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleStoredOrder()},
				NextPageToken: "tok-next",
			}, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/orders?store_id=store-1&status=pending,preparing&page_size=10&page_token=tok123&created_after=2025-06-01T00:00:00Z", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TenantID != "tenant-1" {
		t.Fatalf("expected tenant filter, got %q", captured.TenantID)
	}
	if captured.StoreID != "store-1" {
		t.Fatalf("expected store filter, got %q", captured.StoreID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != "pending" || captured.Status[1] != "preparing" {
		t.Fatalf("unexpected status filter: %#v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(fromExpected) {
		t.Fatalf("unexpected date range: %#v", captured.DateRange.From)
	}

	var payload orderListPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Orders) != 1 || payload.NextPageToken != "tok-next" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestOrderHandlersListOrdersPinsCustomersToSelf(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/orders?store_id=store-1&customer_id=somebody-else", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.CustomerID != "cust-1" {
		t.Fatalf("expected customer pinned to cust-1, got %q", captured.CustomerID)
	}
	if captured.StoreID != "" {
		t.Fatalf("expected store filter cleared, got %q", captured.StoreID)
	}
}

func TestOrderHandlersListOrdersRejectsForeignStore(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders?store_id=store-9", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersTransitionOrder(t *testing.T) {
	var captured services.TransitionCommand
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleStoredOrder()
			order.Status = domain.OrderStatusConfirmed
			order.Version = 2
			return order, nil
		},
	}
	router := newOrderRouter(service)

	body := `{"target": "confirmed", "note": "looks good", "expected_status": "pending"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/transition", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" {
		t.Fatalf("expected order ord_123, got %q", captured.OrderID)
	}
	if captured.Target != domain.OrderStatusConfirmed {
		t.Fatalf("expected target confirmed, got %q", captured.Target)
	}
	if captured.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %q", captured.ActorID)
	}
	if captured.ExpectedStatus == nil || *captured.ExpectedStatus != domain.OrderStatusPending {
		t.Fatalf("expected expected_status pending, got %#v", captured.ExpectedStatus)
	}
}

func TestOrderHandlersTransitionRequiresCapability(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	body := `{"target": "confirmed"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/transition", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionMapsConflicts(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "illegal move", err: services.ErrInvalidTransition, wantStatus: http.StatusConflict},
		{name: "stale version", err: services.ErrOrderConflict, wantStatus: http.StatusConflict},
		{name: "missing order", err: services.ErrOrderNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				transitionFn: func(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(service)

			req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/transition", strings.NewReader(`{"target": "confirmed"}`))
			req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestOrderHandlersCancelAsStaff(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleStoredOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", strings.NewReader(`{"reason": "out of stock"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.Reason != "out of stock" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %q", captured.ActorID)
	}
}

func TestOrderHandlersCancelAllowsOwnPendingOrder(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return sampleStoredOrder(), nil
		},
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			order := sampleStoredOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancelRejectsCustomerAfterConfirmation(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			order := sampleStoredOrder()
			order.Status = domain.OrderStatusPreparing
			return order, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancelRejectsOtherCustomersOrders(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			order := sampleStoredOrder()
			order.CustomerID = "someone-else"
			return order, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersCreatePaymentIntent(t *testing.T) {
	var captured payments.AuthorizeRequest
	provider := &stubProvider{
		name: "stripe",
		authorizeFn: func(ctx context.Context, req payments.AuthorizeRequest) (payments.Intent, error) {
			captured = req
			return payments.Intent{
				ID:           "pi_123",
				OrderID:      req.OrderID,
				Amount:       req.Amount,
				Currency:     "jpy",
				Status:       payments.IntentStatusPending,
				ClientSecret: "pi_123_secret",
			}, nil
		},
	}
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return sampleStoredOrder(), nil
		},
	}
	router := newPaymentRouter(t, service, provider)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/pay", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.Amount != 2400 {
		t.Fatalf("unexpected authorize request: %#v", captured)
	}

	var resp paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IntentID != "pi_123" || resp.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOrderHandlersCreatePaymentIntentRejectsPaidOrders(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			order := sampleStoredOrder()
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	router := newPaymentRouter(t, service, &stubProvider{name: "stripe"})

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/pay", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestOrderHandlersCreatePaymentIntentUnknownProvider(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (services.Order, error) {
			return sampleStoredOrder(), nil
		},
	}
	router := newPaymentRouter(t, service, &stubProvider{name: "stripe"})

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/pay", strings.NewReader(`{"provider": "paypal"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersRequireAuthentication(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

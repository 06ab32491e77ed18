package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/payments"
	"github.com/orderdeck/api/internal/platform/auth"
	"github.com/orderdeck/api/internal/platform/httpx"
	"github.com/orderdeck/api/internal/services"
)

const (
	maxOrderBodyBytes = 64 * 1024
	defaultPageSize   = 20
	maxPageSize       = 100
)

// OrderHandlers serves the order lifecycle endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	providers *payments.Manager
}

// NewOrderHandlers wires the order endpoints to their service. The provider
// manager is optional; without it the pay endpoint reports unavailable.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, providers *payments.Manager) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, providers: providers}
}

// Routes registers the order endpoints on the given router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.handleCreateOrder)
	r.Get("/", h.handleListOrders)
	r.Get("/{orderID}", h.handleGetOrder)
	r.Post("/{orderID}/transition", h.handleTransitionOrder)
	r.Post("/{orderID}/cancel", h.handleCancelOrder)
	r.Post("/{orderID}/pay", h.handleCreatePaymentIntent)
}

type orderAddonRequest struct {
	AddonID  string `json:"addon_id"`
	Quantity int    `json:"quantity"`
}

type orderLineRequest struct {
	ProductID string              `json:"product_id"`
	VariantID *string             `json:"variant_id"`
	Quantity  int                 `json:"quantity"`
	Addons    []orderAddonRequest `json:"addons"`
}

type createOrderRequest struct {
	StoreID    string             `json:"store_id"`
	CustomerID string             `json:"customer_id"`
	Type       string             `json:"type"`
	Lines      []orderLineRequest `json:"lines"`
	CouponCode *string            `json:"coupon_code"`
	TableRef   *string            `json:"table_ref"`
	Note       string             `json:"note"`
}

type transitionOrderRequest struct {
	Target         string `json:"target"`
	Note           string `json:"note"`
	ExpectedStatus string `json:"expected_status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if !identity.Can(auth.CapOrderCreate) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "missing order.create capability", http.StatusForbidden))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	orderType, ok := parseOrderType(req.Type)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "type must be one of dine_in, takeout, delivery, channel", http.StatusBadRequest))
		return
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if identity.HasRole(auth.RoleCustomer) && !identity.HasAnyRole(auth.RoleStaff, auth.RoleManager, auth.RoleAdmin) {
		// Customers always order as themselves.
		customerID = identity.UID
	}

	cmd := services.CreateOrderCommand{
		TenantID:   identity.TenantID,
		StoreID:    strings.TrimSpace(req.StoreID),
		CustomerID: customerID,
		Type:       orderType,
		Lines:      draftLinesFromRequest(req.Lines),
		CouponCode: req.CouponCode,
		TableRef:   req.TableRef,
		Note:       req.Note,
		ActorID:    identity.UID,
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderToPayload(order))
}

func (h *OrderHandlers) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderID is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !canViewOrder(identity, order) {
		// Hide existence from callers outside the order's scope.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderToPayload(order))
}

func (h *OrderHandlers) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		TenantID:   identity.TenantID,
		StoreID:    strings.TrimSpace(query.Get("store_id")),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		Status:     parseFilterValues(query["status"]),
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after "+err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before "+err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	filter.Pagination.PageSize = defaultPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxPageSize {
			size = maxPageSize
		}
		filter.Pagination.PageSize = size
	}
	filter.Pagination.PageToken = strings.TrimSpace(query.Get("page_token"))

	if !identity.Can(auth.CapOrderViewStore) {
		// Customers see only their own orders regardless of requested filters.
		filter.CustomerID = identity.UID
		filter.StoreID = ""
	} else if filter.StoreID != "" && !identity.MemberOfStore(filter.StoreID) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not a member of the requested store", http.StatusForbidden))
		return
	} else if filter.StoreID == "" && filter.CustomerID == "" && !identity.Can(auth.CapOrderViewTenant) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "store_id is required for store-scoped access", http.StatusForbidden))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderListPayload{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, orderToPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) handleTransitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if !identity.Can(auth.CapOrderAdvance) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "missing order.advance capability", http.StatusForbidden))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderID is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, ok := domain.ParseOrderStatus(req.Target)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target is not a known order status", http.StatusBadRequest))
		return
	}
	cmd := services.TransitionCommand{
		OrderID: orderID,
		Target:  target,
		ActorID: identity.UID,
		Note:    req.Note,
	}
	if strings.TrimSpace(req.ExpectedStatus) != "" {
		expected, ok := domain.ParseOrderStatus(req.ExpectedStatus)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status is not a known order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.Transition(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderToPayload(order))
}

func (h *OrderHandlers) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderID is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodyBytes)
	switch {
	case errors.Is(err, errEmptyBody):
		// Cancellation reason is optional.
	case err != nil:
		writeBodyError(ctx, w, err)
		return
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	if !identity.Can(auth.CapOrderCancel) {
		// Customers may withdraw their own order while it is still pending.
		order, err := h.orders.GetOrder(ctx, orderID)
		if err != nil {
			writeOrderError(ctx, w, err)
			return
		}
		if order.CustomerID == "" || order.CustomerID != identity.UID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "missing order.cancel capability", http.StatusForbidden))
			return
		}
		if order.Status != domain.OrderStatusPending {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "customers can cancel only pending orders", http.StatusConflict))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderToPayload(order))
}

type paymentIntentRequest struct {
	Provider string `json:"provider"`
}

type paymentIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

func (h *OrderHandlers) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.providers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "payment provider is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderID is required", http.StatusBadRequest))
		return
	}

	var req paymentIntentRequest
	body, err := readLimitedBody(r, maxOrderBodyBytes)
	switch {
	case errors.Is(err, errEmptyBody):
		// Default provider when no body is sent.
	case err != nil:
		writeBodyError(ctx, w, err)
		return
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	if order.Status.IsTerminal() {
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order is no longer payable", http.StatusConflict))
		return
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order is already paid", http.StatusConflict))
		return
	}

	provider, err := h.providers.Provider(req.Provider)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("provider_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}
	intent, err := provider.Authorize(ctx, payments.AuthorizeRequest{
		OrderID: order.ID,
		Amount:  order.NetAmount,
	})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidRequest) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to open payment intent", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Status:       intent.Status,
	})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds the size limit", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
	}
}

func parseOrderType(raw string) (domain.OrderType, bool) {
	t := domain.OrderType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case domain.OrderTypeDineIn, domain.OrderTypeTakeout, domain.OrderTypeDelivery, domain.OrderTypeChannel:
		return t, true
	}
	return "", false
}

func draftLinesFromRequest(lines []orderLineRequest) []services.OrderDraftLine {
	out := make([]services.OrderDraftLine, 0, len(lines))
	for _, line := range lines {
		draft := services.OrderDraftLine{
			ProductID: strings.TrimSpace(line.ProductID),
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		}
		for _, addon := range line.Addons {
			draft.Addons = append(draft.Addons, services.OrderDraftAddon{
				AddonID:  strings.TrimSpace(addon.AddonID),
				Quantity: addon.Quantity,
			})
		}
		out = append(out, draft)
	}
	return out
}

func canViewOrder(identity *auth.Identity, order services.Order) bool {
	if identity == nil {
		return false
	}
	if identity.TenantID != order.TenantID {
		return false
	}
	if order.CustomerID != "" && order.CustomerID == identity.UID {
		return true
	}
	if identity.Can(auth.CapOrderViewTenant) {
		return true
	}
	return identity.Can(auth.CapOrderViewStore) && identity.MemberOfStore(order.StoreID)
}

// Payloads -------------------------------------------------------------------

type orderAddonPayload struct {
	AddonID   string `json:"addon_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type orderItemPayload struct {
	ProductID string              `json:"product_id"`
	VariantID *string             `json:"variant_id,omitempty"`
	Name      string              `json:"name"`
	UnitPrice int64               `json:"unit_price"`
	Quantity  int                 `json:"quantity"`
	Total     int64               `json:"total"`
	Addons    []orderAddonPayload `json:"addons,omitempty"`
}

type orderHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	Actor     string `json:"actor,omitempty"`
	CreatedAt string `json:"created_at"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	Number        string                `json:"number"`
	TenantID      string                `json:"tenant_id"`
	StoreID       string                `json:"store_id"`
	CustomerID    string                `json:"customer_id,omitempty"`
	Type          string                `json:"type"`
	Status        string                `json:"status"`
	PaymentStatus string                `json:"payment_status"`
	Items         []orderItemPayload    `json:"items"`
	GrossAmount   int64                 `json:"gross_amount"`
	Discount      int64                 `json:"discount"`
	NetAmount     int64                 `json:"net_amount"`
	CouponCode    *string               `json:"coupon_code,omitempty"`
	TableRef      *string               `json:"table_ref,omitempty"`
	Note          string                `json:"note,omitempty"`
	EstimatedMins int                   `json:"estimated_mins"`
	RefundPending bool                  `json:"refund_pending"`
	History       []orderHistoryPayload `json:"history"`
	Version       int64                 `json:"version"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
	CompletedAt   string                `json:"completed_at,omitempty"`
	CancelledAt   string                `json:"cancelled_at,omitempty"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func orderToPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		TenantID:      order.TenantID,
		StoreID:       order.StoreID,
		CustomerID:    order.CustomerID,
		Type:          string(order.Type),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		GrossAmount:   order.GrossAmount,
		Discount:      order.Discount,
		NetAmount:     order.NetAmount,
		CouponCode:    order.CouponCode,
		TableRef:      order.TableRef,
		Note:          order.Note,
		EstimatedMins: order.EstimatedMins,
		RefundPending: order.RefundPending,
		History:       make([]orderHistoryPayload, 0, len(order.History)),
		Version:       order.Version,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		CompletedAt:   formatTimePtr(order.CompletedAt),
		CancelledAt:   formatTimePtr(order.CancelledAt),
	}
	for _, item := range order.Items {
		itemPayload := orderItemPayload{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		}
		for _, addon := range item.Addons {
			itemPayload.Addons = append(itemPayload.Addons, orderAddonPayload{
				AddonID:   addon.AddonID,
				Name:      addon.Name,
				UnitPrice: addon.UnitPrice,
				Quantity:  addon.Quantity,
			})
		}
		payload.Items = append(payload.Items, itemPayload)
	}
	for _, entry := range order.History {
		payload.History = append(payload.History, orderHistoryPayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			Actor:     entry.Actor,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	return payload
}

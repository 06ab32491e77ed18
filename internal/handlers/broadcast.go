package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderdeck/api/internal/platform/auth"
	"github.com/orderdeck/api/internal/platform/httpx"
	"github.com/orderdeck/api/internal/realtime"
)

const maxBroadcastBodyBytes = 16 * 1024

// BroadcastHandlers serves tenant-wide operator announcements.
type BroadcastHandlers struct {
	authn    *auth.Authenticator
	notifier *realtime.Notifier
}

// NewBroadcastHandlers wires the broadcast endpoint to the notifier.
func NewBroadcastHandlers(authn *auth.Authenticator, notifier *realtime.Notifier) *BroadcastHandlers {
	return &BroadcastHandlers{authn: authn, notifier: notifier}
}

// Routes registers the broadcast endpoint.
func (h *BroadcastHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.handleBroadcast)
}

type broadcastRequest struct {
	Message  string   `json:"message"`
	Level    string   `json:"level"`
	StoreIDs []string `json:"store_ids"`
}

type broadcastResponse struct {
	Delivered int `json:"delivered"`
}

func (h *BroadcastHandlers) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "broadcast notifier is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if !identity.Can(auth.CapBroadcastSend) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "missing broadcast.send capability", http.StatusForbidden))
		return
	}

	body, err := readLimitedBody(r, maxBroadcastBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req broadcastRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	storeIDs := make([]string, 0, len(req.StoreIDs))
	for _, storeID := range req.StoreIDs {
		storeID = strings.TrimSpace(storeID)
		if storeID == "" {
			continue
		}
		if !identity.MemberOfStore(storeID) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not a member of store "+storeID, http.StatusForbidden))
			return
		}
		storeIDs = append(storeIDs, storeID)
	}

	delivered, err := h.notifier.BroadcastToTenant(ctx, identity.TenantID, req.Message, req.Level, storeIDs)
	if err != nil {
		if errors.Is(err, realtime.ErrInvalidBroadcast) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("broadcast_error", "failed to deliver broadcast", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, broadcastResponse{Delivered: delivered})
}

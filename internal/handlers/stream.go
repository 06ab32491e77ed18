package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/orderdeck/api/internal/platform/auth"
	"github.com/orderdeck/api/internal/platform/httpx"
	"github.com/orderdeck/api/internal/realtime"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultSubscriberBuffer  = 32
)

// StreamHandlers serves the server-sent events endpoint backed by the
// real-time hub.
type StreamHandlers struct {
	authn     *auth.Authenticator
	hub       *realtime.Hub
	heartbeat time.Duration
	buffer    int
	logger    *zap.Logger
}

// StreamOptions tune subscriber delivery.
type StreamOptions struct {
	HeartbeatInterval time.Duration
	SubscriberBuffer  int
	Logger            *zap.Logger
}

// NewStreamHandlers wires the SSE endpoint to the hub.
func NewStreamHandlers(authn *auth.Authenticator, hub *realtime.Hub, opts StreamOptions) *StreamHandlers {
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandlers{
		authn:     authn,
		hub:       hub,
		heartbeat: heartbeat,
		buffer:    buffer,
		logger:    logger,
	}
}

// Routes registers the stream endpoint.
func (h *StreamHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.handleStream)
}

// sseSubscriber bridges the hub to one HTTP connection. Send never blocks;
// events beyond the buffer are dropped and reported to the hub.
type sseSubscriber struct {
	id     string
	events chan realtime.Event
}

func (s *sseSubscriber) ID() string { return s.id }

func (s *sseSubscriber) Send(event realtime.Event) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (h *StreamHandlers) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.hub == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "stream hub is not configured", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}

	subscriberID := middleware.GetReqID(ctx)
	if subscriberID == "" {
		subscriberID = fmt.Sprintf("%s-%d", identity.UID, time.Now().UnixNano())
	}
	sub := &sseSubscriber{
		id:     subscriberID,
		events: make(chan realtime.Event, h.buffer),
	}
	if err := h.hub.Register(sub, identity.UID, identity.TenantID); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	defer h.hub.Unregister(subscriberID)

	for _, storeID := range parseFilterValues(r.URL.Query()["store_id"]) {
		if !identity.Can(auth.CapStreamStore) || !identity.MemberOfStore(storeID) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to stream store "+storeID, http.StatusForbidden))
			return
		}
		if err := h.hub.JoinStore(ctx, subscriberID, storeID); err != nil {
			if errors.Is(err, realtime.ErrForbidden) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "store does not belong to your tenant", http.StatusForbidden))
				return
			}
			httpx.WriteError(ctx, w, httpx.NewError("stream_error", "failed to join store room", http.StatusInternalServerError))
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-sub.events:
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Debug("stream write failed",
					zap.String("subscriberId", subscriberID),
					zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		eventType = "message"
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderdeck/api/internal/platform/auth"
	"github.com/orderdeck/api/internal/realtime"
)

type recordingSubscriber struct {
	id string

	mu     sync.Mutex
	events []realtime.Event
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) Send(event realtime.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *recordingSubscriber) received() []realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Event, len(s.events))
	copy(out, s.events)
	return out
}

func managerIdentity() *auth.Identity {
	return &auth.Identity{
		UID:      "mgr-1",
		TenantID: "tenant-1",
		StoreIDs: []string{"store-1"},
		Roles:    []string{auth.RoleManager},
	}
}

func newBroadcastRouter(t *testing.T) (http.Handler, *realtime.Hub) {
	t.Helper()
	hub := newStreamHub(t)
	notifier, err := realtime.NewNotifier(realtime.NotifierDeps{
		Hub:   hub,
		Clock: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	handler := NewBroadcastHandlers(nil, notifier)
	router := chi.NewRouter()
	router.Route("/broadcast", handler.Routes)
	return router, hub
}

func TestBroadcastHandlersDeliverToTenant(t *testing.T) {
	router, hub := newBroadcastRouter(t)

	sub := &recordingSubscriber{id: "sub-1"}
	if err := hub.Register(sub, "staff-1", "tenant-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	body := `{"message": "Closing at 20:00 today", "level": "warning"}`
	req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp broadcastResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", resp.Delivered)
	}

	events := sub.received()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data["message"] != "Closing at 20:00 today" {
		t.Fatalf("unexpected broadcast data: %#v", events[0].Data)
	}
	if events[0].Data["level"] != "warning" {
		t.Fatalf("expected warning level, got %#v", events[0].Data["level"])
	}
}

func TestBroadcastHandlersRequireCapability(t *testing.T) {
	router, _ := newBroadcastRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"message": "hi"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), staffIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestBroadcastHandlersRejectEmptyMessages(t *testing.T) {
	router, _ := newBroadcastRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"message": "<script>alert(1)</script>"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestBroadcastHandlersRejectForeignStores(t *testing.T) {
	router, _ := newBroadcastRouter(t)

	body := `{"message": "hi", "store_ids": ["store-9"]}`
	req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

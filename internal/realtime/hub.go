package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidSubscriber signals a nil subscriber or one without an ID.
	ErrInvalidSubscriber = errors.New("realtime: invalid subscriber")
	// ErrUnknownSubscriber indicates the subscriber was never registered or already left.
	ErrUnknownSubscriber = errors.New("realtime: unknown subscriber")
	// ErrForbidden indicates the subscriber's tenant does not own the requested room.
	ErrForbidden = errors.New("realtime: forbidden")
)

// Room name constructors. Rooms are plain strings so handlers can pass them
// through query parameters without another layer of types.
func TenantRoom(tenantID string) string { return "tenant:" + tenantID }
func StoreRoom(storeID string) string   { return "store:" + storeID }
func UserRoom(userID string) string     { return "user:" + userID }

// Event is the unit of fan-out. Data is already shaped for the audience of
// the room it is published to.
type Event struct {
	Type       string         `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Subscriber receives events for the rooms it joined. Send must not block;
// implementations report false when the event had to be dropped.
type Subscriber interface {
	ID() string
	Send(event Event) bool
}

// StoreDirectory resolves store ownership for join authorization.
type StoreDirectory interface {
	TenantOf(ctx context.Context, storeID string) (string, error)
}

// HubDeps bundles collaborators required to construct a hub.
type HubDeps struct {
	Stores StoreDirectory
	Logger *zap.Logger
}

// Hub routes events to subscribers through named rooms. Membership is held in
// memory only; there is no queue and no replay. A subscriber that reconnects
// re-reads order state through the regular read endpoints.
type Hub struct {
	stores StoreDirectory
	logger *zap.Logger

	mu      sync.RWMutex
	rooms   map[string]map[string]Subscriber
	members map[string]map[string]struct{}
	subs    map[string]subscriberEntry
}

type subscriberEntry struct {
	subscriber Subscriber
	tenantID   string
}

// NewHub constructs an empty hub.
func NewHub(deps HubDeps) (*Hub, error) {
	if deps.Stores == nil {
		return nil, errors.New("realtime hub: store directory is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		stores:  deps.Stores,
		logger:  logger,
		rooms:   make(map[string]map[string]Subscriber),
		members: make(map[string]map[string]struct{}),
		subs:    make(map[string]subscriberEntry),
	}, nil
}

// Register adds the subscriber and auto-joins its user room and its tenant
// room. Registering an already-known ID replaces the previous connection.
func (h *Hub) Register(sub Subscriber, userID, tenantID string) error {
	if sub == nil || strings.TrimSpace(sub.ID()) == "" {
		return ErrInvalidSubscriber
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidSubscriber)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := sub.ID()
	if _, ok := h.subs[id]; ok {
		h.removeLocked(id)
	}

	h.subs[id] = subscriberEntry{subscriber: sub, tenantID: tenantID}
	h.members[id] = make(map[string]struct{})
	if userID = strings.TrimSpace(userID); userID != "" {
		h.joinLocked(id, UserRoom(userID))
	}
	h.joinLocked(id, TenantRoom(tenantID))
	return nil
}

// Unregister removes the subscriber from every room.
func (h *Hub) Unregister(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(subscriberID)
}

// JoinStore adds the subscriber to a store room after verifying the store
// belongs to the subscriber's tenant.
func (h *Hub) JoinStore(ctx context.Context, subscriberID, storeID string) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return fmt.Errorf("%w: store id is required", ErrForbidden)
	}

	h.mu.RLock()
	entry, ok := h.subs[subscriberID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownSubscriber
	}

	owner, err := h.stores.TenantOf(ctx, storeID)
	if err != nil {
		return fmt.Errorf("realtime: resolve store tenant: %w", err)
	}
	if owner != entry.tenantID {
		return fmt.Errorf("%w: store %s", ErrForbidden, storeID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[subscriberID]; !ok {
		return ErrUnknownSubscriber
	}
	h.joinLocked(subscriberID, StoreRoom(storeID))
	return nil
}

// Leave removes the subscriber from a single room. Leaving is always allowed,
// including rooms the subscriber never joined.
func (h *Hub) Leave(subscriberID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(subscriberID, room)
}

// Publish delivers the event to the current members of the room and returns
// the number of subscribers that accepted it. Drops are logged, never retried.
func (h *Hub) Publish(room string, event Event) int {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.Send(event) {
			delivered++
			continue
		}
		h.logger.Warn("realtime event dropped",
			zap.String("room", room),
			zap.String("subscriber", sub.ID()),
			zap.String("type", event.Type),
		)
	}
	return delivered
}

// Rooms returns the rooms the subscriber currently belongs to.
func (h *Hub) Rooms(subscriberID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.members[subscriberID]))
	for room := range h.members[subscriberID] {
		rooms = append(rooms, room)
	}
	return rooms
}

func (h *Hub) joinLocked(subscriberID, room string) {
	entry, ok := h.subs[subscriberID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]Subscriber)
	}
	h.rooms[room][subscriberID] = entry.subscriber
	h.members[subscriberID][room] = struct{}{}
}

func (h *Hub) leaveLocked(subscriberID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.members[subscriberID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) removeLocked(subscriberID string) {
	for room := range h.members[subscriberID] {
		h.leaveLocked(subscriberID, room)
	}
	delete(h.members, subscriberID)
	delete(h.subs, subscriberID)
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnavailable indicates no gateway backend is configured for the request.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
	// ErrInvalidRequest signals missing or inconsistent gateway input.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrIntentNotFound indicates the gateway does not know the referenced intent.
	ErrIntentNotFound = errors.New("payments: intent not found")
)

// Intent statuses normalised across gateway backends.
const (
	IntentStatusPending   = "pending"
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "failed"
	IntentStatusRefunded  = "refunded"
)

// Intent is the gateway-side counterpart of an order payment.
type Intent struct {
	ID           string
	OrderID      string
	Amount       int64
	Currency     string
	Status       string
	ClientSecret string
}

// AuthorizeRequest opens an intent for the order's net amount.
type AuthorizeRequest struct {
	OrderID  string
	Amount   int64
	Currency string
}

// RefundRequest reverses a captured intent, fully when Amount is zero.
type RefundRequest struct {
	IntentID string
	Amount   int64
	Reason   string
}

// Refund reports the gateway outcome of a refund request.
type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Status   string
}

// Provider is the gateway capability surface. Implementations talk to exactly
// one payment service provider.
type Provider interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
	Lookup(ctx context.Context, intentID string) (Intent, error)
}

// Manager selects a backend by name. The first registered provider is the
// default for requests that do not name one.
type Manager struct {
	providers   map[string]Provider
	defaultName string
}

// NewManager registers the given providers.
func NewManager(providers ...Provider) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return nil, errors.New("payments manager: provider with empty name")
		}
		if _, exists := m.providers[name]; exists {
			return nil, fmt.Errorf("payments manager: duplicate provider %q", name)
		}
		m.providers[name] = p
		if m.defaultName == "" {
			m.defaultName = name
		}
	}
	return m, nil
}

// Provider returns the named backend, or the default when name is empty.
func (m *Manager) Provider(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = m.defaultName
	}
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderUnavailable, name)
	}
	return p, nil
}

package firestore

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/orderdeck/api/internal/domain"
	pfirestore "github.com/orderdeck/api/internal/platform/firestore"
)

const storesCollection = "stores"

// StoreRepository resolves store metadata and tenant ownership. Tenant lookups
// are cached for the process lifetime since a store never changes tenants.
type StoreRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Store]

	mu      sync.RWMutex
	tenants map[string]string
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.Store](provider, storesCollection, nil, nil)
	return &StoreRepository{
		provider: provider,
		base:     base,
		tenants:  make(map[string]string),
	}, nil
}

// FindByID fetches a single store.
func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Store{}, errors.New("store repository: store id is required")
	}
	doc, err := r.base.Get(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	store := doc.Data
	store.ID = doc.ID
	r.rememberTenant(store.ID, store.TenantID)
	return store, nil
}

// TenantOf returns the owning tenant for a store without loading the full document
// when the answer is already cached.
func (r *StoreRepository) TenantOf(ctx context.Context, storeID string) (string, error) {
	if r == nil || r.base == nil {
		return "", errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return "", errors.New("store repository: store id is required")
	}

	r.mu.RLock()
	tenantID, ok := r.tenants[storeID]
	r.mu.RUnlock()
	if ok {
		return tenantID, nil
	}

	store, err := r.FindByID(ctx, storeID)
	if err != nil {
		return "", err
	}
	return store.TenantID, nil
}

func (r *StoreRepository) rememberTenant(storeID, tenantID string) {
	if storeID == "" || tenantID == "" {
		return
	}
	r.mu.Lock()
	r.tenants[storeID] = tenantID
	r.mu.Unlock()
}

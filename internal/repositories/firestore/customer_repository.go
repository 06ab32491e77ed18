package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderdeck/api/internal/domain"
	pfirestore "github.com/orderdeck/api/internal/platform/firestore"
)

const (
	customersCollection      = "customers"
	pointLedgerSubcollection = "pointLedger"
)

type pointLedgerDocument struct {
	Points    int64     `firestore:"points"`
	Reason    string    `firestore:"reason"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Balance   int64     `firestore:"balance"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// CustomerRepository stores loyalty members, their balances, and the append-only point ledger.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Customer]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.Customer](provider, customersCollection, nil, nil)
	return &CustomerRepository{provider: provider, base: base}, nil
}

// FindByID fetches a single customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	customer := doc.Data
	customer.ID = doc.ID
	return customer, nil
}

// Upsert writes the customer profile, creating the document on first contact.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	if customer.Tier == "" {
		customer.Tier = domain.TierForSpend(customer.LifetimeSpend)
	}
	customer.UpdatedAt = customer.UpdatedAt.UTC()
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.base.Set(ctx, customerID, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// AddPoints atomically adjusts the point balance and appends a ledger entry.
// Negative adjustments that would take the balance below zero fail with a conflict.
func (r *CustomerRepository) AddPoints(ctx context.Context, customerID string, points int64, reason domain.PointReason, orderID string, now time.Time) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	if points == 0 {
		return r.FindByID(ctx, customerID)
	}
	now = now.UTC()

	var updated domain.Customer

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, customerID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var customer domain.Customer
		if err := snapshot.DataTo(&customer); err != nil {
			return fmt.Errorf("firestore customers decode %s: %w", customerID, err)
		}
		customer.ID = customerID

		balance := customer.Points + points
		if balance < 0 {
			return status.Errorf(codes.FailedPrecondition,
				"customer %s has %d points, cannot deduct %d", customerID, customer.Points, -points)
		}

		customer.Points = balance
		customer.UpdatedAt = now

		if err := tx.Set(ref, customer); err != nil {
			return err
		}

		entry := pointLedgerDocument{
			Points:    points,
			Reason:    string(reason),
			OrderID:   strings.TrimSpace(orderID),
			Balance:   balance,
			CreatedAt: now,
		}
		ledgerRef := ref.Collection(pointLedgerSubcollection).NewDoc()
		if err := tx.Create(ledgerRef, entry); err != nil {
			return err
		}

		updated = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.add_points", err)
	}
	return updated, nil
}

// AddSpend atomically increases lifetime spend and returns the updated customer.
// The loyalty tier is not recomputed here; the service decides when tiers move.
func (r *CustomerRepository) AddSpend(ctx context.Context, customerID string, amount int64, now time.Time) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	if amount < 0 {
		return domain.Customer{}, errors.New("customer repository: spend amount must not be negative")
	}
	now = now.UTC()

	var updated domain.Customer

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, customerID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var customer domain.Customer
		if err := snapshot.DataTo(&customer); err != nil {
			return fmt.Errorf("firestore customers decode %s: %w", customerID, err)
		}
		customer.ID = customerID
		customer.LifetimeSpend += amount
		customer.UpdatedAt = now

		if err := tx.Set(ref, customer); err != nil {
			return err
		}
		updated = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.add_spend", err)
	}
	return updated, nil
}

// SetTier records the customer's loyalty tier.
func (r *CustomerRepository) SetTier(ctx context.Context, customerID string, tier domain.LoyaltyTier, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	updates := []firestore.Update{
		{Path: "tier", Value: string(tier)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	if _, err := r.base.Update(ctx, customerID, updates); err != nil {
		return err
	}
	return nil
}

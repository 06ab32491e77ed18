package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/repositories"
)

// ErrLoyaltyInvalidInput signals the order cannot drive loyalty effects.
var ErrLoyaltyInvalidInput = errors.New("loyalty: invalid input")

const pointsPerSpendUnit = 10

// LoyaltyServiceDeps bundles collaborators required to construct the loyalty service.
type LoyaltyServiceDeps struct {
	Customers repositories.CustomerRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type loyaltyService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewLoyaltyService wires dependencies into a concrete LoyaltyService implementation.
func NewLoyaltyService(deps LoyaltyServiceDeps) (LoyaltyService, error) {
	if deps.Customers == nil {
		return nil, errors.New("loyalty service: customer repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &loyaltyService{
		customers: deps.Customers,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// OnOrderCompleted accrues points, lifetime spend, and tier promotion for the
// ordering customer. Effects are independent and best-effort: each failure is
// logged, none blocks or reverts the completed order. The joined error exists
// for observability and tests only.
func (s *loyaltyService) OnOrderCompleted(ctx context.Context, order Order) error {
	if order.Status != domain.OrderStatusCompleted {
		return fmt.Errorf("%w: order %s is %s, not completed", ErrLoyaltyInvalidInput, order.ID, order.Status)
	}
	customerID := strings.TrimSpace(order.CustomerID)
	if customerID == "" {
		// Guest orders carry no loyalty state.
		return nil
	}

	now := s.clock()
	points := order.NetAmount / pointsPerSpendUnit

	// A plain group: one effect failing must not cancel its siblings.
	var g errgroup.Group

	if points > 0 {
		g.Go(func() error {
			if _, err := s.customers.AddPoints(ctx, customerID, points, domain.PointReasonEarned, order.ID, now); err != nil {
				s.logger(ctx, "loyalty.points.failed", map[string]any{
					"customer_id": customerID,
					"order_id":    order.ID,
					"points":      points,
					"error":       err.Error(),
				})
				return fmt.Errorf("loyalty: add points: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		customer, err := s.customers.AddSpend(ctx, customerID, order.NetAmount, now)
		if err != nil {
			s.logger(ctx, "loyalty.spend.failed", map[string]any{
				"customer_id": customerID,
				"order_id":    order.ID,
				"amount":      order.NetAmount,
				"error":       err.Error(),
			})
			return fmt.Errorf("loyalty: add spend: %w", err)
		}

		tier := domain.TierForSpend(customer.LifetimeSpend)
		if tier == customer.Tier {
			return nil
		}
		if err := s.customers.SetTier(ctx, customerID, tier, now); err != nil {
			s.logger(ctx, "loyalty.tier.failed", map[string]any{
				"customer_id": customerID,
				"tier":        string(tier),
				"error":       err.Error(),
			})
			return fmt.Errorf("loyalty: set tier: %w", err)
		}
		s.logger(ctx, "loyalty.tier.promoted", map[string]any{
			"customer_id": customerID,
			"from":        string(customer.Tier),
			"to":          string(tier),
		})
		return nil
	})

	return g.Wait()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orderdeck/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

const orderNumberDateLayout = "20060102"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	// Stores resolves the store timezone used for the day key. Optional; without
	// it every store runs on UTC days.
	Stores repositories.StoreRepository
	Clock  func() time.Time
}

type counterService struct {
	repo   repositories.CounterRepository
	stores repositories.StoreRepository
	clock  func() time.Time
}

// NewCounterService constructs a service that allocates order numbers on top of the counter repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo:   deps.Repository,
		stores: deps.Stores,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// NextOrderNumber allocates the next sequence for the store's day and formats
// it as "YYYYMMDD-NNNN". The day boundary follows the store's configured
// timezone so late-evening orders roll over when the store does, not at
// midnight UTC. The per-store-day counter document makes the number unique
// under concurrent creation without a count query.
func (s *counterService) NextOrderNumber(ctx context.Context, storeID string, asOf time.Time) (string, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return "", fmt.Errorf("%w: store id is required", ErrCounterInvalidInput)
	}
	if asOf.IsZero() {
		asOf = s.clock()
	}
	day := asOf.In(s.storeLocation(ctx, storeID)).Format(orderNumberDateLayout)
	counterID := "orders:" + storeID + ":" + day

	seq, err := s.repo.Next(ctx, counterID, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return "", fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return "", fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return "", err
	}

	return fmt.Sprintf("%s-%04d", day, seq), nil
}

// storeLocation resolves the store's timezone. Missing stores, empty timezone
// fields, and unknown zone names all fall back to UTC rather than blocking the
// allocation.
func (s *counterService) storeLocation(ctx context.Context, storeID string) *time.Location {
	if s.stores == nil {
		return time.UTC
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return time.UTC
	}
	name := strings.TrimSpace(store.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

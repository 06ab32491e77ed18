package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderdeck/api/internal/domain"
	pfirestore "github.com/orderdeck/api/internal/platform/firestore"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions and their redemption counters.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Coupon]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[domain.Coupon](provider, couponsCollection, nil, nil)
	return &CouponRepository{provider: provider, base: base}, nil
}

// Insert stores a new coupon. The ID must be unique.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	coupon.Code = normaliseCouponCode(coupon.Code)
	docRef, err := r.base.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, coupon); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update replaces the persisted coupon state.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	coupon.Code = normaliseCouponCode(coupon.Code)
	if _, err := r.base.Set(ctx, couponID, coupon); err != nil {
		return err
	}
	return nil
}

// FindByCode resolves a coupon by its store-scoped code.
func (r *CouponRepository) FindByCode(ctx context.Context, storeID, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Coupon{}, errors.New("coupon repository: store id is required")
	}
	code = normaliseCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("storeId", "==", storeID).Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find_by_code",
			status.Errorf(codes.NotFound, "coupon %s not found for store %s", code, storeID))
	}
	return docs[0].Data, nil
}

// Redeem increments the coupon usage counter, honouring the usage limit and
// validity window. The mutation joins the ambient transaction when one is
// running, so the counter moves in lockstep with the order it discounts.
func (r *CouponRepository) Redeem(ctx context.Context, storeID, code string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Coupon{}, errors.New("coupon repository: store id is required")
	}
	code = normaliseCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon code is required")
	}
	now = now.UTC()

	var redeemed domain.Coupon

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		query := client.Collection(couponsCollection).
			Where("storeId", "==", storeID).
			Where("code", "==", code).
			Limit(1)

		iter := tx.Documents(query)
		defer iter.Stop()

		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return status.Errorf(codes.NotFound, "coupon %s not found for store %s", code, storeID)
		}
		if err != nil {
			return err
		}

		var coupon domain.Coupon
		if err := snapshot.DataTo(&coupon); err != nil {
			return fmt.Errorf("firestore coupons decode %s: %w", snapshot.Ref.ID, err)
		}
		coupon.ID = snapshot.Ref.ID

		if !coupon.Active {
			return status.Errorf(codes.FailedPrecondition, "coupon %s is inactive", code)
		}
		if now.Before(coupon.StartsAt) || !now.Before(coupon.EndsAt) {
			return status.Errorf(codes.FailedPrecondition, "coupon %s is outside its validity window", code)
		}
		if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
			return status.Errorf(codes.FailedPrecondition, "coupon %s usage limit reached", code)
		}

		coupon.UsageCount++
		if err := tx.Set(snapshot.Ref, coupon); err != nil {
			return err
		}
		redeemed = coupon
		return nil
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return domain.Coupon{}, pfirestore.WrapError("coupons.redeem", err)
		}
		return redeemed, nil
	}

	err := r.provider.RunTransaction(ctx, apply)
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.redeem", err)
	}
	return redeemed, nil
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

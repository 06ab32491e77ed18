package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderdeck/api/internal/domain"
)

type stubCatalogAccessor struct {
	snapshotsFn func(context.Context, string, []string) (map[string]domain.ProductSnapshot, error)
}

func (s *stubCatalogAccessor) ProductSnapshots(ctx context.Context, storeID string, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	if s.snapshotsFn != nil {
		return s.snapshotsFn(ctx, storeID, productIDs)
	}
	return map[string]domain.ProductSnapshot{}, nil
}

type stubCouponAccessor struct {
	findFn func(context.Context, string, string) (domain.Coupon, error)
}

func (s *stubCouponAccessor) FindByCode(ctx context.Context, storeID, code string) (domain.Coupon, error) {
	if s.findFn != nil {
		return s.findFn(ctx, storeID, code)
	}
	return domain.Coupon{}, errors.New("not implemented")
}

func testCatalog() map[string]domain.ProductSnapshot {
	return map[string]domain.ProductSnapshot{
		"prod-burger": {
			ProductID: "prod-burger",
			Name:      "Burger",
			BasePrice: 800,
			Available: true,
			Variants: []domain.VariantSnapshot{
				{ID: "var-double", Name: "Double", Price: 1100},
			},
			Addons: []domain.AddonSnapshot{
				{ID: "add-cheese", Name: "Cheese", Price: 100, MaxQuantity: 2},
			},
		},
		"prod-fries": {
			ProductID:     "prod-fries",
			Name:          "Fries",
			BasePrice:     300,
			Available:     true,
			TrackStock:    true,
			StockQuantity: 5,
		},
		"prod-retired": {
			ProductID: "prod-retired",
			Name:      "Retired",
			BasePrice: 500,
			Available: false,
		},
	}
}

func newTestPricingEngine(t *testing.T, coupons CouponAccessor, clock func() time.Time) PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{
		Catalog: &stubCatalogAccessor{
			snapshotsFn: func(context.Context, string, []string) (map[string]domain.ProductSnapshot, error) {
				return testCatalog(), nil
			},
		},
		Coupons: coupons,
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

func TestPricingEngineFreezesLinePrices(t *testing.T) {
	engine := newTestPricingEngine(t, nil, nil)

	cheeseQty := 2
	variant := "var-double"
	priced, err := engine.Price(context.Background(), PriceOrderCommand{
		StoreID: "store-1",
		Lines: []OrderDraftLine{
			{
				ProductID: "prod-burger",
				VariantID: &variant,
				Quantity:  2,
				Addons:    []OrderDraftAddon{{AddonID: "add-cheese", Quantity: cheeseQty}},
			},
			{ProductID: "prod-fries", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	if len(priced.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(priced.Items))
	}

	burger := priced.Items[0]
	// Variant price 1100 plus cheese 100 x 2.
	if burger.UnitPrice != 1300 {
		t.Fatalf("expected burger unit price 1300, got %d", burger.UnitPrice)
	}
	if burger.Total != 2600 {
		t.Fatalf("expected burger total 2600, got %d", burger.Total)
	}
	if burger.Name != "Burger (Double)" {
		t.Fatalf("unexpected burger name %q", burger.Name)
	}
	if len(burger.Addons) != 1 || burger.Addons[0].UnitPrice != 100 {
		t.Fatalf("unexpected addons %+v", burger.Addons)
	}

	fries := priced.Items[1]
	if fries.Total != 900 {
		t.Fatalf("expected fries total 900, got %d", fries.Total)
	}

	if priced.GrossAmount != 3500 {
		t.Fatalf("expected gross 3500, got %d", priced.GrossAmount)
	}
	if priced.Discount != 0 || priced.NetAmount != 3500 {
		t.Fatalf("expected no discount, got discount %d net %d", priced.Discount, priced.NetAmount)
	}

	// 10 base + 2x(5 qty - 2 lines) + 3x(1 line with addons).
	if priced.EstimatedMins != 19 {
		t.Fatalf("expected 19 estimated minutes, got %d", priced.EstimatedMins)
	}
}

func TestPricingEngineRejectsInvalidDrafts(t *testing.T) {
	engine := newTestPricingEngine(t, nil, nil)
	badVariant := "var-unknown"

	cases := []struct {
		name    string
		lines   []OrderDraftLine
		wantErr error
	}{
		{
			name:    "unknown product",
			lines:   []OrderDraftLine{{ProductID: "prod-ghost", Quantity: 1}},
			wantErr: ErrProductUnavailable,
		},
		{
			name:    "disabled product",
			lines:   []OrderDraftLine{{ProductID: "prod-retired", Quantity: 1}},
			wantErr: ErrProductUnavailable,
		},
		{
			name:    "unknown variant",
			lines:   []OrderDraftLine{{ProductID: "prod-burger", VariantID: &badVariant, Quantity: 1}},
			wantErr: ErrInvalidVariant,
		},
		{
			name: "unknown addon",
			lines: []OrderDraftLine{{
				ProductID: "prod-burger",
				Quantity:  1,
				Addons:    []OrderDraftAddon{{AddonID: "add-ghost", Quantity: 1}},
			}},
			wantErr: ErrInvalidAddon,
		},
		{
			name: "addon over limit",
			lines: []OrderDraftLine{{
				ProductID: "prod-burger",
				Quantity:  1,
				Addons:    []OrderDraftAddon{{AddonID: "add-cheese", Quantity: 3}},
			}},
			wantErr: ErrAddonLimitExceeded,
		},
		{
			name:    "insufficient stock single line",
			lines:   []OrderDraftLine{{ProductID: "prod-fries", Quantity: 6}},
			wantErr: ErrInsufficientStock,
		},
		{
			name: "insufficient stock across lines",
			lines: []OrderDraftLine{
				{ProductID: "prod-fries", Quantity: 3},
				{ProductID: "prod-fries", Quantity: 3},
			},
			wantErr: ErrInsufficientStock,
		},
		{
			name:    "zero quantity",
			lines:   []OrderDraftLine{{ProductID: "prod-fries", Quantity: 0}},
			wantErr: ErrPricingInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Price(context.Background(), PriceOrderCommand{StoreID: "store-1", Lines: tc.lines})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPricingEngineAppliesCoupons(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	window := func(c domain.Coupon) domain.Coupon {
		c.StartsAt = now.Add(-time.Hour)
		c.EndsAt = now.Add(time.Hour)
		c.Active = true
		return c
	}

	limit := int64(10)
	maxDiscount := int64(200)
	minAmount := int64(5000)

	cases := []struct {
		name         string
		coupon       domain.Coupon
		wantDiscount int64
		wantErr      error
	}{
		{
			name:         "percentage",
			coupon:       window(domain.Coupon{ID: "c1", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10}),
			wantDiscount: 350,
		},
		{
			name:         "percentage capped at max discount",
			coupon:       window(domain.Coupon{ID: "c2", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, MaxDiscount: &maxDiscount}),
			wantDiscount: 200,
		},
		{
			name:         "fixed amount",
			coupon:       window(domain.Coupon{ID: "c3", Code: "SAVE10", Type: domain.CouponTypeFixedAmount, Value: 500}),
			wantDiscount: 500,
		},
		{
			name:         "fixed amount clamped at gross",
			coupon:       window(domain.Coupon{ID: "c4", Code: "SAVE10", Type: domain.CouponTypeFixedAmount, Value: 99999}),
			wantDiscount: 3500,
		},
		{
			name:         "free shipping discounts nothing",
			coupon:       window(domain.Coupon{ID: "c5", Code: "SAVE10", Type: domain.CouponTypeFreeShipping, Value: 0}),
			wantDiscount: 0,
		},
		{
			name:    "inactive",
			coupon:  domain.Coupon{ID: "c6", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
			wantErr: ErrCouponInvalid,
		},
		{
			name:    "expired",
			coupon:  domain.Coupon{ID: "c7", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, Active: true, StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour)},
			wantErr: ErrCouponExpired,
		},
		{
			name: "usage limit reached",
			coupon: window(domain.Coupon{
				ID: "c8", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10,
				UsageLimit: &limit, UsageCount: 10,
			}),
			wantErr: ErrCouponLimitReached,
		},
		{
			name:    "minimum not met",
			coupon:  window(domain.Coupon{ID: "c9", Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, MinAmount: &minAmount}),
			wantErr: ErrCouponMinimumNotMet,
		},
	}

	variant := "var-double"
	lines := []OrderDraftLine{
		{ProductID: "prod-burger", VariantID: &variant, Quantity: 2, Addons: []OrderDraftAddon{{AddonID: "add-cheese", Quantity: 2}}},
		{ProductID: "prod-fries", Quantity: 3},
	}
	code := "save10"

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupons := &stubCouponAccessor{
				findFn: func(_ context.Context, storeID, lookup string) (domain.Coupon, error) {
					if storeID != "store-1" {
						t.Fatalf("unexpected store id %s", storeID)
					}
					if lookup != "SAVE10" {
						t.Fatalf("expected upper-cased code, got %s", lookup)
					}
					return tc.coupon, nil
				},
			}
			engine := newTestPricingEngine(t, coupons, func() time.Time { return now })

			priced, err := engine.Price(context.Background(), PriceOrderCommand{
				StoreID:    "store-1",
				Lines:      lines,
				CouponCode: &code,
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("price: %v", err)
			}
			if priced.Discount != tc.wantDiscount {
				t.Fatalf("expected discount %d, got %d", tc.wantDiscount, priced.Discount)
			}
			if priced.NetAmount != priced.GrossAmount-tc.wantDiscount {
				t.Fatalf("net %d does not equal gross %d minus discount %d", priced.NetAmount, priced.GrossAmount, tc.wantDiscount)
			}
			if priced.Coupon == nil || priced.Coupon.ID != tc.coupon.ID {
				t.Fatalf("expected validated coupon %s returned, got %+v", tc.coupon.ID, priced.Coupon)
			}
		})
	}
}

func TestPricingEngineMapsDeadlineToValidationTimeout(t *testing.T) {
	engine, err := NewPricingEngine(PricingEngineDeps{
		Catalog: &stubCatalogAccessor{
			snapshotsFn: func(context.Context, string, []string) (map[string]domain.ProductSnapshot, error) {
				return nil, context.DeadlineExceeded
			},
		},
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	_, err = engine.Price(context.Background(), PriceOrderCommand{
		StoreID: "store-1",
		Lines:   []OrderDraftLine{{ProductID: "prod-fries", Quantity: 1}},
	})
	if !errors.Is(err, ErrValidationTimeout) {
		t.Fatalf("expected validation timeout, got %v", err)
	}
}

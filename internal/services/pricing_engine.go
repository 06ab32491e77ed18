package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing lines or non-positive quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrProductUnavailable indicates a product is unknown or disabled for sale.
	ErrProductUnavailable = errors.New("pricing: product unavailable")
	// ErrInvalidVariant indicates the requested variant does not belong to the product.
	ErrInvalidVariant = errors.New("pricing: invalid variant")
	// ErrInvalidAddon indicates the requested add-on does not belong to the product.
	ErrInvalidAddon = errors.New("pricing: invalid addon")
	// ErrAddonLimitExceeded indicates an add-on quantity above its per-line ceiling.
	ErrAddonLimitExceeded = errors.New("pricing: addon limit exceeded")
	// ErrInsufficientStock indicates tracked stock cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("pricing: insufficient stock")
	// ErrCouponInvalid indicates the coupon does not exist or is inactive.
	ErrCouponInvalid = errors.New("pricing: coupon invalid")
	// ErrCouponExpired indicates the coupon is outside its validity window.
	ErrCouponExpired = errors.New("pricing: coupon expired")
	// ErrCouponLimitReached indicates the coupon usage limit is exhausted.
	ErrCouponLimitReached = errors.New("pricing: coupon limit reached")
	// ErrCouponMinimumNotMet indicates the order total is below the coupon minimum.
	ErrCouponMinimumNotMet = errors.New("pricing: coupon minimum not met")
	// ErrValidationTimeout indicates catalog or coupon lookups exceeded their deadline.
	ErrValidationTimeout = errors.New("pricing: validation timeout")
)

const (
	prepBaseMinutes     = 10
	prepPerExtraItem    = 2
	prepPerAddonLine    = 3
	percentageDivisor   = 100
	maxCouponCodeLength = 64
)

// CouponAccessor resolves a coupon definition by its store-scoped code.
type CouponAccessor interface {
	FindByCode(ctx context.Context, storeID, code string) (domain.Coupon, error)
}

// PricingEngineDeps bundles collaborators required to construct the pricing engine.
type PricingEngineDeps struct {
	Catalog CatalogSnapshotAccessor
	Coupons CouponAccessor
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	catalog CatalogSnapshotAccessor
	coupons CouponAccessor
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPricingEngine wires dependencies into a concrete PricingEngine implementation.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog accessor is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingEngine{
		catalog: deps.Catalog,
		coupons: deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (e *pricingEngine) Price(ctx context.Context, cmd PriceOrderCommand) (PricedOrder, error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return PricedOrder{}, fmt.Errorf("%w: store id is required", ErrPricingInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return PricedOrder{}, fmt.Errorf("%w: order must contain at least one line", ErrPricingInvalidInput)
	}
	for idx, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return PricedOrder{}, fmt.Errorf("%w: line %d product id is required", ErrPricingInvalidInput, idx)
		}
		if line.Quantity <= 0 {
			return PricedOrder{}, fmt.Errorf("%w: line %d quantity must be positive", ErrPricingInvalidInput, idx)
		}
		for _, addon := range line.Addons {
			if strings.TrimSpace(addon.AddonID) == "" {
				return PricedOrder{}, fmt.Errorf("%w: line %d addon id is required", ErrPricingInvalidInput, idx)
			}
			if addon.Quantity <= 0 {
				return PricedOrder{}, fmt.Errorf("%w: line %d addon quantity must be positive", ErrPricingInvalidInput, idx)
			}
		}
	}

	productIDs := make([]string, 0, len(cmd.Lines))
	seen := make(map[string]struct{}, len(cmd.Lines))
	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if _, ok := seen[productID]; ok {
			continue
		}
		seen[productID] = struct{}{}
		productIDs = append(productIDs, productID)
	}

	snapshots, err := e.catalog.ProductSnapshots(ctx, storeID, productIDs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return PricedOrder{}, fmt.Errorf("%w: catalog lookup: %v", ErrValidationTimeout, err)
		}
		return PricedOrder{}, fmt.Errorf("pricing: catalog lookup: %w", err)
	}

	requestedQty := make(map[string]int64, len(productIDs))
	items := make([]OrderItem, 0, len(cmd.Lines))
	var gross int64
	var totalQty int
	var addonLines int

	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := snapshots[productID]
		if !ok || !product.Available {
			return PricedOrder{}, fmt.Errorf("%w: product %s", ErrProductUnavailable, productID)
		}

		unitPrice := product.BasePrice
		name := product.Name
		var variantID *string
		if line.VariantID != nil && strings.TrimSpace(*line.VariantID) != "" {
			trimmed := strings.TrimSpace(*line.VariantID)
			variant, found := findVariant(product.Variants, trimmed)
			if !found {
				return PricedOrder{}, fmt.Errorf("%w: variant %s on product %s", ErrInvalidVariant, trimmed, productID)
			}
			unitPrice = variant.Price
			name = fmt.Sprintf("%s (%s)", product.Name, variant.Name)
			variantID = &trimmed
		}

		addons := make([]OrderItemAddon, 0, len(line.Addons))
		for _, requested := range line.Addons {
			addonID := strings.TrimSpace(requested.AddonID)
			addon, found := findAddon(product.Addons, addonID)
			if !found {
				return PricedOrder{}, fmt.Errorf("%w: addon %s on product %s", ErrInvalidAddon, addonID, productID)
			}
			if addon.MaxQuantity > 0 && requested.Quantity > addon.MaxQuantity {
				return PricedOrder{}, fmt.Errorf("%w: addon %s allows at most %d", ErrAddonLimitExceeded, addonID, addon.MaxQuantity)
			}
			unitPrice += addon.Price * int64(requested.Quantity)
			addons = append(addons, OrderItemAddon{
				AddonID:   addonID,
				Name:      addon.Name,
				UnitPrice: addon.Price,
				Quantity:  requested.Quantity,
			})
		}
		if len(addons) == 0 {
			addons = nil
		} else {
			addonLines++
		}

		requestedQty[productID] += int64(line.Quantity)
		if product.TrackStock && requestedQty[productID] > product.StockQuantity {
			return PricedOrder{}, fmt.Errorf("%w: product %s has %d in stock", ErrInsufficientStock, productID, product.StockQuantity)
		}

		total := unitPrice * int64(line.Quantity)
		gross += total
		totalQty += line.Quantity

		items = append(items, OrderItem{
			ProductID: productID,
			VariantID: variantID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  line.Quantity,
			Total:     total,
			Addons:    addons,
		})
	}

	result := PricedOrder{
		Items:         items,
		GrossAmount:   gross,
		NetAmount:     gross,
		EstimatedMins: estimatePrepMinutes(totalQty, len(items), addonLines),
	}

	if cmd.CouponCode != nil && strings.TrimSpace(*cmd.CouponCode) != "" {
		coupon, discount, err := e.applyCoupon(ctx, storeID, *cmd.CouponCode, gross)
		if err != nil {
			return PricedOrder{}, err
		}
		result.Coupon = &coupon
		result.Discount = discount
		result.NetAmount = gross - discount
		if result.NetAmount < 0 {
			result.NetAmount = 0
		}
	}

	return result, nil
}

func (e *pricingEngine) applyCoupon(ctx context.Context, storeID, code string, gross int64) (domain.Coupon, int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) > maxCouponCodeLength {
		return domain.Coupon{}, 0, fmt.Errorf("%w: code too long", ErrCouponInvalid)
	}
	if e.coupons == nil {
		return domain.Coupon{}, 0, fmt.Errorf("%w: coupon accessor not configured", ErrCouponInvalid)
	}

	coupon, err := e.coupons.FindByCode(ctx, storeID, code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Coupon{}, 0, fmt.Errorf("%w: coupon lookup: %v", ErrValidationTimeout, err)
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Coupon{}, 0, fmt.Errorf("%w: code %s", ErrCouponInvalid, code)
		}
		return domain.Coupon{}, 0, fmt.Errorf("pricing: coupon lookup: %w", err)
	}

	now := e.clock()
	if !coupon.Active {
		return domain.Coupon{}, 0, fmt.Errorf("%w: code %s is inactive", ErrCouponInvalid, code)
	}
	if now.Before(coupon.StartsAt) || !now.Before(coupon.EndsAt) {
		return domain.Coupon{}, 0, fmt.Errorf("%w: code %s", ErrCouponExpired, code)
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return domain.Coupon{}, 0, fmt.Errorf("%w: code %s", ErrCouponLimitReached, code)
	}
	if coupon.MinAmount != nil && gross < *coupon.MinAmount {
		return domain.Coupon{}, 0, fmt.Errorf("%w: code %s requires at least %d", ErrCouponMinimumNotMet, code, *coupon.MinAmount)
	}

	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = gross * coupon.Value / percentageDivisor
	case domain.CouponTypeFixedAmount:
		discount = coupon.Value
	case domain.CouponTypeFreeShipping:
		discount = 0
	default:
		return domain.Coupon{}, 0, fmt.Errorf("%w: code %s has unknown type %q", ErrCouponInvalid, code, coupon.Type)
	}

	if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
		discount = *coupon.MaxDiscount
	}
	if discount > gross {
		e.logger(ctx, "pricing.discount.clamped", map[string]any{
			"code":     code,
			"gross":    gross,
			"discount": discount,
		})
		discount = gross
	}
	if discount < 0 {
		discount = 0
	}

	return coupon, discount, nil
}

// estimatePrepMinutes is a kitchen heuristic: a flat base, extra time for each
// item beyond the first of every line, and extra time for lines that carry add-ons.
func estimatePrepMinutes(totalQty, lines, addonLines int) int {
	return prepBaseMinutes + prepPerExtraItem*(totalQty-lines) + prepPerAddonLine*addonLines
}

func findVariant(variants []VariantSnapshot, id string) (VariantSnapshot, bool) {
	for _, variant := range variants {
		if variant.ID == id {
			return variant, true
		}
	}
	return VariantSnapshot{}, false
}

func findAddon(addons []AddonSnapshot, id string) (AddonSnapshot, bool) {
	for _, addon := range addons {
		if addon.ID == id {
			return addon, true
		}
	}
	return AddonSnapshot{}, false
}

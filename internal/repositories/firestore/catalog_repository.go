package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderdeck/api/internal/domain"
	pfirestore "github.com/orderdeck/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	StoreID       string                   `firestore:"storeId"`
	ProductID     string                   `firestore:"productId"`
	Name          string                   `firestore:"name"`
	BasePrice     int64                    `firestore:"basePrice"`
	Available     bool                     `firestore:"available"`
	TrackStock    bool                     `firestore:"trackStock"`
	StockQuantity int64                    `firestore:"stockQuantity"`
	Variants      []domain.VariantSnapshot `firestore:"variants,omitempty"`
	Addons        []domain.AddonSnapshot   `firestore:"addons,omitempty"`
}

// CatalogRepository reads product pricing snapshots and adjusts tracked stock.
// Product documents are keyed by store and product ID so stock mutations stay
// single-document transactions.
type CatalogRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &CatalogRepository{provider: provider, base: base}, nil
}

// ProductSnapshots loads current pricing and availability for the requested products.
// Unknown product IDs are simply absent from the result map.
func (r *CatalogRepository) ProductSnapshots(ctx context.Context, storeID string, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, errors.New("catalog repository: store id is required")
	}
	if len(productIDs) == 0 {
		return map[string]domain.ProductSnapshot{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, productID := range productIDs {
		productID = strings.TrimSpace(productID)
		if productID == "" {
			continue
		}
		refs = append(refs, client.Collection(productsCollection).Doc(productDocID(storeID, productID)))
	}
	if len(refs) == 0 {
		return map[string]domain.ProductSnapshot{}, nil
	}

	var snapshots []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snapshots, err = tx.GetAll(refs)
	} else {
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("products.snapshots", err)
	}

	result := make(map[string]domain.ProductSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore products decode %s: %w", snapshot.Ref.ID, err)
		}
		result[doc.ProductID] = decodeProductDocument(doc)
	}
	return result, nil
}

// DecrementStock reduces tracked stock for a product, failing with a conflict
// when the remaining quantity is insufficient. Products without stock tracking
// are left untouched. The write joins the ambient transaction when one is running.
func (r *CatalogRepository) DecrementStock(ctx context.Context, storeID, productID string, quantity int64) error {
	if r == nil || r.base == nil {
		return errors.New("catalog repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	productID = strings.TrimSpace(productID)
	if storeID == "" || productID == "" {
		return errors.New("catalog repository: store id and product id are required")
	}
	if quantity <= 0 {
		return errors.New("catalog repository: quantity must be positive")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productDocID(storeID, productID))
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", snapshot.Ref.ID, err)
		}
		if !doc.TrackStock {
			return nil
		}
		if doc.StockQuantity < quantity {
			return status.Errorf(codes.FailedPrecondition,
				"product %s has %d in stock, requested %d", productID, doc.StockQuantity, quantity)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "stockQuantity", Value: doc.StockQuantity - quantity},
		})
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return pfirestore.WrapError("products.decrement_stock", err)
		}
		return nil
	}

	err := r.provider.RunTransaction(ctx, apply)
	if err != nil {
		return pfirestore.WrapError("products.decrement_stock", err)
	}
	return nil
}

// IncrementStock returns previously decremented stock to a product, e.g. when
// a cancelled order releases its lines. Products without stock tracking are
// left untouched. The write joins the ambient transaction when one is running.
func (r *CatalogRepository) IncrementStock(ctx context.Context, storeID, productID string, quantity int64) error {
	if r == nil || r.base == nil {
		return errors.New("catalog repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	productID = strings.TrimSpace(productID)
	if storeID == "" || productID == "" {
		return errors.New("catalog repository: store id and product id are required")
	}
	if quantity <= 0 {
		return errors.New("catalog repository: quantity must be positive")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productDocID(storeID, productID))
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", snapshot.Ref.ID, err)
		}
		if !doc.TrackStock {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "stockQuantity", Value: doc.StockQuantity + quantity},
		})
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return pfirestore.WrapError("products.increment_stock", err)
		}
		return nil
	}

	err := r.provider.RunTransaction(ctx, apply)
	if err != nil {
		return pfirestore.WrapError("products.increment_stock", err)
	}
	return nil
}

func productDocID(storeID, productID string) string {
	return storeID + "__" + productID
}

func decodeProductDocument(doc productDocument) domain.ProductSnapshot {
	return domain.ProductSnapshot{
		ProductID:     doc.ProductID,
		Name:          doc.Name,
		BasePrice:     doc.BasePrice,
		Available:     doc.Available,
		TrackStock:    doc.TrackStock,
		StockQuantity: doc.StockQuantity,
		Variants:      doc.Variants,
		Addons:        doc.Addons,
	}
}

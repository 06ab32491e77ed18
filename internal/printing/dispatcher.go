package printing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/orderdeck/api/internal/domain"
	"github.com/orderdeck/api/internal/services"
)

// StoreDirectory resolves the store's name and printer configuration.
type StoreDirectory interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
}

// PrintJob is the message handed to downstream print workers.
type PrintJob struct {
	OrderID     string `json:"orderId"`
	StoreID     string `json:"storeId"`
	PrinterKind string `json:"printerKind"`
	ArchiveURI  string `json:"archiveUri,omitempty"`
	Copies      int    `json:"copies"`
}

// PrintJobPublisher hands finished jobs to the worker queue.
type PrintJobPublisher interface {
	PublishPrintJob(ctx context.Context, job PrintJob) error
}

// DispatcherDeps bundles collaborators required to construct the dispatcher.
type DispatcherDeps struct {
	Stores    StoreDirectory
	Renderers []Renderer
	Archive   TicketArchive
	Jobs      PrintJobPublisher
	Copies    int
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Dispatcher renders, archives, and hands off receipt tickets. Every step is
// best-effort: a failure is logged and the remaining steps still run where
// they can. It implements services.ReceiptDispatcher.
type Dispatcher struct {
	stores    StoreDirectory
	renderers map[string]Renderer
	fallback  Renderer
	archive   TicketArchive
	jobs      PrintJobPublisher
	copies    int
	clock     func() time.Time
	logger    *zap.Logger
}

var _ services.ReceiptDispatcher = (*Dispatcher)(nil)

// NewDispatcher indexes renderers by kind; the first renderer is the fallback
// for stores without a configured printer kind.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Stores == nil {
		return nil, errors.New("print dispatcher: store directory is required")
	}
	if len(deps.Renderers) == 0 {
		return nil, errors.New("print dispatcher: at least one renderer is required")
	}

	renderers := make(map[string]Renderer, len(deps.Renderers))
	for _, renderer := range deps.Renderers {
		kind := strings.ToLower(strings.TrimSpace(renderer.Kind()))
		if kind == "" {
			return nil, errors.New("print dispatcher: renderer with empty kind")
		}
		if _, exists := renderers[kind]; exists {
			return nil, fmt.Errorf("print dispatcher: duplicate renderer %q", kind)
		}
		renderers[kind] = renderer
	}

	copies := deps.Copies
	if copies <= 0 {
		copies = 1
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		stores:    deps.Stores,
		renderers: renderers,
		fallback:  deps.Renderers[0],
		archive:   deps.Archive,
		jobs:      deps.Jobs,
		copies:    copies,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// DispatchReceipt renders the ticket for the order's store and pushes it to
// the archive and the worker queue. It never returns an error; the order flow
// must not observe printing failures.
func (d *Dispatcher) DispatchReceipt(ctx context.Context, order services.Order) {
	store, err := d.stores.FindByID(ctx, order.StoreID)
	if err != nil {
		d.logger.Warn("receipt dispatch store lookup failed",
			zap.String("order_id", order.ID),
			zap.String("store_id", order.StoreID),
			zap.Error(err),
		)
		return
	}

	renderer := d.rendererFor(store.PrinterKind)
	ticket, err := renderer.Render(Job{
		Order:     order,
		StoreName: store.Name,
		Copies:    d.copies,
		PrintedAt: d.clock(),
	})
	if err != nil {
		d.logger.Warn("receipt render failed",
			zap.String("order_id", order.ID),
			zap.String("renderer", renderer.Kind()),
			zap.Error(err),
		)
		return
	}

	archiveURI := ""
	if d.archive != nil {
		objectName := receiptObjectName(order, d.clock())
		archiveURI, err = d.archive.Store(ctx, objectName, ticket)
		if err != nil {
			d.logger.Warn("receipt archive failed",
				zap.String("order_id", order.ID),
				zap.String("object", objectName),
				zap.Error(err),
			)
			archiveURI = ""
		}
	}

	if d.jobs != nil {
		job := PrintJob{
			OrderID:     order.ID,
			StoreID:     order.StoreID,
			PrinterKind: renderer.Kind(),
			ArchiveURI:  archiveURI,
			Copies:      d.copies,
		}
		if err := d.jobs.PublishPrintJob(ctx, job); err != nil {
			d.logger.Warn("print job publish failed",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) rendererFor(kind string) Renderer {
	if renderer, ok := d.renderers[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return renderer
	}
	return d.fallback
}

func receiptObjectName(order services.Order, now time.Time) string {
	return fmt.Sprintf("receipts/%s/%s/%s.txt", order.StoreID, now.Format("2006/01/02"), order.ID)
}

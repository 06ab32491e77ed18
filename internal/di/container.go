package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orderdeck/api/internal/platform/config"
	"github.com/orderdeck/api/internal/printing"
	"github.com/orderdeck/api/internal/realtime"
	"github.com/orderdeck/api/internal/repositories"
	"github.com/orderdeck/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing  services.PricingEngine
	Counters services.CounterService
	Loyalty  services.LoyaltyService
	Orders   services.OrderService
	System   services.SystemService
}

// ContainerDeps carries externally constructed infrastructure into the wiring.
// Events, PrintJobs, and Archive are optional; the order flow degrades to
// in-process notification only when they are absent.
type ContainerDeps struct {
	Config       config.Config
	Repositories repositories.Registry
	Events       services.OrderEventPublisher
	PrintJobs    printing.PrintJobPublisher
	Archive      printing.TicketArchive
	Build        services.BuildInfo
	Logger       *zap.Logger
}

// Container wires repositories, services, and real-time infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Hub          *realtime.Hub
	Notifier     *realtime.Notifier
	Printing     *printing.Dispatcher
}

// NewContainer constructs the runtime dependencies. Production wiring provides the real
// registry and publishers, while tests can supply in-memory implementations.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	reg := deps.Repositories
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	svc := Services{}

	pricingLogger := serviceLogger(logger.Named("pricing"))
	var couponAccessor services.CouponAccessor
	if cfg.Features.EnableCoupons {
		couponAccessor = reg.Coupons()
	}
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Catalog: reg.Catalog(),
		Coupons: couponAccessor,
		Clock:   time.Now,
		Logger:  pricingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Stores:     reg.Stores(),
		Clock:      time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	if cfg.Features.EnableLoyalty {
		loyalty, err := services.NewLoyaltyService(services.LoyaltyServiceDeps{
			Customers: reg.Customers(),
			Clock:     time.Now,
			Logger:    serviceLogger(logger.Named("loyalty")),
		})
		if err != nil {
			return nil, fmt.Errorf("build loyalty service: %w", err)
		}
		svc.Loyalty = loyalty
	}

	hub, err := realtime.NewHub(realtime.HubDeps{
		Stores: reg.Stores(),
		Logger: logger.Named("realtime"),
	})
	if err != nil {
		return nil, fmt.Errorf("build realtime hub: %w", err)
	}

	notifier, err := realtime.NewNotifier(realtime.NotifierDeps{
		Hub:       hub,
		Customers: reg.Customers(),
		Clock:     time.Now,
		Logger:    logger.Named("realtime"),
	})
	if err != nil {
		return nil, fmt.Errorf("build realtime notifier: %w", err)
	}

	var dispatcher *printing.Dispatcher
	if cfg.Printing.Enabled {
		dispatcher, err = printing.NewDispatcher(printing.DispatcherDeps{
			Stores: reg.Stores(),
			Renderers: []printing.Renderer{
				printing.NewEpsonRenderer(0),
				printing.NewStarRenderer(0),
			},
			Archive: deps.Archive,
			Jobs:    deps.PrintJobs,
			Copies:  cfg.Printing.DefaultCopies,
			Clock:   time.Now,
			Logger:  logger.Named("printing"),
		})
		if err != nil {
			return nil, fmt.Errorf("build receipt dispatcher: %w", err)
		}
	}

	var orderCoupons repositories.CouponRepository
	if cfg.Features.EnableCoupons {
		orderCoupons = reg.Coupons()
	}
	orderDeps := services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Coupons:    orderCoupons,
		Catalog:    reg.Catalog(),
		Stores:     reg.Stores(),
		Pricing:    svc.Pricing,
		Counters:   svc.Counters,
		Loyalty:    svc.Loyalty,
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.Events,
		Notifier:   notifier,
		Logger:     serviceLogger(logger.Named("orders")),
	}
	if dispatcher != nil {
		orderDeps.Printing = dispatcher
	}
	orders, err := services.NewOrderService(orderDeps)
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	build := deps.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Hub:          hub,
		Notifier:     notifier,
		Printing:     dispatcher,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

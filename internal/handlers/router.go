package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderdeck/api/internal/platform/httpx"
)

// RouteRegistrar attaches a handler group to a router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath           string
	middlewares        []func(http.Handler) http.Handler
	webhookMiddlewares []func(http.Handler) http.Handler
	health             *HealthHandlers
	orders             RouteRegistrar
	stream             RouteRegistrar
	broadcast          RouteRegistrar
	webhooks           RouteRegistrar
}

// Option customises router construction.
type Option func(*routerConfig)

// WithBasePath overrides the versioned API prefix.
func WithBasePath(basePath string) Option {
	return func(cfg *routerConfig) {
		if basePath != "" {
			cfg.basePath = basePath
		}
	}
}

// WithMiddlewares appends middlewares applied to every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithWebhookMiddlewares appends middlewares applied only to webhook routes.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

// WithHealthHandlers registers the liveness and readiness probes.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes registers the order lifecycle endpoints.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = registrar
	}
}

// WithStreamRoutes registers the server-sent events endpoint.
func WithStreamRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.stream = registrar
	}
}

// WithBroadcastRoutes registers the operator broadcast endpoint.
func WithBroadcastRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.broadcast = registrar
	}
}

// WithWebhookRoutes registers the payment gateway callback endpoints.
func WithWebhookRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = registrar
	}
}

// NewRouter assembles the HTTP surface: health probes at the root and the
// API groups under the versioned prefix.
func NewRouter(opts ...Option) http.Handler {
	cfg := &routerConfig{
		basePath: "/api/v1",
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(60 * time.Second),
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(cfg.middlewares...)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})

	if cfg.health != nil {
		r.Get("/healthz", cfg.health.Healthz)
		r.Get("/readyz", cfg.health.Readyz)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount(api, "/orders", cfg.orders, nil)
		mount(api, "/stream", cfg.stream, nil)
		mount(api, "/broadcast", cfg.broadcast, nil)
		mount(api, "/webhooks", cfg.webhooks, cfg.webhookMiddlewares)
	})

	return r
}

func mount(api chi.Router, pattern string, registrar RouteRegistrar, mw []func(http.Handler) http.Handler) {
	if registrar == nil {
		return
	}
	api.Route(pattern, func(group chi.Router) {
		if len(mw) > 0 {
			group.Use(mw...)
		}
		registrar(group)
	})
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/metrics"
)

type RouterConfig struct {
	Handlers    *Handlers
	JWTService  *auth.JWTService
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.Instrument(cfg.Metrics))
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(cfg.JWTService))

		// Catalog
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Get("/{categoryID}", h.GetCategory)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Post("/", h.CreateCategory)
				r.Put("/{categoryID}", h.UpdateCategory)
				r.Delete("/{categoryID}", h.DeleteCategory)
			})
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{productID}", h.GetProduct)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Post("/", h.CreateProduct)
				r.Put("/{productID}", h.UpdateProduct)
				r.Delete("/{productID}", h.DeleteProduct)
			})
		})

		// Cart: authenticated users or anonymous sessions
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/", h.AddToCart)
			r.With(callerRequired).Post("/merge", h.MergeCart)
			r.Put("/{itemID}", h.UpdateCartItem)
			r.Delete("/{itemID}", h.RemoveFromCart)
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Use(callerRequired)
			if cfg.RateLimiter != nil {
				r.With(cfg.RateLimiter.Middleware).Post("/", h.PlaceOrder)
			} else {
				r.Post("/", h.PlaceOrder)
			}
			r.Get("/", h.GetOrders)
			r.Get("/{orderID}", h.GetOrder)
		})

		// Admin
		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/", h.GetAllOrders)
			r.Get("/{orderID}", h.GetAnyOrder)
			r.Put("/{orderID}", h.ReplaceOrder)
			r.Patch("/{orderID}", h.PatchOrder)
			r.Delete("/{orderID}", h.CancelOrder)
		})
	})

	return r
}

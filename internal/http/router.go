package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Auth               AuthConfig
}

type CartAPI interface {
	CartService
	CartMerger
}

type OrderAPI interface {
	OrderService
	OrderMaterializer
}

type Services struct {
	Menu     MenuReader
	Carts    CartAPI
	Checkout CheckoutService
	Orders   OrderAPI
	DB       Pinger
}

func NewRouter(cfg RouterConfig, svc Services, log *zap.SugaredLogger) http.Handler {
	menuHandler := NewMenuHandler(svc.Menu, cfg.RequestTimeout, log)
	cartHandler := NewCartHandler(svc.Carts, cfg.RequestTimeout, log)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, svc.Orders, cfg.RequestTimeout, log)
	ordersHandler := NewOrdersHandler(svc.Orders, cfg.RequestTimeout, log)
	identity := NewIdentityMiddleware(cfg.Auth, svc.Carts, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(LimitBody(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := svc.DB.Ping(ctx); err != nil {
			log.Warnw("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/menu", func(r chi.Router) {
			r.Get("/categories", menuHandler.ListCategories)
			r.Get("/items", menuHandler.ListItems)
			r.Get("/items/{id}", menuHandler.GetItem)
		})

		r.Group(func(r chi.Router) {
			r.Use(identity.Handler)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{item_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{item_id}", cartHandler.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/session", checkoutHandler.GetSession)
				r.Post("/session", checkoutHandler.SaveSession)
				r.Post("/orders", checkoutHandler.PlaceOrder)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/{order_id}", ordersHandler.GetOrder)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(RoleStaff))
					r.Get("/", ordersHandler.ListOrders)
					r.Post("/{order_id}/status", ordersHandler.UpdateStatus)
					r.Get("/{order_id}/history", ordersHandler.History)
				})
			})
		})
	})

	return otelhttp.NewHandler(r, "restaurant-api")
}

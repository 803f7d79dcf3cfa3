package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type Config struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	// CheckoutRate bounds checkout attempts per client IP.
	CheckoutRate  rate.Limit
	CheckoutBurst int
}

type Services struct {
	Cart     CartService
	Checkout CheckoutService
	Orders   OrderService
	Catalog  CatalogService
}

func NewRouter(cfg Config, s Services) http.Handler {
	cartHandler := NewCartHandler(s.Cart)
	checkoutHandler := NewCheckoutHandler(s.Checkout)
	ordersHandler := NewOrdersHandler(s.Orders)
	articlesHandler := NewArticlesHandler(s.Catalog)
	checkoutLimiter := newIPLimiter(cfg.CheckoutRate, cfg.CheckoutBurst)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles", articlesHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(Auth(cfg.JWTSecret))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Get("/summary", cartHandler.GetSummary)
				r.Post("/items", cartHandler.AddItem)
				r.Patch("/items/{itemID}", cartHandler.UpdateItem)
				r.Delete("/items/{itemID}", cartHandler.RemoveItem)
				r.Post("/refresh-prices", cartHandler.RefreshPrices)
			})

			r.With(checkoutLimiter.Middleware).Post("/checkout", checkoutHandler.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordersHandler.List)
				r.Get("/{orderID}", ordersHandler.Get)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Put("/articles/{articleID}/price", articlesHandler.UpdatePrice)
				r.Put("/orders/{orderID}/status", ordersHandler.UpdateStatus)
			})
		})
	})

	return otelhttp.NewHandler(r, "http.server")
}

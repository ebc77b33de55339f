package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart          *CartHandler
	Products      *ProductHandler
	Auth          *AuthHandler
	Preferences   *PreferencesHandler
	Fragments     *FragmentHandler
	Health        *HealthHandler
	Log           *zap.Logger
	Timeout       time.Duration
	SecureCookies bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", cfg.Health.Get)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.SecureCookies))

		r.Get("/fragments/{name}", cfg.Fragments.Get)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.GetCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Post("/items", cfg.Cart.AddItem)
				r.Put("/items/{id}", cfg.Cart.UpdateQuantity)
				r.Post("/items/{id}/adjust", cfg.Cart.AdjustQuantity)
				r.Delete("/items/{id}", cfg.Cart.RemoveItem)
			})

			r.Get("/products", cfg.Products.List)
			r.Get("/products/{id}", cfg.Products.Get)
			r.Get("/products/{id}/reviews", cfg.Products.Reviews)
			r.Get("/products/{id}/related", cfg.Products.Related)
			r.Get("/categories", cfg.Products.Categories)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", cfg.Auth.SignUp)
				r.Post("/signin", cfg.Auth.SignIn)
				r.Post("/signout", cfg.Auth.SignOut)
				r.Post("/reset-password", cfg.Auth.ResetPassword)
				r.Put("/password", cfg.Auth.UpdatePassword)
				r.Get("/user", cfg.Auth.CurrentUser)
				r.Get("/session", cfg.Auth.CurrentSession)
			})

			r.Route("/preferences", func(r chi.Router) {
				r.Get("/", cfg.Preferences.Get)
				r.Post("/theme/toggle", cfg.Preferences.ToggleTheme)
				r.Put("/language", cfg.Preferences.SetLanguage)
			})
		})
	})

	return r
}

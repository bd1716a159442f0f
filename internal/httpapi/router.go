package httpapi

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter exposes the session to the UI layer
func NewRouter(sess *session.Session, timeout time.Duration) http.Handler {
	cartHandler := NewCartHandler(sess, timeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ReadyMiddleware(sess))
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/sync", cartHandler.Sync)
		})
		r.Post("/checkout", cartHandler.Checkout)
		r.Get("/availability", cartHandler.Availability)
	})
	return r
}

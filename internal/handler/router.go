package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/checkout-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса оформления заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.session.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/visibility", h.SetCartVisibility)

				r.Post("/items", h.AddCartItem)
				r.Post("/items/{id}/increment", func(w http.ResponseWriter, r *http.Request) {
					h.mutateItem(w, r, chi.URLParam(r, "id"), h.service.IncrementItem)
				})
				r.Post("/items/{id}/decrement", func(w http.ResponseWriter, r *http.Request) {
					h.mutateItem(w, r, chi.URLParam(r, "id"), h.service.DecrementItem)
				})
				r.Delete("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
					h.mutateItem(w, r, chi.URLParam(r, "id"), h.service.RemoveItem)
				})
			})

			r.Post("/checkout", h.Checkout)
		})

		r.Post("/pos/validate", h.ValidatePOS)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

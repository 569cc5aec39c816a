package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the chi.Router with Ledgerline defaults.
func NewRouter(cfg MiddlewareConfig, api *API) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(cfg) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", api.SignIn)
		r.Get("/storefront/{slug}/products", api.Storefront)

		r.Group(func(r chi.Router) {
			r.Use(requireSession(cfg))

			r.Delete("/sessions", api.SignOut)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", api.ListProducts)
				r.Post("/", api.CreateProduct)
				r.Patch("/{id}", api.UpdateProduct)
				r.Delete("/{id}", api.DeleteProduct)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", api.ListCategories)
				r.Post("/", api.CreateCategory)
				r.Patch("/{id}", api.UpdateCategory)
				r.Delete("/{id}", api.DeleteCategory)
			})

			r.Route("/custom-fields", func(r chi.Router) {
				r.Get("/", api.ListFields)
				r.Post("/", api.CreateField)
				r.Patch("/{id}", api.UpdateField)
				r.Delete("/{id}", api.DeleteField)
				r.Post("/validate", api.ValidateFieldValues)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", api.ListCustomers)
				r.Post("/", api.CreateCustomer)
				r.Patch("/{id}", api.UpdateCustomer)
				r.Delete("/{id}", api.DeleteCustomer)
				r.Get("/{id}/stats", api.CustomerStats)
				r.Get("/{id}/credit-check", api.CreditCheck)
				r.Post("/{id}/authorize-sale", api.AuthorizeSale)
			})

			r.Route("/installments", func(r chi.Router) {
				r.Get("/", api.ListInstallments)
				r.Post("/{id}/pay", api.PayInstallment)
				r.Post("/{id}/cancel", api.CancelInstallment)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/dashboard", api.Dashboard)
				r.Get("/summary", api.Summary)
				r.Get("/aging", api.ReceivableAging)
				r.Get("/movements", api.Movements)
				r.Get("/profitability", api.ProductProfitability)
			})
		})
	})

	return r
}

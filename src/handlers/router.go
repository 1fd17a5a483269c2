package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/ledgerdesk/backend/src/utils"
)

// RouterOptions configures the HTTP protection middleware.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	CSRFEnabled    bool
}

// NewRouter wires every route of the API.
func NewRouter(txHandler *TransactionHandler, paymentHandler *PaymentHandler, healthHandler *HealthHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(ProxyHeadersMiddleware)
	r.Use(CORSMiddleware(opts.AllowedOrigins))
	r.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))

	r.Get("/healthz", healthHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf", GetCSRFToken)

		r.Group(func(r chi.Router) {
			if opts.CSRFEnabled {
				r.Use(CSRFMiddleware)
			}

			r.Post("/documents/compute", txHandler.HandleCompute)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", txHandler.HandleCreate)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", txHandler.HandleGet)
					r.Delete("/", txHandler.HandleDiscard)
					r.Put("/customer", txHandler.HandleSelectCustomer)
					r.Post("/lines", txHandler.HandleAppendLine)
					r.Put("/lines/{index}", txHandler.HandleSetLine)
					r.Delete("/lines/{index}", txHandler.HandleRemoveLine)
					r.Put("/charges", txHandler.HandleSetCharges)
					r.Post("/save", txHandler.HandleSave)
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", paymentHandler.HandleOpen)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", paymentHandler.HandleGet)
					r.Delete("/", paymentHandler.HandleDiscard)
					r.Post("/invoices/{invoiceID}/toggle", paymentHandler.HandleToggle)
					r.Put("/invoices/{invoiceID}", paymentHandler.HandleSetAmount)
					r.Post("/auto-allocate", paymentHandler.HandleAutoAllocate)
					r.Put("/details", paymentHandler.HandleUpdateDetails)
					r.Post("/submit", paymentHandler.HandleSubmit)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

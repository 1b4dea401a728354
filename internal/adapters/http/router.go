package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type requestObserver interface {
	Observe(ctx context.Context, method, route string, status int, elapsed time.Duration)
}

type Options struct {
	RateLimiter ports.RateLimiter
	Metrics     requestObserver
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Ready reports dependency health for /readyz.
	Ready func(ctx context.Context) error
}

// Handler is the HTTP adapter over the license application service.
type Handler struct {
	service *application.Service
	opts    Options
}

func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{service: service, opts: opts}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(handler.loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if handler.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", handler.opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/token", handler.issueToken)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Use(handler.rateLimitMiddleware)

			r.Get("/brand", handler.getBrand)

			r.Post("/products", handler.createProduct)
			r.Get("/products", handler.listProducts)
			r.Get("/products/{product_id}", handler.getProduct)
			r.Patch("/products/{product_id}", handler.updateProduct)

			r.Post("/license-keys", handler.createLicenseKey)
			r.Get("/license-keys/{license_key_id}", handler.getLicenseKey)
			r.Patch("/license-keys/{license_key_id}", handler.updateLicenseKey)
			r.Get("/license-keys/{license_key_id}/status", handler.licenseKeyStatus)
			r.Get("/license-keys/{license_key_id}/licenses", handler.listLicenses)

			r.Post("/licenses", handler.createLicense)
			r.Get("/licenses/{license_id}", handler.getLicense)
			r.Post("/licenses/{license_id}/renew", handler.renewLicense)
			r.Post("/licenses/{license_id}/suspend", handler.suspendLicense)
			r.Post("/licenses/{license_id}/resume", handler.resumeLicense)
			r.Post("/licenses/{license_id}/cancel", handler.cancelLicense)
			r.Get("/licenses/{license_id}/seats", handler.seatUsage)
			r.Get("/licenses/{license_id}/activations", handler.listActivations)
			r.Post("/licenses/{license_id}/force-deactivate", handler.forceDeactivate)

			r.Post("/activations", handler.activate)
			r.Post("/activations/deactivate", handler.deactivate)
			r.Post("/activations/verify", handler.verifyActivation)

			r.Get("/customers/licenses", handler.customerLicensesInBrand)
			r.Get("/customers/licenses/all", handler.customerLicenses)
		})
	})

	return r
}

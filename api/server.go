/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap, tagged with the request ID
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Latency histogram by route pattern
  5. Body limit: Rejects oversized bodies
  6. CORS:       Cross-origin requests for the staff frontend

ROUTE GROUPS:
  /healthz                  Liveness
  /metrics                  Prometheus exposition
  /api/products/*           Catalog
  /api/counterparties/*     Customers, buyers, suppliers
  /api/prices/*             Base price tables
  /api/adjustments/*        Per-counterparty adjustments
  /api/inventory/*          Lots, history, summary
  /api/buyback/*            Buyback workflow
  /api/sales/*              Sales workflow
  /api/compliance/*         Secondhand dealer register
  /api/admin/*              Auto-commit scheduler
  /api/scenarios/*          Demo scenarios (development only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go, workflows.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/metrics"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	AllowedOrigins  []string
	MaxBodySize     int64 // bytes, 0 disables the limit
	Metrics         *metrics.Collector
	Logger          *zap.Logger
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = h.Logger
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(observe(opts.Metrics))
	}
	if opts.MaxBodySize > 0 {
		r.Use(middleware.RequestSize(opts.MaxBodySize))
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Post("/import", h.ImportProducts)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
		})
		r.Route("/counterparties", func(r chi.Router) {
			r.Get("/", h.ListCounterparties)
			r.Post("/", h.CreateCounterparty)
			r.Get("/{id}", h.GetCounterparty)
			r.Put("/{id}", h.UpdateCounterparty)
		})

		// Price routes
		r.Route("/prices", func(r chi.Router) {
			r.Get("/quote", h.QuotePrice)
			r.Post("/import", h.ImportPriceSheet)
			r.Get("/{direction}", h.GetPriceTable)
			r.Put("/{direction}/{code}/{rank}", h.SetBasePrice)
		})
		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Put("/", h.PutAdjustment)
			r.Delete("/{counterparty}/{code}", h.DeleteAdjustment)
		})

		// Inventory routes
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/summary", h.GetStockSummary)
			r.Get("/lots", h.ListLots)
			r.Post("/lots", h.AddStock)
			r.Get("/lots/{id}", h.GetLot)
			r.Get("/lots/{id}/history", h.GetLotHistory)
			r.Post("/lots/{id}/deplete", h.DepleteStock)
		})

		// Buyback routes
		r.Route("/buyback", func(r chi.Router) {
			r.Get("/", h.ListApplications)
			r.Post("/", h.SubmitApplication)
			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.GetApplication)
				r.Post("/shipped", h.MarkShipped)
				r.Post("/received", h.MarkReceived)
				r.Post("/assess", h.BeginAssessment)
				r.Put("/items/{itemId}/assessment", h.AssessItem)
				r.Post("/confirm-assessment", h.ConfirmAssessment)
				r.Post("/approve", h.ApproveApplication)
				r.Post("/reject", h.RejectApplication)
				r.Post("/commit", h.CommitApplication)
			})
		})

		// Sales routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSalesRequests)
			r.Post("/", h.SubmitSalesRequest)
			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.GetSalesRequest)
				r.Post("/auto-quote", h.AutoQuote)
				r.Put("/items/{itemId}/price", h.SetItemPrice)
				r.Delete("/items/{itemId}/price", h.ClearItemPrice)
				r.Post("/quote", h.ConfirmQuote)
				r.Post("/approve", h.ApproveSalesRequest)
				r.Post("/decline", h.DeclineSalesRequest)
				r.Post("/payment", h.ConfirmPayment)
				r.Put("/allocations", h.SelectAllocation)
				r.Post("/fulfill", h.Fulfill)
				r.Get("/margin", h.GetMargin)
			})
		})

		// Compliance routes
		r.Route("/compliance", func(r chi.Router) {
			r.Get("/records", h.ListComplianceRecords)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/auto-commit/runs", h.ListAutoCommitRuns)
			r.Post("/auto-commit", h.TriggerAutoCommit)
		})

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// requestLogger logs one line per request after it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// observe records latency by route pattern so path parameters don't create
// one series per document number.
func observe(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.ObserveRequest(r.Method, route, status, time.Since(start))
		})
	}
}

// Package server assembles the HTTP surface: middleware chain, the /api
// routes behind authentication, and the unauthenticated ops endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/auth"
	"github.com/diewo77/cave-gestion/internal/handlers"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/metrics"
	"github.com/diewo77/cave-gestion/internal/policy"
)

// New builds the application router.
func New(db *gorm.DB) http.Handler {
	g := policy.New()

	authH := handlers.NewAuthHandler(db)
	subH := handlers.NewSubscriberHandler(db, g)
	prodH := handlers.NewProductHandler(db, g)
	consoH := handlers.NewConsumptionHandler(db, g)
	invH := handlers.NewInvoiceHandler(db, g)
	payH := handlers.NewPaymentHandler(db, g)
	stockH := handlers.NewStockHandler(db, g)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(auth.Middleware)

	// Ops endpoints stay outside the session wall.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.OK(w, map[string]any{"status": "ok"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.WithContext(req.Context()).Exec("SELECT 1").Error; err != nil {
			httpx.Fail(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		httpx.OK(w, map[string]any{"status": "ok", "database": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/login", authH.Login)
	r.Post("/api/logout", authH.Logout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/api/me", authH.Me)

		r.Route("/api/abonnes", func(r chi.Router) {
			r.Get("/", subH.List)
			r.Post("/", subH.Create)
			r.Get("/{id}", subH.Get)
			r.Put("/{id}", subH.Update)
			r.Delete("/{id}", subH.Delete)
			r.Get("/{id}/historique", subH.Historique)
		})

		r.Route("/api/produits", func(r chi.Router) {
			r.Get("/", prodH.List)
			r.Post("/", prodH.Create)
			r.Get("/{id}", prodH.Get)
			r.Put("/{id}", prodH.Update)
			r.Delete("/{id}", prodH.Delete)
		})
		r.Get("/api/categories", prodH.Categories)
		r.Post("/api/categories", prodH.CreateCategory)
		r.Get("/api/fournisseurs", prodH.Suppliers)
		r.Post("/api/fournisseurs", prodH.CreateSupplier)

		r.Route("/api/consommations", func(r chi.Router) {
			r.Get("/", consoH.List)
			r.Post("/", consoH.Create)
			r.Get("/statistiques", consoH.Statistics)
			r.Get("/{id}", consoH.Get)
			r.Put("/{id}", consoH.Update)
			r.Delete("/{id}", consoH.Delete)
		})

		r.Route("/api/factures", func(r chi.Router) {
			r.Get("/", invH.List)
			r.Post("/", invH.Create)
			r.Get("/abonne/{id}/non-facturees", invH.Unbilled)
			r.Get("/{id}", invH.Get)
			r.Put("/{id}", invH.Update)
			r.Delete("/{id}", invH.Delete)
		})

		r.Route("/api/paiements", func(r chi.Router) {
			r.Get("/", payH.List)
			r.Post("/", payH.Create)
			r.Get("/modes", payH.Modes)
			r.Get("/statistiques", payH.Statistics)
			r.Get("/{id}", payH.Get)
			r.Put("/{id}", payH.Update)
			r.Delete("/{id}", payH.Delete)
		})

		r.Route("/api/stock", func(r chi.Router) {
			r.Get("/mouvements", stockH.Movements)
			r.Get("/alertes", stockH.Alertes)
			r.Get("/valeur", stockH.Valeur)
			r.Post("/entree", stockH.Entree)
			r.Post("/sortie", stockH.Sortie)
			r.Post("/ajustement", stockH.Ajustement)
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}

// Package http exposes the ledger over a thin JSON API. Handlers only
// decode, delegate to the services and encode; every rule lives below them.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"saldo/internal/services"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// ownerHeader carries the authenticated owner's identity, injected by the
// identity collaborator in front of this service.
const ownerHeader = "X-Owner-ID"

type Server struct {
	ledger    *services.LedgerService
	dashboard *services.DashboardService
	query     *services.MovementQueryService
}

// NewServer wires the API router and returns an http.Server ready to listen
// on addr.
func NewServer(addr string, allowedOrigins []string, ledger *services.LedgerService, dashboard *services.DashboardService, query *services.MovementQueryService) *http.Server {
	s := &Server{
		ledger:    ledger,
		dashboard: dashboard,
		query:     query,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ownerHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Use(requireOwner)

		api.Get("/dashboard", s.handleDashboard)

		api.Route("/movements", func(mr chi.Router) {
			mr.Get("/", s.handleListMovements)
			mr.Post("/", s.handleCreateMovement)
			mr.Get("/{id}", s.handleGetMovement)
			mr.Put("/{id}", s.handleUpdateMovement)
			mr.Delete("/{id}", s.handleDeleteMovement)
		})

		api.Route("/accounts", func(ar chi.Router) {
			ar.Get("/", s.handleListAccounts)
			ar.Post("/", s.handleCreateAccount)
			ar.Delete("/{id}", s.handleDeleteAccount)
		})

		api.Get("/categories", s.handleListCategories)

		api.Route("/bills", func(br chi.Router) {
			br.Get("/", s.handleListBills)
			br.Post("/", s.handleCreateBill)
			br.Put("/{id}/paid", s.handleSetBillPaid)
		})
	})

	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireOwner rejects requests without an owner identity. The value itself
// is trusted; authentication is the fronting collaborator's job.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ownerHeader)
		ownerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ownerID < 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+ownerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerKey).(int64)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

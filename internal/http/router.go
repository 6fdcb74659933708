package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/idmx-dev/poolhouse/internal/appregistry"
	"github.com/idmx-dev/poolhouse/internal/flow"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// NewRouter arma el mux completo: interaction endpoints, superficie admin,
// health checks y métricas.
func NewRouter(conn store.Connection, accounts *identity.Service, registry *appregistry.Registry, orch *flow.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	newInteractionHandler(orch).Register(r)
	newAdminHandler(conn, accounts, registry).Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	// readyz toca el backend: un store caído saca la instancia del LB.
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := conn.Ping(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": conn.Name()})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otakudb/internal/platform/middleware"
)

// RouterDeps collects everything the router mounts.
type RouterDeps struct {
	Media       *MediaHandler
	History     *HistoryHandler
	RequireAuth func(http.Handler) http.Handler
	Logger      *slog.Logger
}

// NewRouter assembles the service's HTTP surface.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/media", deps.Media.Routes(deps.RequireAuth))
	r.Mount("/history", deps.History.Routes(deps.RequireAuth))
	return r
}

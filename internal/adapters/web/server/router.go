package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/geotrack/internal/adapters/web/middleware"
)

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.WSManager != nil {
		r.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	}

	api := r.PathPrefix("/api").Subrouter()
	limit := middleware.RateLimitMiddleware(s.ControlLimiter)
	api.Handle("/location/start", limit(http.HandlerFunc(s.LocationHandler.HandleStart))).Methods(http.MethodPost)
	api.Handle("/location/stop", limit(http.HandlerFunc(s.LocationHandler.HandleStop))).Methods(http.MethodPost)
	api.HandleFunc("/location/status", s.LocationHandler.HandleStatus).Methods(http.MethodGet)
	api.HandleFunc("/location/sources/{source}", s.LocationHandler.HandleSource).Methods(http.MethodGet)

	if s.AuditHandler != nil {
		api.HandleFunc("/audit-logs", s.AuditHandler.HandleGetLogs).Methods(http.MethodGet)
	}

	return r
}

package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/oskrba/internal/metrics"
)

// NewRouter creates the blob API router. When jwtSecret is empty the state
// endpoints are served without authentication. m may be nil.
func NewRouter(db *sql.DB, jwtSecret string, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	stateHandler := &StateHandler{DB: db}

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if jwtSecret != "" {
		authMW := AuthMiddleware(jwtSecret)
		protect = func(h http.HandlerFunc) http.Handler { return authMW(h) }
	}

	// Public.
	mux.HandleFunc("GET /healthz", Health(db))
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// State blob.
	mux.Handle("GET /api/app-state", protect(stateHandler.Get))
	mux.Handle("PUT /api/app-state", protect(stateHandler.Put))
	mux.Handle("DELETE /api/app-state", protect(stateHandler.Delete))

	return MetricsMiddleware(m, mux)
}

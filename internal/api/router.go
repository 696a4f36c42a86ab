package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/wonny/ewreturns/internal/api/handlers"
	"github.com/wonny/ewreturns/pkg/logger"
)

// HealthChecker reports dependency health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies names the checkers reported by /health. A nil checker is
// reported as disabled.
type Dependencies map[string]HealthChecker

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(returnsHandler *handlers.ReturnsHandler, deps Dependencies, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(deps)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Returns endpoints
	api.HandleFunc("/returns/run", returnsHandler.Run).Methods("POST")
	api.HandleFunc("/returns/last", returnsHandler.GetLast).Methods("GET")
	api.HandleFunc("/returns/last/{mode}/periods", returnsHandler.GetPeriods).Methods("GET")
	api.HandleFunc("/returns/last/{mode}/csv", returnsHandler.GetCSV).Methods("GET")
	api.HandleFunc("/returns/runs", returnsHandler.ListRuns).Methods("GET")
	api.HandleFunc("/returns/runs/{id:[0-9]+}/values", returnsHandler.GetRunValues).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler pings every dependency; any failure degrades the status
func healthCheckHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		report := make(map[string]string, len(deps))
		for name, dep := range deps {
			switch {
			case dep == nil:
				report[name] = "disabled"
			case dep.Ping(ctx) != nil:
				report[name] = "unreachable"
				status, code = "degraded", http.StatusServiceUnavailable
			default:
				report[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       status,
			"service":      "ewreturns-api",
			"dependencies": report,
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheckFunc validates a single dependency.
type HealthCheckFunc func(context.Context) error

// Healthcheck returns a handler that runs the given checks and reports
// 200 when all pass, 503 otherwise. Check names key the response body.
func Healthcheck(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(results)
	}
}

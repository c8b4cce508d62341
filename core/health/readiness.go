package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicflow/clinicflow/core/logger"
)

// DefaultCheckTimeout bounds a whole readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Check reports whether one dependency is usable.
type Check func(context.Context) error

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
func Readiness(log *slog.Logger, checks ...Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), DefaultCheckTimeout)
		defer cancel()

		for _, check := range checks {
			if err := check(ctx); err != nil {
				if log != nil {
					log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				}
				writeText(w, http.StatusServiceUnavailable, bodyNotReady)
				return
			}
		}

		writeText(w, http.StatusOK, bodyReady)
	})
}

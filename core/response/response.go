package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clinicflow/clinicflow/core/logger"
)

// Response renders an HTTP response. Rendering errors are passed to the
// error handler of Handle.
type Response func(w http.ResponseWriter, r *http.Request) error

// HandlerFunc produces the response for a request.
type HandlerFunc func(r *http.Request) Response

// Handle adapts fn to http.Handler. A returned error is rendered as JSON.
func Handle(log *slog.Logger, fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r)(w, r); err != nil {
			JSONError(log, w, r, err)
		}
	})
}

// JSON creates an application/json response with 200 OK status.
func JSON(v any) Response {
	return JSONWithStatus(v, http.StatusOK)
}

// JSONWithStatus creates an application/json response with a custom status.
// A zero status means 204 for nil data and 200 otherwise.
func JSONWithStatus(v any, status int) Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		if status == 0 {
			status = http.StatusOK
			if v == nil {
				status = http.StatusNoContent
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		if status == http.StatusNoContent || status == http.StatusNotModified {
			return nil
		}
		return json.NewEncoder(w).Encode(v)
	}
}

// Error returns a response that hands err to the error handler.
func Error(err error) Response {
	return func(http.ResponseWriter, *http.Request) error {
		return err
	}
}

// JSONError writes err as an HTTPError body. Server errors are logged with
// their cause; the cause is stripped from the body.
func JSONError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	httpErr := toHTTPError(err)
	if httpErr.Status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("details", httpErr.Details),
			logger.Error(err))
		httpErr.Details = nil
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpErr.Status)
	if encErr := json.NewEncoder(w).Encode(httpErr); encErr != nil {
		log.WarnContext(r.Context(), "failed to write error response", logger.Error(encErr))
	}
}

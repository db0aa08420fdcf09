package api

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
)

// Handler is an http.Handler whose failures are returned rather than written.
// Errors that are not *apperrors.AppError become a generic 500.
type Handler func(w http.ResponseWriter, r *http.Request) error

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}
	if appErr := apperrors.EnsureAppError(err); appErr.StatusCode >= http.StatusInternalServerError {
		log.Printf("SYSTEM: %s %s failed (request %s): %v", r.Method, r.URL.Path, GetRequestID(r), err)
	}
	WriteError(w, r, err)
}

// RecovererMiddleware turns a panicking handler into a 500 response and logs
// the stack with the request's correlation ID.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			log.Printf("SYSTEM: panic serving %s %s (request %s): %v\n%s",
				r.Method, r.URL.Path, GetRequestID(r), recovered, debug.Stack())
			WriteError(w, r, apperrors.NewInternalError("Internal server error"))
		}()
		next.ServeHTTP(w, r)
	})
}

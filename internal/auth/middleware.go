package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
	"github.com/strefethen/dunehd-hub-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/pair/start":    {},
	"/v1/auth/pair/complete": {},
	"/v1/auth/refresh":       {},
}

var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
}

// streamPath accepts the token as an access_token query parameter, since
// browser WebSocket clients cannot set headers.
const streamPath = "/ws/events"

// Middleware validates JWT access tokens for protected routes.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	signer := NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if isTestModeRequest(r, cfg) {
				client := Client{ID: "test-client", Name: "Test Client", Type: TokenTypeAccess}
				next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
				return
			}

			token, appErr := bearerToken(r)
			if appErr != nil {
				api.WriteError(w, r, appErr)
				return
			}

			client, err := signer.Verify(token, TokenTypeAccess)
			switch {
			case errors.Is(err, ErrTokenExpired):
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
				return
			case errors.Is(err, ErrTokenType):
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			case err != nil:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
		})
	}
}

func bearerToken(r *http.Request) (string, *apperrors.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.URL.Path == streamPath {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isTestModeRequest(r *http.Request, cfg config.Config) bool {
	if !cfg.AllowTestMode || cfg.NodeEnv != "development" {
		return false
	}
	return r.Header.Get("x-test-mode") == "true"
}

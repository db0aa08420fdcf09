package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strefethen/dunehd-hub-go/internal/api"
	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
	"github.com/strefethen/dunehd-hub-go/internal/config"
)

// RegisterRoutes wires auth routes to the router. Pairing codes are only
// written to the log, so pairing requires access to the bridge console.
func RegisterRoutes(router chi.Router, store *PairingStore, cfg config.Config, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	signer := NewSigner(cfg)

	router.Method(http.MethodPost, "/v1/auth/pair/start", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		store.CleanupExpired()

		code, err := store.Create()
		if err != nil {
			return apperrors.NewInternalError("Failed to generate pairing code")
		}
		logger.Printf("AUTH: pairing code %s (request %s)", code, api.GetRequestID(r))

		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":       "pairing_start",
			"pairing_hint": "Enter the pairing code shown in the bridge log",
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/pair/complete", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PairCode   string `json:"pair_code"`
			ClientName string `json:"client_name"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.PairCode == "" {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.ClientName == "" {
			return apperrors.NewValidationError("client_name is required", nil)
		}

		switch store.Redeem(body.PairCode) {
		case RedeemUnknown:
			return apperrors.NewUnauthorizedError("Invalid pairing code", apperrors.ErrorCodeAuthPairingInvalid)
		case RedeemExpired:
			return apperrors.NewUnauthorizedError("Pairing code has expired", apperrors.ErrorCodeAuthPairingExpired)
		}

		tokens, err := signer.Issue(Client{ID: uuid.NewString(), Name: body.ClientName})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}
		logger.Printf("AUTH: paired client %q", body.ClientName)

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := signer.Refresh(body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenType):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}))
}

package auth

import (
	"errors"
	"net/http"
	"strings"

	"unified_gateway/internal/config"
	"unified_gateway/internal/utils"
)

// TokenResponse is returned by the token exchange endpoint.
type TokenResponse struct {
	Token string `json:"token"`
	Exp   int64  `json:"exp"`
}

// AuthHandler exchanges an API key (X-API-Key or Authorization: Bearer)
// for a short-lived JWT.
func AuthHandler(store APIKeyStore, cfg *config.Config) http.HandlerFunc {
	logger := utils.NewLogger("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if apiKey == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "API Key is required")
			return
		}

		keyRecord, err := store.Lookup(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API Key")
				return
			}
			utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API Key: "+err.Error())
			return
		}

		token, exp, err := GenerateJWT(keyRecord.ID, cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Error generating token: "+err.Error())
			return
		}

		if err := utils.RespondWithJSON(w, http.StatusOK, TokenResponse{Token: token, Exp: exp}); err != nil {
			logger.Error("Failed to write token response", "error", err)
		}
	}
}

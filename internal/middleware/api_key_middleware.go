package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"unified_gateway/internal/auth"
	"unified_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for storing the authenticated API key record
	APIKeyRecordKey ContextKey = "apiKeyRecord"
	// AuthMethodKey records whether the caller presented a raw key or a JWT
	AuthMethodKey ContextKey = "authMethod"
)

const (
	AuthMethodAPIKey = "api_key"
	AuthMethodJWT    = "jwt"
)

// APIKeyMiddleware authenticates gateway clients. It accepts X-API-Key, or
// Authorization: Bearer carrying either a raw API key or a JWT issued by
// /auth/token. A nil store disables authentication.
func APIKeyMiddleware(store auth.APIKeyStore, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			bearer := false
			if apiKey == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					apiKey = strings.TrimPrefix(authHeader, "Bearer ")
					bearer = true
				}
			}

			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			ctx := r.Context()

			// Tokens have two dots; raw keys never do.
			if bearer && len(jwtSecret) > 0 && strings.Count(apiKey, ".") == 2 {
				claims, err := auth.ValidateJWT(apiKey, jwtSecret)
				if err != nil {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				ctx = context.WithValue(ctx, APIKeyRecordKey, &auth.APIKeyRecord{ID: claims.Subject, Name: "token"})
				ctx = context.WithValue(ctx, AuthMethodKey, AuthMethodJWT)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			keyRecord, err := store.Lookup(ctx, apiKey)
			if err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API key: "+err.Error())
				return
			}

			ctx = context.WithValue(ctx, APIKeyRecordKey, keyRecord)
			ctx = context.WithValue(ctx, AuthMethodKey, AuthMethodAPIKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the API key record from the request context
func GetAPIKeyRecord(ctx context.Context) (*auth.APIKeyRecord, bool) {
	record, ok := ctx.Value(APIKeyRecordKey).(*auth.APIKeyRecord)
	return record, ok
}

// GetAuthMethod reports how the request was authenticated.
func GetAuthMethod(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(AuthMethodKey).(string)
	return method, ok
}

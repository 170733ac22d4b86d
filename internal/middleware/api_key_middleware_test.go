package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"unified_gateway/internal/auth"
)

var testSecret = []byte("middleware-test-secret")

func okHandler(t *testing.T, wantMethod string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record, ok := GetAPIKeyRecord(r.Context())
		if !ok || record.ID == "" {
			t.Error("API key record not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if method, _ := GetAuthMethod(r.Context()); method != wantMethod {
			t.Errorf("auth method = %q, want %q", method, wantMethod)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func TestAPIKeyMiddleware_Success(t *testing.T) {
	store := auth.NewInMemoryAPIKeyStore([]string{"demo-key"}, nil)
	handler := APIKeyMiddleware(store, testSecret)(okHandler(t, AuthMethodAPIKey))

	t.Run("with X-API-Key header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/providers", nil)
		req.Header.Set("X-API-Key", "demo-key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("with Bearer key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/providers", nil)
		req.Header.Set("Authorization", "Bearer demo-key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestAPIKeyMiddleware_JWT(t *testing.T) {
	store := auth.NewInMemoryAPIKeyStore([]string{"demo-key"}, nil)
	handler := APIKeyMiddleware(store, testSecret)(okHandler(t, AuthMethodJWT))

	t.Run("valid token", func(t *testing.T) {
		token, _, err := auth.GenerateJWT("key-123", testSecret, time.Minute)
		if err != nil {
			t.Fatalf("GenerateJWT() error = %v", err)
		}
		req := httptest.NewRequest("POST", "/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, _ := auth.GenerateJWT("key-123", testSecret, -time.Minute)
		req := httptest.NewRequest("POST", "/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Invalid or expired token") {
			t.Errorf("unexpected body: %s", w.Body.String())
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, _, _ := auth.GenerateJWT("key-123", []byte("other"), time.Minute)
		req := httptest.NewRequest("POST", "/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
	})
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	store := auth.NewInMemoryAPIKeyStore([]string{"demo-key"}, nil)

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called when API key is missing")
		w.WriteHeader(http.StatusOK)
	})

	handler := APIKeyMiddleware(store, testSecret)(nextHandler)

	req := httptest.NewRequest("GET", "/providers", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"detail"`) {
		t.Errorf("Expected detail in response body, got %s", w.Body.String())
	}
}

func TestAPIKeyMiddleware_InvalidKey(t *testing.T) {
	store := auth.NewInMemoryAPIKeyStore([]string{"demo-key"}, nil)

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called for invalid API key")
		w.WriteHeader(http.StatusOK)
	})

	handler := APIKeyMiddleware(store, testSecret)(nextHandler)

	req := httptest.NewRequest("GET", "/providers", nil)
	req.Header.Set("X-API-Key", "invalid-key-12345")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	called := false
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := APIKeyMiddleware(nil, testSecret)(nextHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/providers", nil))

	if !called || w.Code != http.StatusOK {
		t.Errorf("Expected pass-through, got status %d", w.Code)
	}
}

func TestGetAPIKeyRecord(t *testing.T) {
	t.Run("record exists in context", func(t *testing.T) {
		record := &auth.APIKeyRecord{ID: "test-id", Name: "Test Key"}
		ctx := context.WithValue(context.Background(), APIKeyRecordKey, record)

		retrieved, ok := GetAPIKeyRecord(ctx)
		if !ok {
			t.Fatal("Expected to find API key record in context")
		}
		if retrieved.ID != "test-id" {
			t.Errorf("Expected ID 'test-id', got '%s'", retrieved.ID)
		}
	})

	t.Run("record not in context", func(t *testing.T) {
		if _, ok := GetAPIKeyRecord(context.Background()); ok {
			t.Error("Expected not to find API key record in empty context")
		}
	})

	t.Run("wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), APIKeyRecordKey, "not-a-record")
		if _, ok := GetAPIKeyRecord(ctx); ok {
			t.Error("Expected type assertion to fail for wrong type")
		}
	})
}

func TestAPIKeyMiddleware_BearerTokenParsing(t *testing.T) {
	store := auth.NewInMemoryAPIKeyStore([]string{"demo-key"}, nil)
	middleware := APIKeyMiddleware(store, testSecret)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "valid Bearer token",
			authHeader:     "Bearer demo-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Bearer with no token",
			authHeader:     "Bearer ",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed Bearer",
			authHeader:     "Bearerdemo-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "different auth scheme",
			authHeader:     "Basic abc123",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "dotted garbage",
			authHeader:     "Bearer a.b.c",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			handler := middleware(nextHandler)

			req := httptest.NewRequest("GET", "/providers", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

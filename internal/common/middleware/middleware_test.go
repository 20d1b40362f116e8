package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestIdentity_PopulatesCallerContext(t *testing.T) {
	verifier := func(ctx context.Context, token string) (string, string, error) {
		return "user-1", RoleAdmin, nil
	}

	var gotUserID, gotRole string
	h := Identity(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotRole = GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest("good"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
	assert.Equal(t, RoleAdmin, gotRole)
}

func TestIdentity_MissingHeader(t *testing.T) {
	verifier := func(ctx context.Context, token string) (string, string, error) {
		t.Fatal("verifier should not be called")
		return "", "", nil
	}
	h := Identity(verifier)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentity_RejectedToken(t *testing.T) {
	verifier := func(ctx context.Context, token string) (string, string, error) {
		return "", "", ErrInvalidToken
	}
	h := Identity(verifier)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest("bad"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestIdentity_VerifierUnavailable(t *testing.T) {
	verifier := func(ctx context.Context, token string) (string, string, error) {
		return "", "", errors.New("calling auth service: connection refused")
	}
	h := Identity(verifier)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest("good"))

	// Upstream failure is retryable, not a credential rejection.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "SERVICE_UNAVAILABLE")
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRoleKey, RoleUser))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRoleKey, RoleAdmin))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

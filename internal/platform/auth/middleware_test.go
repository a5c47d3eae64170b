package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}
	return signed
}

func baseClaims(subject string) AccessClaims {
	return AccessClaims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "clearbay-orders",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	verifier, err := NewJWTVerifier(testSecret, "clearbay-orders")
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}
	return NewAuthenticator(verifier)
}

func protectedHandler(t *testing.T, capture **Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Errorf("identity missing from request context")
		}
		if capture != nil {
			*capture = identity
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	auth := newTestAuthenticator(t)
	var identity *Identity
	handler := auth.RequireAuth()(protectedHandler(t, &identity))

	req := httptest.NewRequest(http.MethodGet, "/v1/me/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims("user-1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if identity == nil || identity.UID != "user-1" {
		t.Fatalf("identity = %+v, want uid user-1", identity)
	}
	if !identity.HasRole(RoleUser) {
		t.Fatalf("expected fallback user role, got %v", identity.Roles)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	auth := newTestAuthenticator(t)
	handler := auth.RequireAuth()(protectedHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/me/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	auth := newTestAuthenticator(t)
	handler := auth.RequireAuth()(protectedHandler(t, nil))

	claims := baseClaims("user-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/v1/me/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthRejectsWrongIssuer(t *testing.T) {
	auth := newTestAuthenticator(t)
	handler := auth.RequireAuth()(protectedHandler(t, nil))

	claims := baseClaims("user-1")
	claims.Issuer = "someone-else"
	req := httptest.NewRequest(http.MethodGet, "/v1/me/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthEnforcesRoles(t *testing.T) {
	auth := newTestAuthenticator(t)
	handler := auth.RequireAuth(RoleAdmin)(protectedHandler(t, nil))

	req := httptest.NewRequest(http.MethodPatch, "/v1/orders/o1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims("user-1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for plain user", rec.Code)
	}

	adminClaims := baseClaims("admin-1")
	adminClaims.Role = "admin"
	req = httptest.NewRequest(http.MethodPatch, "/v1/orders/o1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, adminClaims))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 for admin", rec.Code)
	}
}

func TestVerifyTokenRejectsWrongAlgorithm(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "")
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, baseClaims("user-1"))
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	if _, err := verifier.VerifyToken(context.Background(), signed); err == nil {
		t.Fatal("expected error for HS512 token, got nil")
	}
}

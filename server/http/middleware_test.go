package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/authn"
)

func TestRequestIDMiddleware_SetsHeaderAndContextValue(t *testing.T) {
	var sawID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawID = requestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	requestIDMiddleware(next).ServeHTTP(rec, req)

	header := rec.Header().Get("X-Request-Id")
	if header == "" {
		t.Fatal("expected X-Request-Id header to be set")
	}
	if sawID != header {
		t.Fatalf("expected context request id %q to match header %q", sawID, header)
	}
}

func TestRecoveryMiddleware_TurnsPanicIntoMasked500(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	recoveryMiddleware(zap.NewNop(), nil)(panicking).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAuthMiddleware_NoTokenPassesThroughWithNilClaims(t *testing.T) {
	verifier := authn.NewVerifier("test-signing-key")

	var gotClaims *authn.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = claimsFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	authMiddleware(verifier)(next).ServeHTTP(rec, req)

	if gotClaims != nil {
		t.Fatalf("expected nil claims for an unauthenticated request, got %+v", gotClaims)
	}
}

func TestAuthMiddleware_ValidTokenPopulatesClaims(t *testing.T) {
	verifier := authn.NewVerifier("test-signing-key")
	claims := &authn.Claims{PlayerID: 7, Login: "speedy", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	token, err := verifier.Sign(claims)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	var gotClaims *authn.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = claimsFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/player/pb", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authMiddleware(verifier)(next).ServeHTTP(rec, req)

	if gotClaims == nil {
		t.Fatal("expected claims to be populated from a valid bearer token")
	}
	if gotClaims.PlayerID != 7 || gotClaims.Login != "speedy" {
		t.Fatalf("unexpected claims: %+v", gotClaims)
	}
}

func TestAuthMiddleware_InvalidTokenPassesThroughWithNilClaims(t *testing.T) {
	verifier := authn.NewVerifier("test-signing-key")

	var gotClaims *authn.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = claimsFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	authMiddleware(verifier)(next).ServeHTTP(rec, req)

	if gotClaims != nil {
		t.Fatalf("expected nil claims for an invalid bearer token, got %+v", gotClaims)
	}
}

func TestRequireAuth_NoClaimsReturnsUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/player/finished", nil)
	_, err := requireAuth(req)

	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v", err)
	}
}

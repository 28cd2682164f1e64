package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/authn"
	"github.com/speedrun-hub/obstacle-engine/internal/notify"
)

type ctxRequestIDKey struct{}
type ctxClaimsKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestIDKey{}).(string)
	return id
}

func claimsFromContext(ctx context.Context) *authn.Claims {
	claims, _ := ctx.Value(ctxClaimsKey{}).(*authn.Claims)
	return claims
}

// requestIDMiddleware tags every request with a fresh id, used to correlate
// a masked 500 response with the diagnostic shipped to internal/notify.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewV4()
		reqID := id.String()
		if err != nil {
			reqID = "unknown"
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxRequestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware turns a panicking handler into a masked Internal
// error instead of crashing the listener, mirroring the teacher's
// handlers.RecoveryHandler wrapping.
func recoveryMiddleware(logger *zap.Logger, sink notify.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered in http handler", zap.Any("panic", rec))
					writeError(w, logger, sink, r, apierr.Internal(nil, "panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware verifies the bearer token on requests that need it and
// stashes its claims in the request context; requests with no token reach
// the handler with nil claims, letting read-only endpoints stay public.
func authMiddleware(verifier *authn.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			claims, err := verifier.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAuth(r *http.Request) (*authn.Claims, error) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return nil, apierr.Unauthorized()
	}
	return claims, nil
}

package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-api/internal/domain/auth"
	"github.com/xenking/shop-api/pkg/httpmiddleware"
)

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func Authenticate(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "")
				return
			}
			p, err := tokens.Verify(token)
			if err != nil {
				zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token", "")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.Int64("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated callers lacking scope. It must run after
// Authenticate.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "")
				return
			}
			if !p.HasScope(scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey buckets requests by user when they carry a valid token and by
// client IP otherwise.
func RateLimitKey(tokens TokenVerifier) func(*http.Request) string {
	return func(r *http.Request) string {
		if token, ok := bearerToken(r); ok {
			if p, err := tokens.Verify(token); err == nil {
				return "user:" + strconv.FormatInt(p.UserID, 10)
			}
		}
		return "ip:" + httpmiddleware.ClientIP(r)
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

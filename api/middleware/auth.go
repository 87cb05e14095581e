package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	pkgAuth "github.com/stadiumcard/stadiumcard-backend/pkg/auth"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// Auth requires a valid bearer token and seeds the caller identity.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, true)
}

// OptionalAuth accepts anonymous requests but still rejects a token that is
// present and invalid.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, false)
}

func authenticate(cfg config.JWTConfig, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, tokenError(err))
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, string(claims.Role))
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID)
				ctx = logg.WithField(ctx, "actor_role", string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = raw[7:]
	}
	return strings.TrimSpace(raw)
}

// tokenError lets clients tell a token worth refreshing from a bad one.
func tokenError(err error) error {
	if errors.Is(err, pkgAuth.ErrTokenExpired) {
		return pkgerrors.WithReason(pkgerrors.CodeUnauthorized, "token_expired", "token expired")
	}
	return pkgerrors.WithReason(pkgerrors.CodeUnauthorized, "token_invalid", "invalid token")
}

package middleware

import (
	"net/http"
	"slices"

	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// RequireRole admits callers holding any of roles. It must run after Auth;
// an anonymous caller gets 401, a caller with the wrong role gets 403.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			switch {
			case UserIDFromContext(ctx) == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !slices.Contains(allowed, RoleFromContext(ctx)):
				responses.WriteError(ctx, logg, w, pkgerrors.WithReason(pkgerrors.CodeForbidden, "role", "role required").
					WithDetails(map[string]any{"allowed_roles": allowed}))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
)

// PathUUID reads a chi path parameter as a UUID. A malformed id is reported
// as not found with the supplied reason, since it can never match a row.
func PathUUID(r *http.Request, key, reason string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.WithReason(pkgerrors.CodeNotFound, reason, reason+" not found")
	}
	return id, nil
}

// QueryList splits a comma separated query value, dropping blanks and
// keeping at most limit entries.
func QueryList(r *http.Request, key string, limit int) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

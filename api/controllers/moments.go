package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/api/validators"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// AdminCreateMoment records a live moment by hand. Replaying an existing id
// answers 200 with the stored record.
func AdminCreateMoment(svc moments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body moments.CreateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		moment, created, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, moment)
	}
}

type finalizeRequest struct {
	ResultSummary string `json:"result_summary" validate:"required,notblank,max=500"`
}

// AdminFinalizeMoment stamps the result and pushes it into every listing
// history that recorded the moment.
func AdminFinalizeMoment(svc moments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "momentID"))
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonMoment, "moment not found"))
			return
		}
		var body finalizeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Finalize(r.Context(), id, body.ResultSummary)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"moment":           res.Moment,
			"listings_updated": res.ListingsUpdated,
		})
	}
}

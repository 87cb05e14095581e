package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/api/middleware"
	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/api/validators"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/memories"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// Text length is enforced by the memory service so the limit stays
// configurable; the tag only guards against oversized payloads.
type memoryRequest struct {
	listings.MomentRef
	Text string `json:"text" validate:"max=2000"`
}

type memoryTarget struct {
	listingID uuid.UUID
	memoryID  string
}

func memoryPath(r *http.Request, withMemory bool) (memoryTarget, error) {
	id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
	if err != nil {
		return memoryTarget{}, err
	}
	target := memoryTarget{listingID: id}
	if withMemory {
		target.memoryID = strings.TrimSpace(chi.URLParam(r, "memoryID"))
		if target.memoryID == "" {
			return memoryTarget{}, pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonMemory, "memory not found")
		}
	}
	return target, nil
}

// momentRefFromQuery reads moment_id / moment_index for body-less requests.
func momentRefFromQuery(r *http.Request) (listings.MomentRef, error) {
	q := r.URL.Query()
	ref := listings.MomentRef{ID: strings.TrimSpace(q.Get("moment_id"))}
	if raw := strings.TrimSpace(q.Get("moment_index")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return ref, pkgerrors.New(pkgerrors.CodeValidation, "moment_index must be numeric")
		}
		ref.Index = &idx
	}
	return ref, nil
}

func CreateMemory(svc memories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := memoryPath(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body memoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mem, err := svc.Create(r.Context(), target.listingID, middleware.UserIDFromContext(r.Context()), body.MomentRef, body.Text)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mem)
	}
}

func EditMemory(svc memories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := memoryPath(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body memoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mem, err := svc.Edit(r.Context(), target.listingID, middleware.UserIDFromContext(r.Context()), body.MomentRef, target.memoryID, body.Text)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mem)
	}
}

func DeleteMemory(svc memories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := memoryPath(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ref, err := momentRefFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), target.listingID, middleware.UserIDFromContext(r.Context()), ref, target.memoryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func ToggleMemoryHidden(svc memories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := memoryPath(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var ref listings.MomentRef
		if err := validators.DecodeJSONBody(r, &ref); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mem, err := svc.ToggleHidden(r.Context(), target.listingID, middleware.UserIDFromContext(r.Context()), ref, target.memoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mem)
	}
}

package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/api/middleware"
	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/api/validators"
	"github.com/stadiumcard/stadiumcard-backend/internal/history"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/visibility"
)

const maxPeekIDs = 50

type DetailReader interface {
	Get(ctx context.Context, listingID uuid.UUID, viewerID string, peek []string) (*history.Detail, error)
}

type listingDetailResponse struct {
	listingResponse
	IsOwner            bool                    `json:"is_owner"`
	HistoryUnavailable bool                    `json:"history_unavailable,omitempty"`
	Moments            []visibility.MomentView `json:"moments"`
}

// ListingDetail renders a listing and its provenance for the caller, who may
// be anonymous. ?peek= reveals specific hidden memories.
func ListingDetail(view DetailReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		peek := validators.QueryList(r, "peek", maxPeekIDs)
		detail, err := view.Get(r.Context(), id, middleware.UserIDFromContext(r.Context()), peek)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingDetailResponse{
			listingResponse:    newListingResponse(detail.Listing),
			IsOwner:            detail.IsOwner,
			HistoryUnavailable: detail.HistoryUnavailable,
			Moments:            detail.Moments,
		})
	}
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,notblank"`
}

func SetListingStatus(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseListingStatus(strings.ToLower(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": "must be one of draft, display, active, completed"}))
			return
		}
		listing, err := svc.SetStatus(r.Context(), id, middleware.UserIDFromContext(r.Context()), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingResponse(listing))
	}
}

func DeleteListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SoftDelete(r.Context(), id, middleware.UserIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func RestoreListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Restore(r.Context(), id, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListingResponse(listing))
	}
}

// ToggleMomentHidden flips a moment's visibility for non-owners.
func ToggleMomentHidden(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var ref listings.MomentRef
		if err := validators.DecodeJSONBody(r, &ref); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		moment, err := svc.ToggleMomentHidden(r.Context(), id, middleware.UserIDFromContext(r.Context()), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"moment_id": moment.ID, "is_hidden": moment.IsHidden})
	}
}

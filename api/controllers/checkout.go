package controllers

import (
	"net/http"

	"github.com/stadiumcard/stadiumcard-backend/api/middleware"
	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/api/validators"
	checkoutsvc "github.com/stadiumcard/stadiumcard-backend/internal/checkout"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

type reserveRequest struct {
	ShippingDetails dbtypes.ShippingDetails `json:"shipping_details"`
}

type reserveResponse struct {
	Order     orderResponse `json:"order"`
	Refreshed bool          `json:"refreshed"`
}

// Reserve holds the listing for the caller. A first reservation answers 201,
// a refresh of the caller's own pending order answers 200.
func Reserve(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "listingID", listings.ReasonItem)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reserveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Reserve(r.Context(), id, middleware.UserIDFromContext(r.Context()), body.ShippingDetails)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if res.Refreshed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, reserveResponse{Order: newOrderResponse(res.Order), Refreshed: res.Refreshed})
	}
}

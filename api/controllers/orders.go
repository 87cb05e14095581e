package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/api/middleware"
	"github.com/stadiumcard/stadiumcard-backend/api/responses"
	"github.com/stadiumcard/stadiumcard-backend/api/validators"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	ordersvc "github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pagination"
)

type CopyResolver interface {
	Resolve(ctx context.Context, orderID uuid.UUID, callerID string) (*ownership.Resolution, error)
}

func orderID(r *http.Request) (uuid.UUID, error) {
	return validators.PathUUID(r, "orderID", listings.ReasonOrder)
}

func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), id, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type orderPage struct {
	Items      []orderResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ListOrders pages the caller's purchases (?as=buyer, the default) or sales
// (?as=seller).
func ListOrders(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := pagination.Params{Cursor: q.Get("cursor")}
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = limit
		}
		side := ordersvc.Side(strings.ToLower(strings.TrimSpace(q.Get("as"))))
		page, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()), side, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := orderPage{Items: make([]orderResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for i := range page.Items {
			out.Items = append(out.Items, newOrderResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// CancelOrder releases the listing. Either party may cancel a non-terminal order.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), id, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"max=64"`
	Carrier        string `json:"carrier" validate:"max=64"`
}

func ShipOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body shipRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkShipped(r.Context(), id, middleware.UserIDFromContext(r.Context()), ordersvc.ShipInput{
			TrackingNumber: validators.SanitizeString(body.TrackingNumber, 64),
			Carrier:        validators.SanitizeString(body.Carrier, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type receiveResponse struct {
	Order     orderResponse    `json:"order"`
	BuyerCopy *listingResponse `json:"buyer_copy,omitempty"`
}

func ReceiveOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.MarkReceived(r.Context(), id, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := receiveResponse{Order: newOrderResponse(res.Order)}
		if res.BuyerCopy != nil {
			copyView := newListingResponse(res.BuyerCopy)
			out.BuyerCopy = &copyView
		}
		responses.WriteSuccess(w, out)
	}
}

type copySyncingResponse struct {
	Status       string `json:"status"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

// OrderCopy returns the buyer's copy of the purchased listing. While the
// payment pipeline has not produced it yet the answer is 202 syncing, which
// clients poll on retryAfterMs.
func OrderCopy(resolver CopyResolver, retryAfter time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := resolver.Resolve(r.Context(), id, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !res.Ready() {
			responses.WriteAccepted(w, copySyncingResponse{
				Status:       "syncing",
				RetryAfterMs: retryAfter.Milliseconds(),
			}, retryAfter)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status":  "ready",
			"path":    res.Path,
			"listing": newListingResponse(res.Listing),
		})
	}
}

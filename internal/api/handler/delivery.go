package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/api/request"
	"github.com/edvin/timeoff/internal/api/response"
	"github.com/edvin/timeoff/internal/core"
)

// Delivery exposes the email delivery operations of a request.
type Delivery struct {
	svc *core.DispatchService
}

func NewDelivery(svc *core.DispatchService) *Delivery {
	return &Delivery{svc: svc}
}

func (h *Delivery) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, requestID, userID string) (*core.DeliveryResult, error)) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := op(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// Resend sends the request email again. Only automatic-mode requests can be
// resent; a failed send is reported in the result, not as an error.
func (h *Delivery) Resend(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.Resend)
}

// ConfirmSent records that the user sent a manual-mode email themselves.
func (h *Delivery) ConfirmSent(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.ConfirmSent)
}

func (h *Delivery) ResetDeliveryState(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.ResetDeliveryState)
}

func (h *Delivery) EmailContent(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := h.svc.EmailContent(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, content)
}

func (h *Delivery) EmailStatus(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.svc.EmailStatus(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, status)
}

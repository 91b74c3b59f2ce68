package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/api/request"
	"github.com/edvin/timeoff/internal/api/response"
	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

type Status struct {
	svc *core.StatusService
}

func NewStatus(svc *core.StatusService) *Status {
	return &Status{svc: svc}
}

// Set applies a status to a request, and by default to every day of its
// group.
func (h *Status) Set(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetStatus
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	applyToGroup := true
	if req.ApplyToGroup != nil {
		applyToGroup = *req.ApplyToGroup
	}

	result, err := h.svc.SetStatus(r.Context(), mw.GetActor(r.Context()), core.StatusUpdate{
		RequestID:       id,
		Target:          model.Status(req.Status),
		Method:          req.Method,
		DenialReason:    req.DenialReason,
		ApplyToGroup:    applyToGroup,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

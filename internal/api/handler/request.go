package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/api/request"
	"github.com/edvin/timeoff/internal/api/response"
	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

type TimeOff struct {
	requests *core.RequestService
	dispatch *core.DispatchService
}

func NewTimeOff(requests *core.RequestService, dispatch *core.DispatchService) *TimeOff {
	return &TimeOff{requests: requests, dispatch: dispatch}
}

type createResponse struct {
	Requests []model.Request      `json:"requests"`
	IsGroup  bool                 `json:"is_group"`
	GroupID  *string              `json:"group_id"`
	Delivery *core.DeliveryResult `json:"delivery"`
}

// Create stores the requests for the given dates and then dispatches their
// email. The rows are committed before the email goes out, so a delivery
// problem never fails the call.
func (h *TimeOff) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateTimeOff
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	dates, err := request.ParseDates(req.Dates)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	userID := mw.GetActor(ctx).UserID
	rows, err := h.requests.Create(ctx, userID, dates, core.RequestFields{
		Type:          model.RequestType(req.Type),
		FlightNumber:  req.FlightNumber,
		CustomMessage: req.CustomMessage,
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	resp := createResponse{Requests: rows, GroupID: rows[0].GroupID, IsGroup: rows[0].IsGrouped()}
	delivery, err := h.dispatch.Dispatch(ctx, rows[0].ID, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("request_id", rows[0].ID).Msg("dispatch after create failed")
	} else {
		resp.Delivery = delivery
		if refreshed, err := h.requests.List(ctx, userID, rows[0].StartDate, rows[len(rows)-1].EndDate); err == nil {
			resp.Requests = refreshed
		}
	}

	response.WriteJSON(w, http.StatusCreated, resp)
}

func (h *TimeOff) List(w http.ResponseWriter, r *http.Request) {
	from, err := request.DateParam(r, "from")
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := request.DateParam(r, "to")
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.requests.List(r.Context(), mw.GetActor(r.Context()).UserID, from, to)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteList(w, rows)
}

func (h *TimeOff) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.requests.Get(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, req)
}

// Update changes the content of an editable request. Every row of a group is
// updated together.
func (h *TimeOff) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateTimeOff
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	upd := core.RequestUpdate{FlightNumber: req.FlightNumber, CustomMessage: req.CustomMessage}
	if req.Type != nil {
		t := model.RequestType(*req.Type)
		upd.Type = &t
	}

	rows, err := h.requests.Update(r.Context(), id, mw.GetActor(r.Context()).UserID, upd)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteList(w, rows)
}

// Delete removes a request, or its whole group when it is grouped.
func (h *TimeOff) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.requests.Delete(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{"deleted_count": deleted})
}

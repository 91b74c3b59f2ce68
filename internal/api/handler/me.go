package handler

import (
	"net/http"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/api/request"
	"github.com/edvin/timeoff/internal/api/response"
	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

type Me struct {
	users *core.UserService
}

func NewMe(users *core.UserService) *Me {
	return &Me{users: users}
}

func (h *Me) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, user)
}

// UpdatePreferences changes the caller's settings. A new email mode only
// affects requests created afterwards.
func (h *Me) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req request.UpdatePreferences
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs := core.Preferences{Name: req.Name, Code: req.Code, Signature: req.Signature}
	if req.EmailMode != nil {
		mode := model.EmailMode(*req.EmailMode)
		prefs.EmailMode = &mode
	}

	user, err := h.users.UpdatePreferences(r.Context(), mw.GetActor(r.Context()).UserID, prefs)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, user)
}

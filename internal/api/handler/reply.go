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

type Reply struct {
	svc *core.ReplyService
}

func NewReply(svc *core.ReplyService) *Reply {
	return &Reply{svc: svc}
}

// Check fetches new messages on every thread of the caller's requests.
func (h *Reply) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CheckForNewReplies(r.Context(), mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *Reply) List(w http.ResponseWriter, r *http.Request) {
	replies, err := h.svc.ListReplies(r.Context(), mw.GetActor(r.Context()).UserID, request.BoolParam(r, "unprocessed"))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteList(w, replies)
}

func (h *Reply) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.svc.Get(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, reply)
}

// ApprovalView returns the decision surface for a reply: one day for a
// single request, every day of the group otherwise.
func (h *Reply) ApprovalView(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.ApprovalView(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, view)
}

// Process applies one status to the request a reply belongs to and marks the
// reply processed.
func (h *Reply) Process(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ProcessReply
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.ProcessReply(r.Context(), id, mw.GetActor(r.Context()).UserID, model.Status(req.Status))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// ProcessIndividual applies a separate status to each day of a group reply.
func (h *Reply) ProcessIndividual(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ProcessReplyIndividual
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	decisions := make([]core.Decision, len(req.Decisions))
	for i, d := range req.Decisions {
		decisions[i] = core.Decision{RequestID: d.RequestID, Status: model.Status(d.Status)}
	}

	result, err := h.svc.ProcessReplyIndividual(r.Context(), id, mw.GetActor(r.Context()).UserID, decisions)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// Respond answers a reply on its thread. The reply is not marked processed.
func (h *Reply) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.RespondToReply
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.svc.Respond(r.Context(), id, mw.GetActor(r.Context()).UserID, req.Message)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, reply)
}

// Conversation returns the thread of a request, newest message first.
func (h *Reply) Conversation(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.svc.Conversation(r.Context(), id, mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteList(w, messages)
}

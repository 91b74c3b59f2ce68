package handler

import (
	"context"
	"fmt"
	"net/http"

	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/api/response"
	"github.com/edvin/timeoff/internal/core"
)

// MailboxConnector runs the OAuth consent flow of a mail provider.
type MailboxConnector interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
}

// StateSigner issues and checks the OAuth state parameter.
type StateSigner interface {
	IssueMailboxState(userID string) (string, error)
	ValidateMailboxState(state string) (string, error)
}

// Mailbox connects a user's mailbox so request emails can be sent from it.
type Mailbox struct {
	connector MailboxConnector
	states    StateSigner
}

func NewMailbox(connector MailboxConnector, states StateSigner) *Mailbox {
	return &Mailbox{connector: connector, states: states}
}

// Connect returns the provider consent URL for the caller.
func (h *Mailbox) Connect(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.IssueMailboxState(mw.GetActor(r.Context()).UserID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"url": h.connector.AuthURL(state)})
}

// Callback completes the consent flow. It is reached by a browser redirect,
// so the user is identified by the state rather than a bearer token.
func (h *Mailbox) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		response.WriteError(w, http.StatusBadRequest, "mailbox connection refused: "+msg)
		return
	}
	code := q.Get("code")
	if code == "" {
		response.WriteError(w, http.StatusBadRequest, "missing code")
		return
	}

	userID, err := h.states.ValidateMailboxState(q.Get("state"))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	if err := h.connector.Exchange(r.Context(), userID, code); err != nil {
		response.WriteServiceError(w, r, fmt.Errorf("%w: %v", core.ErrExternalService, err))
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

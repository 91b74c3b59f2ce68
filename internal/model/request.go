package model

import (
	"errors"
	"time"
)

// ErrEmailNotDispatched is returned by ApplyStatus when the request's email
// has not left draft state.
var ErrEmailNotDispatched = errors.New("email has not been sent or confirmed")

// Request is one calendar day of time off. A multi-day request is several
// rows sharing GroupID.
type Request struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	GroupID            *string     `json:"group_id"`
	StartDate          time.Time   `json:"start_date"`
	EndDate            time.Time   `json:"end_date"`
	Type               RequestType `json:"type"`
	FlightNumber       *string     `json:"flight_number"`
	Status             Status      `json:"status"`
	StatusUpdateMethod *string     `json:"status_update_method"`
	StatusUpdatedAt    *time.Time  `json:"status_updated_at"`
	ApprovalDate       *time.Time  `json:"approval_date"`
	DenialReason       *string     `json:"denial_reason"`
	CustomMessage      *string     `json:"custom_message"`
	NeedsReview        bool        `json:"needs_review"`

	// EmailMode is fixed at creation. Exactly one of Automatic and Manual is
	// set, matching the mode.
	EmailMode EmailMode          `json:"email_mode"`
	Automatic *AutomaticDelivery `json:"automatic,omitempty"`
	Manual    *ManualDelivery    `json:"manual,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutomaticDelivery is the delivery state of a system-sent request email.
type AutomaticDelivery struct {
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sent_at"`
	Failed       bool       `json:"failed"`
	FailedAt     *time.Time `json:"failed_at"`
	Error        *string    `json:"error"`
	FailureCount int        `json:"failure_count"`
	ThreadID     *string    `json:"thread_id"`
	MessageID    *string    `json:"message_id"`
}

// ManualDelivery holds the frozen content the user copies into their own
// mail client, and whether they confirmed sending it.
type ManualDelivery struct {
	Content     *EmailContent `json:"content"`
	Confirmed   bool          `json:"confirmed"`
	ConfirmedAt *time.Time    `json:"confirmed_at"`
}

// EmailContent is a rendered email.
type EmailContent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewDelivery returns the initial delivery state for mode.
func NewDelivery(mode EmailMode) (*AutomaticDelivery, *ManualDelivery) {
	if mode == EmailModeAutomatic {
		return &AutomaticDelivery{}, nil
	}
	return nil, &ManualDelivery{}
}

// EmailDispatched reports whether correspondence has left draft state.
func (r *Request) EmailDispatched() bool {
	switch r.EmailMode {
	case EmailModeAutomatic:
		return r.Automatic != nil && r.Automatic.Sent
	case EmailModeManual:
		return r.Manual != nil && r.Manual.Confirmed
	}
	return false
}

// Editable reports whether dates and content may still change.
func (r *Request) Editable() bool {
	return r.Status == StatusPending && !r.EmailDispatched()
}

// ThreadID returns the correspondence thread, if any.
func (r *Request) ThreadID() string {
	if r.Automatic != nil && r.Automatic.ThreadID != nil {
		return *r.Automatic.ThreadID
	}
	return ""
}

// IsGrouped reports whether the row belongs to a multi-day request.
func (r *Request) IsGrouped() bool {
	return r.GroupID != nil && *r.GroupID != ""
}

// StatusChange describes a status update.
type StatusChange struct {
	Target       Status
	Method       string
	DenialReason *string
	At           time.Time
}

// ApplyStatus returns r with the change applied. Every status is reachable
// from every other, self-transitions included, once the email has gone out.
func ApplyStatus(r Request, c StatusChange) (Request, error) {
	if !r.EmailDispatched() {
		return r, ErrEmailNotDispatched
	}

	at := c.At
	method := c.Method
	r.Status = c.Target
	r.StatusUpdateMethod = &method
	r.StatusUpdatedAt = &at

	switch c.Target {
	case StatusApproved:
		r.ApprovalDate = &at
		r.DenialReason = nil
	case StatusDenied:
		r.ApprovalDate = nil
		r.DenialReason = c.DenialReason
	case StatusPending:
		r.ApprovalDate = nil
		r.DenialReason = nil
	}
	return r, nil
}

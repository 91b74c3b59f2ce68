package model

// Request approval status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	}
	return false
}

// Provenance tags recorded in status_update_method.
const (
	MethodManualUserUpdate  = "manual_user_update"
	MethodAdminUpdate       = "admin_update"
	MethodReplyEmailParsing = "reply_email_parsing"
)

// RequestType is the kind of time off asked for on one day.
type RequestType string

const (
	TypeDayOff       RequestType = "day_off"
	TypeAfternoonOff RequestType = "afternoon_off"
	TypeMorningOff   RequestType = "morning_off"
	TypeFlight       RequestType = "flight"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeDayOff, TypeAfternoonOff, TypeMorningOff, TypeFlight:
		return true
	}
	return false
}

// Label is the human wording used in email bodies.
func (t RequestType) Label() string {
	switch t {
	case TypeDayOff:
		return "Day off"
	case TypeAfternoonOff:
		return "Afternoon off"
	case TypeMorningOff:
		return "Morning off"
	case TypeFlight:
		return "Flight"
	}
	return string(t)
}

// EmailMode selects how correspondence for a request is delivered.
type EmailMode string

const (
	EmailModeManual    EmailMode = "manual"
	EmailModeAutomatic EmailMode = "automatic"
)

func (m EmailMode) Valid() bool {
	return m == EmailModeManual || m == EmailModeAutomatic
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

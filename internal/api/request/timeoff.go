package request

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateTimeOff creates one request per date. Several dates must be
// consecutive days and become a group.
type CreateTimeOff struct {
	Dates         []string `json:"dates" validate:"required,min=1,max=31,dive,required"`
	Type          string   `json:"type" validate:"required,oneof=day_off afternoon_off morning_off flight"`
	FlightNumber  *string  `json:"flight_number" validate:"omitempty,max=16"`
	CustomMessage *string  `json:"custom_message" validate:"omitempty,max=2000"`
}

type UpdateTimeOff struct {
	Type          *string `json:"type" validate:"omitempty,oneof=day_off afternoon_off morning_off flight"`
	FlightNumber  *string `json:"flight_number" validate:"omitempty,max=16"`
	CustomMessage *string `json:"custom_message" validate:"omitempty,max=2000"`
}

type SetStatus struct {
	Status string `json:"status" validate:"required,oneof=pending approved denied"`
	Method string `json:"method" validate:"omitempty,oneof=manual_user_update admin_update"`
	// ApplyToGroup defaults to true.
	ApplyToGroup    *bool   `json:"apply_to_group"`
	DenialReason    *string `json:"denial_reason" validate:"omitempty,max=2000"`
	ExpectedVersion *int    `json:"expected_version" validate:"omitempty,min=1"`
}

type ProcessReply struct {
	Status string `json:"status" validate:"required,oneof=pending approved denied"`
}

type Decision struct {
	RequestID string `json:"request_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=pending approved denied"`
}

type ProcessReplyIndividual struct {
	Decisions []Decision `json:"decisions" validate:"required,min=1,dive"`
}

type RespondToReply struct {
	Message string `json:"message" validate:"required,max=20000"`
}

type UpdatePreferences struct {
	EmailMode *string `json:"email_mode" validate:"omitempty,oneof=manual automatic"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=200"`
	Code      *string `json:"code" validate:"omitempty,min=1,max=16"`
	Signature *string `json:"signature" validate:"omitempty,max=2000"`
}

package model

import "time"

// Reply is an inbound message on a request thread, with the user's optional
// answer to it.
type Reply struct {
	ID                string     `json:"id"`
	RequestID         string     `json:"request_id"`
	UserID            string     `json:"user_id"`
	ThreadID          string     `json:"thread_id"`
	MessageID         string     `json:"message_id"`
	InternetMessageID *string    `json:"internet_message_id,omitempty"`
	FromEmail         string     `json:"from_email"`
	FromName          *string    `json:"from_name"`
	Subject           *string    `json:"subject"`
	Content           string     `json:"content"`
	RawContent        string     `json:"-"`
	ReceivedAt        time.Time  `json:"received_at"`
	IsProcessed       bool       `json:"is_processed"`
	ProcessedAt       *time.Time `json:"processed_at"`
	ProcessedBy       *string    `json:"processed_by"`
	UserReplySent     bool       `json:"user_reply_sent"`
	UserReplyContent  *string    `json:"user_reply_content"`
	UserReplySentAt   *time.Time `json:"user_reply_sent_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Conversation roles.
const (
	RoleManager = "manager"
	RoleSender  = "user"
)

// ConversationMessage is one entry of a reply thread as shown to the user.
type ConversationMessage struct {
	ReplyID   string    `json:"reply_id"`
	Role      string    `json:"role"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Package mail defines the contract between the request engine and a mail
// provider, plus helpers shared by the provider adapters.
package mail

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("mail transport not configured")

// OutgoingMessage is a plain-text email to send on behalf of a user.
type OutgoingMessage struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
	// ThreadID continues an existing thread. Empty starts a new one.
	ThreadID string
	// InReplyTo is the RFC 5322 Message-ID being answered, if any.
	InReplyTo string
}

// SendResult identifies a sent message at the provider.
type SendResult struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// InboundMessage is one message read from a thread.
type InboundMessage struct {
	ID                string
	ThreadID          string
	InternetMessageID string
	FromEmail         string
	FromName          string
	Subject           string
	TextBody          string
	HTMLBody          string
	ReceivedAt        time.Time
}

// Body returns the plain-text body, converting HTML when no text part exists.
func (m InboundMessage) Body() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	if m.HTMLBody != "" {
		return HTMLToText(m.HTMLBody)
	}
	return ""
}

// Transport sends mail and reads threads for a user's mailbox.
type Transport interface {
	Send(ctx context.Context, userID string, msg OutgoingMessage) (*SendResult, error)
	// FetchThreadMessages returns the thread's messages in chronological
	// order, only those after sinceMessageID when it is set and present.
	FetchThreadMessages(ctx context.Context, userID, threadID, sinceMessageID string) ([]InboundMessage, error)
}

// MessagesAfter drops every message up to and including sinceID. When sinceID
// is empty or not in msgs, msgs is returned unchanged.
func MessagesAfter(msgs []InboundMessage, sinceID string) []InboundMessage {
	if sinceID == "" {
		return msgs
	}
	for i, m := range msgs {
		if m.ID == sinceID {
			return msgs[i+1:]
		}
	}
	return msgs
}

// Disabled is a Transport that fails every call.
type Disabled struct{}

func (Disabled) Send(context.Context, string, OutgoingMessage) (*SendResult, error) {
	return nil, ErrNotConfigured
}

func (Disabled) FetchThreadMessages(context.Context, string, string, string) ([]InboundMessage, error) {
	return nil, ErrNotConfigured
}

package jmap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edvin/timeoff/internal/mail"
)

var (
	usingMail       = []string{"urn:ietf:params:jmap:core", "urn:ietf:params:jmap:mail"}
	usingSubmission = []string{"urn:ietf:params:jmap:core", "urn:ietf:params:jmap:mail", "urn:ietf:params:jmap:submission"}
)

var _ mail.Transport = (*Client)(nil)

type emailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type bodyPart struct {
	PartID string `json:"partId"`
	Type   string `json:"type"`
}

type email struct {
	ID         string         `json:"id"`
	ThreadID   string         `json:"threadId"`
	MessageID  []string       `json:"messageId"`
	From       []emailAddress `json:"from"`
	Subject    string         `json:"subject"`
	ReceivedAt time.Time      `json:"receivedAt"`
	TextBody   []bodyPart     `json:"textBody"`
	HTMLBody   []bodyPart     `json:"htmlBody"`
	BodyValues map[string]struct {
		Value string `json:"value"`
	} `json:"bodyValues"`
}

type setError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Send stores msg in the user's Sent mailbox and submits it for delivery.
func (c *Client) Send(ctx context.Context, userID string, msg mail.OutgoingMessage) (*mail.SendResult, error) {
	accountID, err := c.accountID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sentMailbox, identityID, err := c.sendContext(ctx, accountID, msg.From)
	if err != nil {
		return nil, err
	}

	draft := map[string]any{
		"mailboxIds": map[string]bool{sentMailbox: true},
		"keywords":   map[string]bool{"$seen": true},
		"from":       []emailAddress{{Name: msg.FromName, Email: msg.From}},
		"to":         []emailAddress{{Email: msg.To}},
		"subject":    msg.Subject,
		"bodyValues": map[string]any{"body": map[string]string{"value": msg.Body}},
		"textBody":   []bodyPart{{PartID: "body", Type: "text/plain"}},
	}
	if ref := strings.Trim(msg.InReplyTo, "<>"); ref != "" {
		draft["inReplyTo"] = []string{ref}
		draft["references"] = []string{ref}
	}

	resp, err := c.call(ctx, usingSubmission,
		[]any{"Email/set", map[string]any{
			"accountId": accountID,
			"create":    map[string]any{"draft": draft},
		}, "0"},
		[]any{"EmailSubmission/set", map[string]any{
			"accountId": accountID,
			"create": map[string]any{"submission": map[string]any{
				"emailId":    "#draft",
				"identityId": identityID,
			}},
		}, "1"},
	)
	if err != nil {
		return nil, fmt.Errorf("send email for user %s: %w", userID, err)
	}

	var created struct {
		Created map[string]struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"created"`
		NotCreated map[string]setError `json:"notCreated"`
	}
	if err := resp.decode("0", &created); err != nil {
		return nil, fmt.Errorf("send email for user %s: %w", userID, err)
	}
	if e, ok := created.NotCreated["draft"]; ok {
		return nil, fmt.Errorf("create email for user %s: %s %s", userID, e.Type, e.Description)
	}
	draftResult, ok := created.Created["draft"]
	if !ok {
		return nil, fmt.Errorf("create email for user %s: no result", userID)
	}

	var submitted struct {
		NotCreated map[string]setError `json:"notCreated"`
	}
	if err := resp.decode("1", &submitted); err != nil {
		return nil, fmt.Errorf("submit email for user %s: %w", userID, err)
	}
	if e, ok := submitted.NotCreated["submission"]; ok {
		return nil, fmt.Errorf("submit email for user %s: %s %s", userID, e.Type, e.Description)
	}

	return &mail.SendResult{MessageID: draftResult.ID, ThreadID: draftResult.ThreadID}, nil
}

// sendContext looks up the Sent mailbox and the identity matching from,
// falling back to the account's first identity.
func (c *Client) sendContext(ctx context.Context, accountID, from string) (mailboxID, identityID string, err error) {
	resp, err := c.call(ctx, usingSubmission,
		[]any{"Mailbox/query", map[string]any{
			"accountId": accountID,
			"filter":    map[string]string{"role": "sent"},
		}, "0"},
		[]any{"Identity/get", map[string]any{
			"accountId": accountID,
		}, "1"},
	)
	if err != nil {
		return "", "", fmt.Errorf("query send context: %w", err)
	}

	var mailboxes struct {
		IDs []string `json:"ids"`
	}
	if err := resp.decode("0", &mailboxes); err != nil {
		return "", "", err
	}
	if len(mailboxes.IDs) == 0 {
		return "", "", fmt.Errorf("account %s has no sent mailbox", accountID)
	}

	var identities struct {
		List []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"list"`
	}
	if err := resp.decode("1", &identities); err != nil {
		return "", "", err
	}
	if len(identities.List) == 0 {
		return "", "", fmt.Errorf("account %s has no identity", accountID)
	}

	identityID = identities.List[0].ID
	for _, id := range identities.List {
		if strings.EqualFold(id.Email, from) {
			identityID = id.ID
			break
		}
	}
	return mailboxes.IDs[0], identityID, nil
}

// FetchThreadMessages reads every email in the thread, oldest first, and
// drops those up to sinceMessageID.
func (c *Client) FetchThreadMessages(ctx context.Context, userID, threadID, sinceMessageID string) ([]mail.InboundMessage, error) {
	accountID, err := c.accountID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, usingMail,
		[]any{"Thread/get", map[string]any{
			"accountId": accountID,
			"ids":       []string{threadID},
		}, "0"},
		[]any{"Email/get", map[string]any{
			"accountId": accountID,
			"#ids": map[string]string{
				"resultOf": "0",
				"name":     "Thread/get",
				"path":     "/list/*/emailIds",
			},
			"properties": []string{
				"id", "threadId", "messageId", "from", "subject", "receivedAt",
				"textBody", "htmlBody", "bodyValues",
			},
			"fetchTextBodyValues": true,
			"fetchHTMLBodyValues": true,
		}, "1"},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}

	var threads struct {
		NotFound []string `json:"notFound"`
	}
	if err := resp.decode("0", &threads); err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}
	if len(threads.NotFound) > 0 {
		return nil, nil
	}

	var emails struct {
		List []email `json:"list"`
	}
	if err := resp.decode("1", &emails); err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}

	sort.SliceStable(emails.List, func(i, j int) bool {
		return emails.List[i].ReceivedAt.Before(emails.List[j].ReceivedAt)
	})

	msgs := make([]mail.InboundMessage, 0, len(emails.List))
	for _, e := range emails.List {
		msgs = append(msgs, e.inbound())
	}
	return mail.MessagesAfter(msgs, sinceMessageID), nil
}

func (e email) inbound() mail.InboundMessage {
	m := mail.InboundMessage{
		ID:         e.ID,
		ThreadID:   e.ThreadID,
		Subject:    e.Subject,
		ReceivedAt: e.ReceivedAt,
		TextBody:   e.bodyText(e.TextBody, "text/plain"),
		HTMLBody:   e.bodyText(e.HTMLBody, "text/html"),
	}
	if len(e.MessageID) > 0 {
		m.InternetMessageID = "<" + e.MessageID[0] + ">"
	}
	if len(e.From) > 0 {
		m.FromEmail = e.From[0].Email
		m.FromName = e.From[0].Name
	}
	return m
}

func (e email) bodyText(parts []bodyPart, contentType string) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type != contentType {
			continue
		}
		if v, ok := e.BodyValues[p.PartID]; ok {
			b.WriteString(v.Value)
		}
	}
	return b.String()
}

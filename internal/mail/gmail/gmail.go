// Package gmail implements mail.Transport on the Gmail API using each user's
// stored OAuth token.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/platform"
)

// TokenStore persists the OAuth token granted by each user.
type TokenStore interface {
	MailToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveMailToken(ctx context.Context, userID string, tok *oauth2.Token) error
}

type Client struct {
	config   *oauth2.Config
	tokens   TokenStore
	endpoint string
	now      func() time.Time
}

var _ mail.Transport = (*Client)(nil)

// NewConfig returns the OAuth configuration for sending and reading mail.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gm.GmailSendScope, gm.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

func NewClient(config *oauth2.Config, tokens TokenStore) *Client {
	return &Client{config: config, tokens: tokens, now: time.Now}
}

// WithEndpoint points the client at a different API base URL.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// AuthURL returns the consent page URL. Offline access is requested so a
// refresh token is issued.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it for the user.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange oauth code: %w", err)
	}
	if err := c.tokens.SaveMailToken(ctx, userID, tok); err != nil {
		return fmt.Errorf("save mail token for user %s: %w", userID, err)
	}
	return nil
}

func (c *Client) service(ctx context.Context, userID string) (*gm.Service, error) {
	tok, err := c.tokens.MailToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mail token for user %s: %w", userID, err)
	}

	opts := []option.ClientOption{option.WithTokenSource(c.config.TokenSource(ctx, tok))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func (c *Client) Send(ctx context.Context, userID string, msg mail.OutgoingMessage) (*mail.SendResult, error) {
	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := mail.Compose(msg, platform.NewMessageID(senderHost(msg.From)), c.now())
	if err != nil {
		return nil, fmt.Errorf("compose message for user %s: %w", userID, err)
	}
	sent, err := svc.Users.Messages.Send("me", &gm.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: msg.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("send gmail message for user %s: %w", userID, err)
	}
	return &mail.SendResult{MessageID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// FetchThreadMessages returns the thread's messages oldest first. A thread
// the mailbox no longer has yields no messages.
func (c *Client) FetchThreadMessages(ctx context.Context, userID, threadID, sinceMessageID string) ([]mail.InboundMessage, error) {
	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	thread, err := svc.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get gmail thread %s: %w", threadID, err)
	}

	msgs := make([]mail.InboundMessage, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		msgs = append(msgs, inbound(m))
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})
	return mail.MessagesAfter(msgs, sinceMessageID), nil
}

func inbound(m *gm.Message) mail.InboundMessage {
	in := mail.InboundMessage{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		ReceivedAt: time.UnixMilli(m.InternalDate).UTC(),
	}
	if m.Payload == nil {
		return in
	}

	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			in.FromName, in.FromEmail = mail.ParseAddress(h.Value)
		case "subject":
			in.Subject = h.Value
		case "message-id":
			in.InternetMessageID = h.Value
		}
	}

	walkParts(m.Payload, func(p *gm.MessagePart) {
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		switch {
		case strings.HasPrefix(p.MimeType, "text/plain") && in.TextBody == "":
			in.TextBody = decodeBody(p.Body.Data)
		case strings.HasPrefix(p.MimeType, "text/html") && in.HTMLBody == "":
			in.HTMLBody = decodeBody(p.Body.Data)
		}
	})
	return in
}

func senderHost(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

func walkParts(p *gm.MessagePart, fn func(*gm.MessagePart)) {
	fn(p)
	for _, child := range p.Parts {
		walkParts(child, fn)
	}
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}

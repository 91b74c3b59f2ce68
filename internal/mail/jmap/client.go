// Package jmap implements mail.Transport against a Stalwart server, acting
// on user mailboxes with the admin credentials.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// MailboxResolver maps an application user to their mailbox address.
type MailboxResolver interface {
	MailboxAddress(ctx context.Context, userID string) (string, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	adminToken string
	mailboxes  MailboxResolver

	mu         sync.Mutex
	accountIDs map[string]string
}

func NewClient(baseURL, adminToken string, mailboxes MailboxResolver) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		adminToken: adminToken,
		mailboxes:  mailboxes,
		accountIDs: map[string]string{},
	}
}

// accountID resolves the JMAP account id of the user's mailbox. Results are
// cached per address; principal ids never change.
func (c *Client) accountID(ctx context.Context, userID string) (string, error) {
	address, err := c.mailboxes.MailboxAddress(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve mailbox for user %s: %w", userID, err)
	}

	c.mu.Lock()
	id, ok := c.accountIDs[address]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	principal, err := c.principalID(ctx, address)
	if err != nil {
		return "", err
	}
	id = EncodePrincipalID(principal)

	c.mu.Lock()
	c.accountIDs[address] = id
	c.mu.Unlock()
	return id, nil
}

// principalID retrieves the numeric principal id for an account name from
// the Stalwart admin API.
func (c *Client) principalID(ctx context.Context, accountName string) (uint32, error) {
	url := fmt.Sprintf("%s/api/principal/%s", c.baseURL, accountName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("get principal id request: %w", err)
	}
	req.SetBasicAuth("admin", c.adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get principal id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("get principal id %s: status %d: %s", accountName, resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			ID uint32 `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode principal id: %w", err)
	}
	return result.Data.ID, nil
}

// call sends one JMAP request and returns its method responses.
func (c *Client) call(ctx context.Context, using []string, calls ...[]any) (methodResponses, error) {
	body, err := json.Marshal(map[string]any{
		"using":       using,
		"methodCalls": calls,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal jmap request: %w", err)
	}

	url := fmt.Sprintf("%s/jmap", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jmap request: %w", err)
	}
	req.SetBasicAuth("admin", c.adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jmap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jmap request: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		MethodResponses methodResponses `json:"methodResponses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode jmap response: %w", err)
	}
	return result.MethodResponses, nil
}

// methodResponses is the [name, arguments, callId] triples of a response.
type methodResponses [][]json.RawMessage

// decode unmarshals the arguments of the response with the given call id.
func (m methodResponses) decode(callID string, v any) error {
	for _, r := range m {
		if len(r) != 3 {
			continue
		}
		var id, name string
		if json.Unmarshal(r[2], &id) != nil || id != callID {
			continue
		}
		if err := json.Unmarshal(r[0], &name); err != nil {
			return fmt.Errorf("decode method name: %w", err)
		}
		if name == "error" {
			var e struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			_ = json.Unmarshal(r[1], &e)
			return fmt.Errorf("jmap method error: %s %s", e.Type, e.Description)
		}
		if err := json.Unmarshal(r[1], v); err != nil {
			return fmt.Errorf("decode %s response: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("jmap response missing call %s", callID)
}

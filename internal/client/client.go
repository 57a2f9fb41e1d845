// Package client is the HTTP implementation of the repository RPC
// boundary. It speaks the /v1/groups surface and translates HTTP
// failures back into the repository's sentinel errors, so callers and
// the coordinator handle in-process and remote repositories the same
// way.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/iliyamo/group-cart/internal/model"
	"github.com/iliyamo/group-cart/internal/repository"
)

// Client calls the group API of a coordinator server.
type Client struct {
	baseURL string
	hc      *http.Client
	// ParticipantToken, when set, is sent as a bearer token so the
	// server can attribute requests to this participant.
	ParticipantToken string
}

// New returns a client for the server at baseURL (no trailing slash).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Data  *model.Group `json:"data"`
	Error string       `json:"error"`
}

// Create opens a new group wrapping cartID with owner as its Owner.
func (c *Client) Create(ctx context.Context, cartID string, owner model.Member) (*model.Group, error) {
	return c.post(ctx, "/v1/groups/new", map[string]any{"cartId": cartID, "member": owner})
}

// Join adds member to the group, idempotently by uuid.
func (c *Client) Join(ctx context.Context, groupID string, member model.Member) (*model.Group, error) {
	return c.post(ctx, "/v1/groups/join", map[string]any{"groupId": groupID, "member": member})
}

// Get fetches the group record; a null data field maps to ErrNotFound.
func (c *Client) Get(ctx context.Context, groupID string) (*model.Group, error) {
	u := fmt.Sprintf("%s/v1/groups/group?groupId=%s", c.baseURL, url.QueryEscape(groupID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// UpdateSelection applies one add/remove to a member's own selections.
func (c *Client) UpdateSelection(ctx context.Context, groupID string, upd model.SelectionUpdate) (*model.Group, error) {
	return c.post(ctx, "/v1/groups/update-variants", map[string]any{"groupId": groupID, "payload": upd})
}

// UpdateMember merges the member's mutable fields into the group.
func (c *Client) UpdateMember(ctx context.Context, groupID string, member model.Member) (*model.Group, error) {
	return c.post(ctx, "/v1/groups/update-member", map[string]any{"groupId": groupID, "member": member})
}

// Transition asks for a status change on behalf of actorUUID. One
// endpoint exists per target state.
func (c *Client) Transition(ctx context.Context, groupID string, target model.GroupStatus, actorUUID string) (*model.Group, error) {
	var path string
	switch target {
	case model.StatusCheckout:
		path = "/v1/groups/checkout"
	case model.StatusCart:
		path = "/v1/groups/cart"
	case model.StatusCompleted:
		path = "/v1/groups/complete"
	default:
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrValidation, target)
	}
	return c.post(ctx, path, map[string]any{"groupId": groupID, "userId": actorUUID})
}

func (c *Client) post(ctx context.Context, path string, body any) (*model.Group, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*model.Group, error) {
	if c.ParticipantToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.ParticipantToken)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	if err := statusError(resp.StatusCode, env.Error); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, repository.ErrNotFound
	}
	return env.Data, nil
}

// statusError maps the server's HTTP status back onto the repository's
// error taxonomy.
func statusError(code int, msg string) error {
	switch code {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		if msg == "member not found" {
			return repository.ErrMemberNotFound
		}
		return repository.ErrNotFound
	case http.StatusForbidden:
		return repository.ErrUnauthorized
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", repository.ErrValidation, msg)
	case http.StatusConflict:
		return repository.ErrConflict
	default:
		return fmt.Errorf("server error (%d): %s", code, msg)
	}
}

package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient asks the commerce backend for a cart's completion state
// over its JSON API. The backend response carries a completedAt field
// that is null until checkout finishes.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPClient returns a client for the commerce backend at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Completed fetches the cart and reports whether completedAt is set.
func (c *HTTPClient) Completed(ctx context.Context, cartID string) (bool, error) {
	u := fmt.Sprintf("%s/carts/%s", c.baseURL, url.PathEscape(cartID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch cart %s: %w", cartID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch cart %s: status %d", cartID, resp.StatusCode)
	}
	var body struct {
		CompletedAt *string `json:"completedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode cart %s: %w", cartID, err)
	}
	return body.CompletedAt != nil && *body.CompletedAt != "", nil
}

// Package rating talks to the external rate provider that prices inbound
// handling, storage and outbound fulfilment for a received shipment.
package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tradewind-ops/tradewind/internal/costs"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

const collaborator = "rating service"

// Client wraps interactions with the rating API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping checks if the rating service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &shared.ExternalDependencyError{Collaborator: collaborator, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// Quote prices the system cost rows for a received shipment.
func (c *Client) Quote(ctx context.Context, req costs.RateRequest) ([]costs.RatedCost, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/quotes", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &shared.ExternalDependencyError{Collaborator: collaborator, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("quote failed with status %d: %s", resp.StatusCode, string(detail))}
	}
	var quoted struct {
		Costs []costs.RatedCost `json:"costs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quoted); err != nil {
		return nil, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("decode quote response: %w", err)}
	}
	return quoted.Costs, nil
}

// Package docstore talks to the external document store that keeps order
// paperwork and rendered artifacts. Uploads never flow through this service;
// the store hands out pre-signed slots and clients PUT bytes directly.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

const collaborator = "document store"

// Client wraps interactions with the document store API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Ping checks if the document store is available.
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

// IssueSlot asks the store for a pre-signed upload location.
func (c *Client) IssueSlot(ctx context.Context, req orders.UploadSlotRequest) (*orders.UploadSlot, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/slots", c.baseURL), bytes.NewReader(payload))
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
		return nil, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("slot request failed with status %d: %s", resp.StatusCode, string(detail))}
	}
	var slot orders.UploadSlot
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return nil, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("decode slot response: %w", err)}
	}
	return &slot, nil
}

// Store writes a rendered artifact directly into the store. Used by the
// worker, which holds the bytes already and needs no pre-signed slot.
func (c *Client) Store(ctx context.Context, orderID int64, kind orders.OutputKind, fileName string, pdf []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return "", err
	}
	if err := writer.WriteField("orderId", strconv.FormatInt(orderID, 10)); err != nil {
		return "", err
	}
	if err := writer.WriteField("kind", string(kind)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/objects", c.baseURL), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &shared.ExternalDependencyError{Collaborator: collaborator, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("store failed with status %d: %s", resp.StatusCode, string(detail))}
	}
	var stored struct {
		StorageKey string `json:"storageKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return "", &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("decode store response: %w", err)}
	}
	if stored.StorageKey == "" {
		return "", &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("store returned no storage key")}
	}
	return stored.StorageKey, nil
}

// SweepExpired asks the store to drop upload slots that were issued but never
// used. Returns the number of slots removed.
func (c *Client) SweepExpired(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/slots/sweep", c.baseURL), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &shared.ExternalDependencyError{Collaborator: collaborator, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return 0, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("sweep failed with status %d", resp.StatusCode)}
	}
	var swept struct {
		Removed int `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&swept); err != nil {
		return 0, &shared.ExternalDependencyError{Collaborator: collaborator, Err: fmt.Errorf("decode sweep response: %w", err)}
	}
	return swept.Removed, nil
}

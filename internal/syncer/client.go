package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dtelabs/escrow-api/internal/auth"
	"github.com/dtelabs/escrow-api/internal/types"
)

// StoreError marks a transport-level failure talking to the record store.
// Fetch failures are tolerated by the synchronizer (stale cache, next poll
// retries); mutate failures are surfaced to the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RecordStore is the remote collection surface the synchronizer runs
// against: list, create, update and clear over one shared trade collection.
type RecordStore interface {
	ListTrades(ctx context.Context) ([]types.TradeRecord, error)
	CreateTrade(ctx context.Context, input types.NewTrade) (*types.TradeRecord, error)
	UpdateTrade(ctx context.Context, update types.TradeUpdate) (*types.TradeRecord, error)
	ClearTrades(ctx context.Context) error
}

// Client is the HTTP record store client used by each viewer process.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewClient builds a store client and authenticates against the store's
// token endpoint with the given API credentials.
func NewClient(baseURL, apiKey, apiSecret string) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	token, err := c.authenticate(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	c.authToken = token

	return c, nil
}

func (c *Client) authenticate(apiKey, apiSecret string) (string, error) {
	body, err := json.Marshal(auth.Credentials{APIKey: apiKey, APISecret: apiSecret})
	if err != nil {
		return "", err
	}

	resp, err := c.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", c.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.Token == "" {
		return "", fmt.Errorf("no token in response")
	}

	return result.Data.Token, nil
}

// ListTrades fetches the full collection.
func (c *Client) ListTrades(ctx context.Context) ([]types.TradeRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/trades", nil)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	var result struct {
		Success bool                `json:"success"`
		Data    []types.TradeRecord `json:"data"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	return result.Data, nil
}

// CreateTrade registers a new trade and returns it with its store-minted ID.
func (c *Client) CreateTrade(ctx context.Context, input types.NewTrade) (*types.TradeRecord, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/trades", input)
	if err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}
	req.Header.Set("Idempotency-Key", uuid.New().String())

	var result struct {
		Success bool              `json:"success"`
		Data    types.TradeRecord `json:"data"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}
	if result.Data.TradeID == 0 {
		return nil, &StoreError{Op: "create", Err: fmt.Errorf("no trade ID in response")}
	}

	return &result.Data, nil
}

// UpdateTrade merges a partial record onto the stored one matched by ID.
func (c *Client) UpdateTrade(ctx context.Context, update types.TradeUpdate) (*types.TradeRecord, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/trades", update)
	if err != nil {
		return nil, &StoreError{Op: "update", Err: err}
	}

	var result struct {
		Success bool              `json:"success"`
		Data    types.TradeRecord `json:"data"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, &StoreError{Op: "update", Err: err}
	}

	return &result.Data, nil
}

// ClearTrades empties the collection.
func (c *Client) ClearTrades(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/trades", nil)
	if err != nil {
		return &StoreError{Op: "clear", Err: err}
	}

	if err := c.do(req, nil); err != nil {
		return &StoreError{Op: "clear", Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.authToken))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

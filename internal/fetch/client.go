// Package fetch talks to the external per-category query service: given a
// city, a date and a category, it returns raw event records or fails for
// that category. The service is consumed only through this contract.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// ErrMissingCredentials is fatal for a whole job: without a service
// credential no category is even attempted, and no retry can help.
var ErrMissingCredentials = errors.New("query service credentials not configured")

// Service is the query-service contract the worker depends on. Tests
// substitute a stub.
type Service interface {
	// FetchCategory queries one category for a city/date. The returned
	// records are raw: aggregation and deduplication happen downstream.
	FetchCategory(ctx context.Context, city, date, category string) ([]types.EventRecord, error)
}

// Unconfigured is the Service used when no query-service credentials are
// present. Every fetch fails with ErrMissingCredentials, which workers
// treat as fatal for the whole job.
type Unconfigured struct{}

var _ Service = Unconfigured{}

func (Unconfigured) FetchCategory(context.Context, string, string, string) ([]types.EventRecord, error) {
	return nil, ErrMissingCredentials
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Service = (*Client)(nil)

// NewClient builds a query-service client. The HTTP client carries no
// global timeout: per-attempt timeouts come from the retry policy context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

type queryRequest struct {
	City       string   `json:"city"`
	Date       string   `json:"date"`
	Categories []string `json:"categories"`
}

type queryResponse struct {
	Events []types.EventRecord `json:"events"`
}

func (c *Client) FetchCategory(ctx context.Context, city, date, category string) ([]types.EventRecord, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	body, err := json.Marshal(queryRequest{City: city, Date: date, Categories: []string{category}})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query category %q: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query category %q: status %d: %s", category, resp.StatusCode, snippet)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response for %q: %w", category, err)
	}

	// The service reports the category it was asked for; stamp it anyway
	// so downstream never sees records without one.
	for i := range decoded.Events {
		if decoded.Events[i].Category == "" {
			decoded.Events[i].Category = category
		}
	}
	return decoded.Events, nil
}

// Ping verifies the service is reachable. Used by the diagnostics surface.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query service health: status %d", resp.StatusCode)
	}
	return nil
}

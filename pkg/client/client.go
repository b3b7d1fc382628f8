// Package client provides a Go client for the slitherd API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a slitherd API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new slitherd client. Analysis runs can take minutes, so the
// default timeout is generous.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Finding is one normalized analysis result.
type Finding struct {
	Check       string `json:"check"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Confidence  string `json:"confidence"`
}

// analyzeRequest is the v1 request body.
type analyzeRequest struct {
	Blockchain string `json:"blockchain,omitempty"`
	Address    string `json:"address,omitempty"`
	Code       string `json:"code,omitempty"`
}

// analyzeResponse is the v1 response body.
type analyzeResponse struct {
	Result []Finding `json:"result"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Analyze runs the analyzer against a deployed contract.
func (c *Client) Analyze(ctx context.Context, blockchain, address string) ([]Finding, error) {
	return c.analyze(ctx, analyzeRequest{Blockchain: blockchain, Address: address})
}

// AnalyzeSource runs the analyzer against raw Solidity source.
func (c *Client) AnalyzeSource(ctx context.Context, code string) ([]Finding, error) {
	return c.analyze(ctx, analyzeRequest{Code: code})
}

func (c *Client) analyze(ctx context.Context, reqBody analyzeRequest) ([]Finding, error) {
	var resp analyzeResponse
	if err := c.post(ctx, "/api/v1/analyze", reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if errResp.Error.Code == "" && errResp.Error.Message == "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}

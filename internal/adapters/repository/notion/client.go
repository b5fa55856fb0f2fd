// Package notion stores tasks as pages of a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	// Notion's published average limit is three requests per second.
	defaultRate = 3
)

// APIError is a non-2xx answer from the Notion API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error (%d %s): %s", e.Status, e.Code, e.Message)
}

// NotFound reports whether the error means the object does not exist or is
// not shared with the integration.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.Code == "object_not_found"
}

// Client is a minimal throttled client for the Notion REST API.
type Client struct {
	token   string
	baseURL string
	version string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. A zero rps falls back to three requests per
// second; a nil httpClient uses http.DefaultClient.
func NewClient(token, baseURL, version string, rps float64, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if rps <= 0 {
		rps = defaultRate
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(max(rps, 1))),
	}
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (gjson.Result, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) patch(ctx context.Context, path string, body any) (gjson.Result, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if gjson.ValidBytes(respBody) {
			parsed := gjson.ParseBytes(respBody)
			apiErr.Code = parsed.Get("code").String()
			if msg := parsed.Get("message").String(); msg != "" {
				apiErr.Message = msg
			}
		}
		return gjson.Result{}, apiErr
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("notion returned invalid JSON for %s %s", method, path)
	}
	return gjson.ParseBytes(respBody), nil
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const platformMaxAttempts = 3

// PlatformClient is a shared HTTP client for the fund-platform API backing
// the transactional tools (client search, holdings, schemes, orders).
// Calls are rate limited and retried with exponential backoff.
type PlatformClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewPlatformClient creates a client for the fund-platform API
func NewPlatformClient(baseURL string) *PlatformClient {
	return &PlatformClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// 5 req/s with a small burst is well under the platform's limits
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Get performs a GET request with query parameters
func (c *PlatformClient) Get(ctx context.Context, path string, queryParams url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(queryParams) > 0 {
		fullURL += "?" + queryParams.Encode()
	}
	return c.do(ctx, "GET", fullURL, nil)
}

// Post performs a POST request with a JSON body
func (c *PlatformClient) Post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.do(ctx, "POST", c.baseURL+path, body)
}

func (c *PlatformClient) do(ctx context.Context, method, fullURL string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < platformMaxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		// Retry server-side failures, surface everything else
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("platform error (status %d): %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("platform error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("platform request failed after %d attempts: %w", platformMaxAttempts, lastErr)
}

// Package retrieval defines the document-retrieval collaborator: given an
// organization and a query, it returns the text passages most relevant to
// the query from that org's index. Index building lives in a separate
// service; this package only consumes it.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Retriever fetches relevant passages from an organization's index
type Retriever interface {
	Retrieve(ctx context.Context, orgID, query string) ([]string, error)
}

// HTTPRetriever talks to the retrieval service over HTTP
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRetriever creates a retriever against the given base URL
func NewHTTPRetriever(baseURL string) *HTTPRetriever {
	return &HTTPRetriever{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type retrieveRequest struct {
	OrgID string `json:"org_id"`
	Query string `json:"query"`
}

type retrieveResponse struct {
	Passages []string `json:"passages"`
}

// Retrieve returns the passages for a query, most relevant first
func (r *HTTPRetriever) Retrieve(ctx context.Context, orgID, query string) ([]string, error) {
	body, err := json.Marshal(retrieveRequest{OrgID: orgID, Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retrieve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/retrieve", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("retrieve error (status %d): %s", resp.StatusCode, string(raw))
	}

	var result retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode retrieve response: %w", err)
	}
	return result.Passages, nil
}

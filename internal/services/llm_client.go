package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrUpstreamUnavailable is returned once retries and the fallback model are
// exhausted. The orchestrator converts it into a friendly answer.
var ErrUpstreamUnavailable = errors.New("upstream model unavailable")

// ToolCallRequest is one tool invocation requested by the model
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Completion is a single model response: either a direct answer or a batch
// of tool-call requests.
type Completion struct {
	Text      string
	ToolCalls []ToolCallRequest
}

// CompletionRequest describes one chat-completion call
type CompletionRequest struct {
	Model       string
	Messages    []map[string]interface{}
	Tools       []map[string]interface{}
	MaxTokens   int
	Temperature float64
}

// LLMClient is the language-model collaborator. Implementations must honor
// the context deadline on every call.
type LLMClient interface {
	Complete(ctx context.Context, apiKey string, req *CompletionRequest) (*Completion, error)
	// CompleteStream invokes the streaming variant, calling onDelta for each
	// text fragment, and returns the full accumulated text.
	CompleteStream(ctx context.Context, apiKey string, req *CompletionRequest, onDelta func(string)) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	baseURL       string
	fallbackModel string
	maxRetries    int
	httpClient    *http.Client
}

// NewOpenAIClient creates a client for the given endpoint. fallbackModel is
// tried after the requested model's retries are exhausted; empty disables
// the fallback.
func NewOpenAIClient(baseURL, fallbackModel string, maxRetries int, timeout time.Duration) *OpenAIClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OpenAIClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		fallbackModel: fallbackModel,
		maxRetries:    maxRetries,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Complete calls the model with bounded retries, then once more per retry
// against the fallback model before giving up.
func (c *OpenAIClient) Complete(ctx context.Context, apiKey string, req *CompletionRequest) (*Completion, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		completion, err := c.completeOnce(ctx, apiKey, req.Model, req)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		log.Printf("⚠️  [LLM] Attempt %d/%d on %s failed: %v", attempt+1, c.maxRetries, req.Model, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		time.Sleep(time.Second)
	}

	if c.fallbackModel != "" && c.fallbackModel != req.Model {
		log.Printf("🔀 [LLM] Switching to fallback model %s", c.fallbackModel)
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			completion, err := c.completeOnce(ctx, apiKey, c.fallbackModel, req)
			if err == nil {
				return completion, nil
			}
			lastErr = err
			log.Printf("⚠️  [LLM] Fallback attempt %d/%d failed: %v", attempt+1, c.maxRetries, err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			time.Sleep(time.Second)
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

func (c *OpenAIClient) completeOnce(ctx context.Context, apiKey, model string, req *CompletionRequest) (*Completion, error) {
	reqBody := map[string]interface{}{
		"model":       model,
		"messages":    req.Messages,
		"stream":      false,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		reqBody["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		reqBody["tools"] = req.Tools
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResult struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResult.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := apiResult.Choices[0].Message
	completion := &Completion{Text: message.Content}
	for _, tc := range message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if completion.Text == "" && len(completion.ToolCalls) == 0 {
		return nil, fmt.Errorf("empty model response")
	}
	return completion, nil
}

// CompleteStream runs a streaming completion, emitting each text fragment
// through onDelta. The stream is finite and not restartable; tool calls are
// not supported on this path.
func (c *OpenAIClient) CompleteStream(ctx context.Context, apiKey string, req *CompletionRequest, onDelta func(string)) (string, error) {
	reqBody := map[string]interface{}{
		"model":       req.Model,
		"messages":    req.Messages,
		"stream":      true,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		reqBody["max_tokens"] = req.MaxTokens
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)

	// 1MB buffer: large SSE chunks overflow the 64KB default
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	var fullContent strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			fullContent.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read failed: %w", err)
	}

	if fullContent.Len() == 0 {
		return "", fmt.Errorf("%w: empty stream", ErrUpstreamUnavailable)
	}
	return fullContent.String(), nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const providerOpenAI = "openai"

// Client talks to an OpenAI compatible chat completion API (Groq by default).
// Thread-safe for concurrent use. It never retries; callers wrap it with
// pkg/retry where a retry budget applies.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

var _ TextGenerator = (*Client)(nil)

// NewClient creates a new LLM client with the given configuration
//
// Example:
//
//	client, err := llm.NewClient(&llm.Config{APIKey: key, APIURL: llm.DefaultAPIURL, ...})
//	if err != nil {
//		log.Fatal(err)
//	}
//	text, err := client.GenerateText(ctx, "Hello")
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := &Client{
		config:  config,
		baseURL: config.APIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}

	return client, nil
}

// GenerateText sends prompt as a single user message and returns the first
// choice. Provider failures are mapped to typed errors: 429 rate limited,
// 401 unauthorized, anything else unavailable.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	request := ChatRequest{
		Model:       c.config.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
	elapsed := time.Since(start)
	metrics.ObserveLLMCall(providerOpenAI, c.config.Model, elapsed.Milliseconds(), err == nil)
	if err != nil {
		log.Error("LLM API error after %dms: %v", elapsed.Milliseconds(), err)
		return "", mapProviderError(providerOpenAI, statusOf(err), err)
	}

	log.Info("LLM response received in %dms", elapsed.Milliseconds())
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Message.Content, nil
}

// makeRequest makes a raw HTTP request to the configured LLM API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(responseBody), 500)}
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return &chatResponse, chatResponse.Error
	}

	return &chatResponse, nil
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func mapProviderError(provider string, status int, cause error) error {
	switch status {
	case http.StatusTooManyRequests:
		metrics.IncLLMError(provider, "rate_limited")
		return apperr.NewErrorWithCause(apperr.ErrRateLimited, "Rate limit exceeded. Please try again later.", cause)
	case http.StatusUnauthorized:
		metrics.IncLLMError(provider, "unauthorized")
		return apperr.NewErrorWithCause(apperr.ErrUnauthorized, "Invalid API key configuration.", cause)
	default:
		metrics.IncLLMError(provider, "unavailable")
		return apperr.NewErrorWithCause(apperr.ErrUnavailable, "AI service temporarily unavailable. Please try again later.", cause)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

// AnthropicConfig holds Anthropic client configuration
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicClient generates replies through the Anthropic messages API.
// It returns complete replies only; streaming callers get a
// pseudo-stream from the orchestrator.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(cfg *AnthropicConfig) *AnthropicClient {
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *AnthropicClient) Name() string  { return "anthropic" }
func (c *AnthropicClient) Model() string { return c.model }

func (c *AnthropicClient) Configured() bool { return c.apiKey != "" }

func (c *AnthropicClient) SupportsStreaming() bool { return false }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends a messages request
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Reply, error) {
	msgs := make([]Message, 0, len(req.History)+1)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: "user", Content: req.UserMessage})

	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   1024,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    msgs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("anthropic error: %s", out.Error.Message)
	}
	if len(out.Content) == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	return &Reply{
		Text:  strings.TrimSpace(out.Content[0].Text),
		Model: c.model,
	}, nil
}

// GenerateStream falls back to a complete generation
func (c *AnthropicClient) GenerateStream(ctx context.Context, req *Request, _ TokenFunc) (*Reply, error) {
	return c.Generate(ctx, req)
}

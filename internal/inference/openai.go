package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds OpenAI client configuration
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient generates replies through the OpenAI chat completions
// API. It is the one provider with true incremental delivery.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg *OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Configured() bool { return c.apiKey != "" }

func (c *OpenAIClient) SupportsStreaming() bool { return true }

type openAIRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Messages    []Message `json:"messages"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *OpenAIClient) messages(req *Request) []Message {
	msgs := make([]Message, 0, len(req.History)+2)
	system := req.SystemPrompt
	if system == "" {
		system = "You are a helpful assistant."
	}
	msgs = append(msgs, Message{Role: "system", Content: system})
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: "user", Content: req.UserMessage})
	return msgs
}

func (c *OpenAIClient) post(ctx context.Context, payload openAIRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.httpClient.Do(httpReq)
}

// Generate sends a non-streaming completion request
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Reply, error) {
	resp, err := c.post(ctx, openAIRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages:    c.messages(req),
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai API returned status %d: %s", resp.StatusCode, string(body))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Reply{
		Text:  strings.TrimSpace(out.Choices[0].Message.Content),
		Model: model,
	}, nil
}

// GenerateStream sends a streaming completion request, forwarding
// content deltas to onToken as SSE events arrive
func (c *OpenAIClient) GenerateStream(ctx context.Context, req *Request, onToken TokenFunc) (*Reply, error) {
	resp, err := c.post(ctx, openAIRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Stream:      true,
		Messages:    c.messages(req),
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai stream returned status %d: %s", resp.StatusCode, string(body))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		if onToken != nil {
			onToken(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}

	return &Reply{
		Text:  strings.TrimSpace(full.String()),
		Model: c.model,
	}, nil
}

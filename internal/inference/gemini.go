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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig holds Gemini client configuration
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiClient generates replies through the Gemini generateContent
// API. Complete replies only.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg *GeminiConfig) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *GeminiClient) Name() string  { return "gemini" }
func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Configured() bool { return c.apiKey != "" }

func (c *GeminiClient) SupportsStreaming() bool { return false }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends a generateContent request. Gemini has no system role
// on this endpoint; the system prompt rides as the first user part.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Reply, error) {
	var contents []geminiContent
	if req.SystemPrompt != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.SystemPrompt}}})
	}
	for _, m := range req.History {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.UserMessage}}})

	payload := geminiRequest{Contents: contents}
	payload.GenerationConfig.Temperature = req.Temperature

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, string(body))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("gemini error: %s", out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	return &Reply{
		Text:  strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text),
		Model: c.model,
	}, nil
}

// GenerateStream falls back to a complete generation
func (c *GeminiClient) GenerateStream(ctx context.Context, req *Request, _ TokenFunc) (*Reply, error) {
	return c.Generate(ctx, req)
}

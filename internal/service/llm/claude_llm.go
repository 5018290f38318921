package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClaudeLLM implements LLMService using Anthropic's Messages API
type ClaudeLLM struct {
	apiKey  string
	model   string
	baseURL string
	logger  *zap.Logger
	client  *http.Client
}

// ClaudeConfig holds configuration for Claude LLM
type ClaudeConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

const (
	ClaudeSonnet4    = "claude-sonnet-4-20250514"
	Claude35Haiku    = "claude-3-5-haiku-20241022"
	ClaudeDefaultURL = "https://api.anthropic.com"
	ClaudeAPIVersion = "2023-06-01"
)

// NewClaudeLLM creates a new Claude LLM client
func NewClaudeLLM(config ClaudeConfig, logger *zap.Logger) (*ClaudeLLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Claude API key is required")
	}
	if config.Model == "" {
		config.Model = Claude35Haiku
	}
	if config.BaseURL == "" {
		config.BaseURL = ClaudeDefaultURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	return &ClaudeLLM{
		apiKey:  config.APIKey,
		model:   config.Model,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate generates a response from Claude
func (c *ClaudeLLM) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error) {
	return c.GenerateWithSystem(ctx, "", prompt, opts)
}

// GenerateWithSystem generates a response with a system prompt
func (c *ClaudeLLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*GenerateResponse, error) {
	if userPrompt == "" {
		return nil, ErrEmptyPrompt
	}

	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultGenerateOptions().MaxTokens
	}

	reqBody := claudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Temperature: opts.Temperature,
		Messages:    []claudeMessage{{Role: "user", Content: userPrompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": ClaudeAPIVersion,
	}

	c.logger.Debug("Sending request to Claude",
		zap.String("model", model),
		zap.Int("prompt_length", len(userPrompt)),
		zap.Int("max_tokens", maxTokens))

	var genResp claudeResponse
	err := postJSON(ctx, c.client, ProviderClaude, c.baseURL+"/v1/messages", headers, reqBody, &genResp,
		func(body []byte) string {
			var e claudeErrorResponse
			if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
				return e.Error.Type + ": " + e.Error.Message
			}
			return ""
		})
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range genResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if genResp.StopReason == "max_tokens" {
		c.logger.Warn("Claude response hit max_tokens", zap.Int("max_tokens", maxTokens))
	}

	return &GenerateResponse{
		Content:      content.String(),
		Model:        genResp.Model,
		PromptTokens: genResp.Usage.InputTokens,
		OutputTokens: genResp.Usage.OutputTokens,
		TotalTokens:  genResp.Usage.InputTokens + genResp.Usage.OutputTokens,
	}, nil
}

// Name returns the provider name
func (c *ClaudeLLM) Name() string {
	return string(ProviderClaude)
}

// ModelName returns the model being used
func (c *ClaudeLLM) ModelName() string {
	return c.model
}

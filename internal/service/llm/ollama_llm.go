package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaLLM implements LLMService on the Ollama /api/generate endpoint
type OllamaLLM struct {
	apiURL string
	model  string
	numCtx int
	logger *zap.Logger
	client *http.Client
}

// OllamaConfig holds configuration for Ollama LLM
type OllamaConfig struct {
	APIURL  string        // e.g., "http://localhost:11434"
	Model   string        // e.g., "qwen2.5-coder:7b"
	NumCtx  int           // context window passed as options.num_ctx
	Timeout time.Duration // per-request timeout
}

// Common Ollama code models
const (
	Qwen25Coder7B = "qwen2.5-coder:7b"
	CodeLlama     = "codellama"
	DeepSeekCoder = "deepseek-coder-v2"
	DeepSeekR1    = "deepseek-r1"
)

// NewOllamaLLM creates a new Ollama LLM client
func NewOllamaLLM(config OllamaConfig, logger *zap.Logger) (*OllamaLLM, error) {
	if config.APIURL == "" {
		config.APIURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = Qwen25Coder7B
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	return &OllamaLLM{
		apiURL: strings.TrimSuffix(config.APIURL, "/"),
		model:  config.Model,
		numCtx: config.NumCtx,
		logger: logger,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// Generate generates a response from the LLM
func (o *OllamaLLM) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error) {
	return o.GenerateWithSystem(ctx, "", prompt, opts)
}

// GenerateWithSystem sends a non-streaming generate request. Reasoning models wrap
// their chain of thought in <think> tags; only the answer after it is returned.
func (o *OllamaLLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*GenerateResponse, error) {
	if userPrompt == "" {
		return nil, ErrEmptyPrompt
	}

	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	numCtx := o.numCtx
	if opts.NumCtx > 0 {
		numCtx = opts.NumCtx
	}

	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: &ollamaOptions{
			NumPredict:  opts.MaxTokens,
			NumCtx:      numCtx,
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
		},
	}

	o.logger.Debug("Sending request to Ollama",
		zap.String("model", model),
		zap.Int("prompt_length", len(userPrompt)),
		zap.Int("num_ctx", numCtx))

	var genResp ollamaGenerateResponse
	err := postJSON(ctx, o.client, ProviderOllama, o.apiURL+"/api/generate", nil, reqBody, &genResp,
		func(body []byte) string {
			var e ollamaErrorResponse
			if json.Unmarshal(body, &e) == nil {
				return e.Error
			}
			return ""
		})
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Content:      extractThinkingContent(genResp.Response),
		Model:        genResp.Model,
		PromptTokens: genResp.PromptEvalCount,
		OutputTokens: genResp.EvalCount,
		TotalTokens:  genResp.PromptEvalCount + genResp.EvalCount,
	}, nil
}

// Name returns the provider name
func (o *OllamaLLM) Name() string {
	return string(ProviderOllama)
}

// ModelName returns the model being used
func (o *OllamaLLM) ModelName() string {
	return o.model
}

// extractThinkingContent returns the text after a closing </think> tag. When the model
// produced only reasoning, the reasoning itself is returned without tags.
func extractThinkingContent(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}
	if idx := strings.LastIndex(response, "</think>"); idx >= 0 {
		if after := strings.TrimSpace(response[idx+len("</think>"):]); after != "" {
			return after
		}
	}
	if strings.Contains(response, "<think>") || strings.Contains(response, "</think>") {
		return strings.TrimSpace(cleanThinkingTags(response))
	}
	return response
}

func cleanThinkingTags(s string) string {
	s = strings.ReplaceAll(s, "<think>", "")
	return strings.ReplaceAll(s, "</think>", "")
}

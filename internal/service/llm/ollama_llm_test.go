package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestExtractThinkingContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty response",
			input:    "",
			expected: "",
		},
		{
			name:     "no thinking tags",
			input:    "This is a simple response",
			expected: "This is a simple response",
		},
		{
			name:     "content after think tags",
			input:    "<think>Some reasoning here</think>The actual answer",
			expected: "The actual answer",
		},
		{
			name:     "content after think tags with whitespace",
			input:    "<think>Some reasoning here</think>\n\nThe actual answer\n",
			expected: "The actual answer",
		},
		{
			name:     "only thinking content - fallback to think content",
			input:    "<think>This is all the reasoning with no answer after</think>",
			expected: "This is all the reasoning with no answer after",
		},
		{
			name:     "unclosed think tag",
			input:    "<think>Still thinking about this...",
			expected: "Still thinking about this...",
		},
		{
			name:     "multiline thinking with answer",
			input:    "<think>\nThe method needs a mock repository.\n</think>\n```java\nclass FooTest {}\n```",
			expected: "```java\nclass FooTest {}\n```",
		},
		{
			name:     "whitespace only response",
			input:    "   \n\t  ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractThinkingContent(tt.input)
			if result != tt.expected {
				t.Errorf("extractThinkingContent(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCleanThinkingTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no tags",
			input:    "Clean content",
			expected: "Clean content",
		},
		{
			name:     "remove opening tag",
			input:    "<think>Some content",
			expected: "Some content",
		},
		{
			name:     "remove closing tag",
			input:    "Some content</think>",
			expected: "Some content",
		},
		{
			name:     "remove both tags",
			input:    "<think>Some content</think>",
			expected: "Some content",
		},
		{
			name:     "multiple tags",
			input:    "<think>First</think>Middle<think>Second</think>",
			expected: "FirstMiddleSecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cleanThinkingTags(tt.input)
			if result != tt.expected {
				t.Errorf("cleanThinkingTags(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestOllamaLLM_GenerateWithSystem(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:           got.Model,
			Response:        "<think>plan</think>class FooTest {}",
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	client, err := NewOllamaLLM(OllamaConfig{APIURL: server.URL + "/", Model: "qwen2.5-coder:7b", NumCtx: 32000}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOllamaLLM() error = %v", err)
	}

	resp, err := client.GenerateWithSystem(context.Background(), "system", "write a test", GenerateOptions{Temperature: 0.2})
	if err != nil {
		t.Fatalf("GenerateWithSystem() error = %v", err)
	}
	if resp.Content != "class FooTest {}" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.TotalTokens)
	}
	if got.Stream {
		t.Error("expected a non-streaming request")
	}
	if got.Options == nil || got.Options.NumCtx != 32000 {
		t.Errorf("num_ctx not sent: %+v", got.Options)
	}
	if got.System != "system" || got.Prompt != "write a test" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestOllamaLLM_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	client, _ := NewOllamaLLM(OllamaConfig{APIURL: server.URL}, zap.NewNop())
	_, err := client.Generate(context.Background(), "prompt", GenerateOptions{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Message != "model not found" {
		t.Errorf("unexpected status error: %+v", statusErr)
	}
}

func TestOllamaLLM_EmptyPrompt(t *testing.T) {
	client, _ := NewOllamaLLM(OllamaConfig{}, zap.NewNop())
	if _, err := client.Generate(context.Background(), "", GenerateOptions{}); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error) {
	return s.GenerateWithSystem(ctx, "", prompt, opts)
}

func (s *scriptedLLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*GenerateResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	content := ""
	if i < len(s.responses) {
		content = s.responses[i]
	}
	return &GenerateResponse{Content: content}, nil
}

func (s *scriptedLLM) Name() string      { return "scripted" }
func (s *scriptedLLM) ModelName() string { return "test" }

func TestRetryingLLM(t *testing.T) {
	transport := errors.New("connection refused")

	tests := []struct {
		name      string
		responses []string
		errs      []error
		wantCalls int
		wantErr   error
		want      string
	}{
		{
			name:      "first attempt succeeds",
			responses: []string{"class T {}"},
			wantCalls: 1,
			want:      "class T {}",
		},
		{
			name:      "empty then success",
			responses: []string{"  ", "class T {}"},
			wantCalls: 2,
			want:      "class T {}",
		},
		{
			name:      "truncated then success",
			responses: []string{"class T { ...", "class T {}"},
			wantCalls: 2,
			want:      "class T {}",
		},
		{
			name:      "transport errors exhaust retries",
			errs:      []error{transport, transport, transport},
			wantCalls: 3,
			wantErr:   transport,
		},
		{
			name:      "always truncated",
			responses: []string{"a...", "b...", "c..."},
			wantCalls: 3,
			wantErr:   ErrTruncatedResponse,
		},
		{
			name:      "empty prompt is not retried",
			errs:      []error{ErrEmptyPrompt},
			wantCalls: 1,
			wantErr:   ErrEmptyPrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedLLM{responses: tt.responses, errs: tt.errs}
			r := NewRetryingLLM(inner, 3, time.Millisecond, zap.NewNop())

			resp, err := r.Generate(context.Background(), "prompt", GenerateOptions{})
			if inner.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", inner.calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantErr != ErrEmptyPrompt && !IsBackendError(err) {
					t.Errorf("expected BackendError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
			if stats := r.Stats(); stats.Requests != int64(tt.wantCalls) {
				t.Errorf("Stats().Requests = %d, want %d", stats.Requests, tt.wantCalls)
			}
		})
	}
}

func TestRetryingLLM_ContextCancelled(t *testing.T) {
	inner := &scriptedLLM{responses: []string{""}}
	r := NewRetryingLLM(inner, 5, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, "prompt", GenerateOptions{})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Attempts != 1 || !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected backend error: %+v", be)
	}
}

func TestNewLLMService_RetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"model":"m","response":"class T {}","done":true}`))
	}))
	defer server.Close()

	svc, err := NewLLMService(config.LLMConfig{
		Provider:   "ollama",
		URL:        server.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLLMService() error = %v", err)
	}

	resp, err := svc.Generate(context.Background(), "prompt", DefaultGenerateOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "class T {}" || calls != 2 {
		t.Errorf("Content = %q after %d calls", resp.Content, calls)
	}
}

func TestNewProvider_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	for _, provider := range []string{"claude", "openai"} {
		if _, err := NewProvider(config.LLMConfig{Provider: provider}, zap.NewNop()); err == nil {
			t.Errorf("expected error for %s without api key", provider)
		}
	}
	if _, err := NewProvider(config.LLMConfig{Provider: "bard"}, zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}

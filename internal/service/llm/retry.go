package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryingLLM wraps a provider and retries failed or unusable generations. After the
// last attempt it returns a *BackendError.
type RetryingLLM struct {
	inner      LLMService
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	requests  int64
	failures  int64
	totalTime time.Duration
}

// RetryStats reports request counters of a RetryingLLM; every attempt counts.
type RetryStats struct {
	Requests          int64         `json:"requests"`
	Failures          int64         `json:"failures"`
	TotalResponseTime time.Duration `json:"total_response_time"`
}

// NewRetryingLLM wraps inner. maxRetries is the total number of attempts per call.
func NewRetryingLLM(inner LLMService, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *RetryingLLM {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryingLLM{
		inner:      inner,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Generate generates a response, retrying as needed
func (r *RetryingLLM) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error) {
	return r.GenerateWithSystem(ctx, "", prompt, opts)
}

// GenerateWithSystem retries on transport errors, non-2xx answers, timeouts, empty
// content, and content ending in "...". Cancellation of ctx stops immediately.
func (r *RetryingLLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*GenerateResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		start := time.Now()
		resp, err := r.inner.GenerateWithSystem(ctx, systemPrompt, userPrompt, opts)
		if err == nil {
			err = checkContent(resp.Content)
		}
		r.record(time.Since(start), err)

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrEmptyPrompt) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &BackendError{Provider: Provider(r.inner.Name()), Attempts: attempt, Err: ctxErr}
		}

		r.logger.Warn("LLM generation attempt failed",
			zap.String("provider", r.inner.Name()),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &BackendError{Provider: Provider(r.inner.Name()), Attempts: attempt, Err: ctx.Err()}
		case <-time.After(r.retryDelay):
		}
	}
	return nil, &BackendError{Provider: Provider(r.inner.Name()), Attempts: r.maxRetries, Err: lastErr}
}

func checkContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyResponse
	}
	if strings.HasSuffix(trimmed, "...") {
		return ErrTruncatedResponse
	}
	return nil
}

func (r *RetryingLLM) record(elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	r.totalTime += elapsed
	if err != nil {
		r.failures++
	}
}

// Stats returns a snapshot of the request counters.
func (r *RetryingLLM) Stats() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RetryStats{Requests: r.requests, Failures: r.failures, TotalResponseTime: r.totalTime}
}

// Name returns the wrapped provider name
func (r *RetryingLLM) Name() string {
	return r.inner.Name()
}

// ModelName returns the wrapped model name
func (r *RetryingLLM) ModelName() string {
	return r.inner.ModelName()
}

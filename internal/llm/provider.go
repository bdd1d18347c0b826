// Package llm adapts chat completion providers behind a single interface.
//
// Every adapter reports failures as *ProviderError with one of a small set of
// kinds, so callers can pick a fallback reply and log the cause without
// knowing which vendor SDK produced it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tbourn/widget-chat-backend/internal/config"
)

// Provider error kinds.
const (
	KindTimeout     = "timeout"
	KindAuth        = "auth"
	KindRateLimited = "rate_limited"
	KindUnknown     = "unknown"
)

// Request is one single-turn completion.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Temperature  float64
}

// Response is the provider's reply with token accounting.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider produces a completion for a request.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderError is the only error type adapters return.
type ProviderError struct {
	Kind string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "llm: " + e.Kind
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the kind of a provider error, or KindUnknown.
func KindOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// fromStatus maps an HTTP status from a vendor API to a kind.
func fromStatus(code int, err error) *ProviderError {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ProviderError{Kind: KindAuth, Err: err}
	case http.StatusTooManyRequests:
		return &ProviderError{Kind: KindRateLimited, Err: err}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &ProviderError{Kind: KindTimeout, Err: err}
	}
	return &ProviderError{Kind: KindUnknown, Err: err}
}

// fromContext classifies err as a timeout when the call ran out of time.
func fromContext(ctx context.Context, err error) (*ProviderError, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Err: err}, true
	}
	return nil, false
}

// Disabled is used when no provider credentials are configured. Every call
// fails with KindAuth.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Complete(context.Context, Request) (*Response, error) {
	return nil, &ProviderError{Kind: KindAuth, Err: errors.New("no provider configured")}
}

// New builds the provider selected by cfg. A selected provider without an
// API key degrades to Disabled.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return Disabled{}, nil
		}
		return NewOpenAI(cfg.OpenAIKey, cfg.Model), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return Disabled{}, nil
		}
		return NewGemini(ctx, cfg.GeminiKey, cfg.Model)
	default:
		return Disabled{}, nil
	}
}

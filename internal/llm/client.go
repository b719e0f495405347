package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client defines the interface for LLM providers. Image input is treated as
// opaque multimodal content; how the photo was obtained is the transport
// layer's concern.
type Client interface {
	Extract(ctx context.Context, req Request) (Response, error)
}

// Request is one extraction call.
type Request struct {
	System string
	Prompt string
	Images []Image
}

// Image is opaque multimodal input.
type Image struct {
	MediaType string
	Data      []byte
}

// Response contains the raw model output.
type Response struct {
	Content string
}

// Config holds configuration for the extraction client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

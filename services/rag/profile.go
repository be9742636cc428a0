package rag

import (
	"fmt"
	"strings"
	"time"
)

// API versions are pinned per service; the upstream contracts are versioned
// via query parameter.
const (
	openaiAPIVersion = "2024-02-15-preview"
	searchAPIVersion = "2023-11-01"
)

// Defaults applied to unset profile fields.
const (
	defaultEmbeddingTimeout = 15 * time.Second
	defaultSearchTimeout    = 20 * time.Second
	defaultChatTimeout      = 30 * time.Second

	defaultTopK             = 5
	defaultMaxContextTokens = 3000
	defaultMaxOutputTokens  = 400
	defaultTemperature      = 0.2
)

// ClientProfile is the immutable per-client configuration. It is built once
// by the config loader (secrets already resolved), owned by its Service and
// never mutated afterwards.
type ClientProfile struct {
	ID string

	// Vector search service
	SearchEndpoint string
	SearchIndex    string
	SearchAPIKey   string

	// OpenAI-compatible embedding + completion service
	OpenAIEndpoint      string
	OpenAIAPIKey        string
	ChatDeployment      string
	EmbeddingDeployment string // optional; falls back to ChatDeployment

	// Per-stage call timeouts
	EmbeddingTimeout time.Duration
	SearchTimeout    time.Duration
	ChatTimeout      time.Duration

	// Retry overrides; zero values use the retry package defaults
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Pipeline tuning
	TopK             int
	MaxContextTokens int
	MaxOutputTokens  int
	Temperature      float64
}

// Validate checks the fields no default can supply.
func (p *ClientProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("client profile: id is required")
	}
	if p.SearchEndpoint == "" {
		return fmt.Errorf("client %q: search endpoint is required", p.ID)
	}
	if p.SearchIndex == "" {
		return fmt.Errorf("client %q: search index is required", p.ID)
	}
	if p.SearchAPIKey == "" {
		return fmt.Errorf("client %q: search api key is required", p.ID)
	}
	if p.OpenAIEndpoint == "" {
		return fmt.Errorf("client %q: openai endpoint is required", p.ID)
	}
	if p.OpenAIAPIKey == "" {
		return fmt.Errorf("client %q: openai api key is required", p.ID)
	}
	if p.ChatDeployment == "" {
		return fmt.Errorf("client %q: chat deployment is required", p.ID)
	}
	return nil
}

// normalized returns a copy with defaults filled in. The original profile
// is left untouched.
func (p *ClientProfile) normalized() *ClientProfile {
	out := *p
	if out.EmbeddingDeployment == "" {
		out.EmbeddingDeployment = out.ChatDeployment
	}
	if out.EmbeddingTimeout <= 0 {
		out.EmbeddingTimeout = defaultEmbeddingTimeout
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = defaultSearchTimeout
	}
	if out.ChatTimeout <= 0 {
		out.ChatTimeout = defaultChatTimeout
	}
	if out.TopK <= 0 {
		out.TopK = defaultTopK
	}
	if out.MaxContextTokens <= 0 {
		out.MaxContextTokens = defaultMaxContextTokens
	}
	if out.MaxOutputTokens <= 0 {
		out.MaxOutputTokens = defaultMaxOutputTokens
	}
	if out.Temperature <= 0 {
		out.Temperature = defaultTemperature
	}
	out.SearchEndpoint = strings.TrimRight(out.SearchEndpoint, "/")
	out.OpenAIEndpoint = strings.TrimRight(out.OpenAIEndpoint, "/")
	return &out
}

// embeddingURL is the deployment-scoped embeddings endpoint.
func (p *ClientProfile) embeddingURL() string {
	return fmt.Sprintf(
		"%s/openai/deployments/%s/embeddings?api-version=%s",
		p.OpenAIEndpoint, p.EmbeddingDeployment, openaiAPIVersion,
	)
}

// completionURL is the deployment-scoped chat completions endpoint.
func (p *ClientProfile) completionURL() string {
	return fmt.Sprintf(
		"%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.OpenAIEndpoint, p.ChatDeployment, openaiAPIVersion,
	)
}

// searchURL is the index-scoped vector search endpoint.
func (p *ClientProfile) searchURL() string {
	return fmt.Sprintf(
		"%s/indexes/%s/docs/search?api-version=%s",
		p.SearchEndpoint, p.SearchIndex, searchAPIVersion,
	)
}

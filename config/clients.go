package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/upb/rag-gateway/services/rag"
)

// SecretResolver resolves a secret reference (e.g. "vault:path/to/key") to
// its value. The default resolver only understands environment variables;
// deployments with a real secret store plug their own in.
type SecretResolver func(ref string) (string, error)

// EnvSecretResolver resolves "env:NAME" and bare references against the
// process environment.
func EnvSecretResolver(ref string) (string, error) {
	name := strings.TrimPrefix(ref, "env:")
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("secret %q: environment variable %s is not set", ref, name)
	}
	return value, nil
}

// clientsFile is the on-disk catalog shape.
type clientsFile struct {
	Clients []clientEntry `json:"clients"`
}

// clientEntry is one client in the catalog. API keys are never stored
// inline; *_api_key holds a secret reference resolved at load time.
type clientEntry struct {
	ID string `json:"id"`

	SearchEndpoint string `json:"search_endpoint"`
	SearchIndex    string `json:"search_index"`
	SearchAPIKey   string `json:"search_api_key"`

	OpenAIEndpoint      string `json:"openai_endpoint"`
	OpenAIAPIKey        string `json:"openai_api_key"`
	ChatDeployment      string `json:"chat_deployment"`
	EmbeddingDeployment string `json:"embedding_deployment"`

	EmbeddingTimeout string `json:"embedding_timeout"`
	SearchTimeout    string `json:"search_timeout"`
	ChatTimeout      string `json:"chat_timeout"`

	RetryAttempts  int    `json:"retry_attempts"`
	RetryBaseDelay string `json:"retry_base_delay"`
	RetryMaxDelay  string `json:"retry_max_delay"`

	TopK             int     `json:"top_k"`
	MaxContextTokens int     `json:"max_context_tokens"`
	MaxOutputTokens  int     `json:"max_output_tokens"`
	Temperature      float64 `json:"temperature"`
}

// LoadClientProfiles reads the clients catalog, merges the global upstream
// defaults into each entry, resolves secret references and returns the
// profiles ready for the registry. A nil resolver uses EnvSecretResolver.
func (c *Config) LoadClientProfiles(resolve SecretResolver) ([]*rag.ClientProfile, error) {
	if resolve == nil {
		resolve = EnvSecretResolver
	}

	data, err := os.ReadFile(c.Clients.File)
	if err != nil {
		return nil, fmt.Errorf("read clients file %s: %w", c.Clients.File, err)
	}

	var catalog clientsFile
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse clients file %s: %w", c.Clients.File, err)
	}
	if len(catalog.Clients) == 0 {
		return nil, fmt.Errorf("clients file %s contains no clients", c.Clients.File)
	}

	seen := make(map[string]bool, len(catalog.Clients))
	profiles := make([]*rag.ClientProfile, 0, len(catalog.Clients))
	for _, entry := range catalog.Clients {
		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate client id %q in %s", entry.ID, c.Clients.File)
		}
		seen[entry.ID] = true

		profile, err := c.buildProfile(entry, resolve)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (c *Config) buildProfile(entry clientEntry, resolve SecretResolver) (*rag.ClientProfile, error) {
	searchKey, err := resolveSecret(entry.SearchAPIKey, c.Upstream.SearchAPIKey, resolve)
	if err != nil {
		return nil, fmt.Errorf("client %q: search api key: %w", entry.ID, err)
	}
	openaiKey, err := resolveSecret(entry.OpenAIAPIKey, c.Upstream.OpenAIAPIKey, resolve)
	if err != nil {
		return nil, fmt.Errorf("client %q: openai api key: %w", entry.ID, err)
	}

	profile := &rag.ClientProfile{
		ID:                  entry.ID,
		SearchEndpoint:      firstNonEmpty(entry.SearchEndpoint, c.Upstream.SearchEndpoint),
		SearchIndex:         entry.SearchIndex,
		SearchAPIKey:        searchKey,
		OpenAIEndpoint:      firstNonEmpty(entry.OpenAIEndpoint, c.Upstream.OpenAIEndpoint),
		OpenAIAPIKey:        openaiKey,
		ChatDeployment:      firstNonEmpty(entry.ChatDeployment, c.Upstream.ChatDeployment),
		EmbeddingDeployment: firstNonEmpty(entry.EmbeddingDeployment, c.Upstream.EmbeddingDeployment),
		RetryAttempts:       entry.RetryAttempts,
		TopK:                entry.TopK,
		MaxContextTokens:    entry.MaxContextTokens,
		MaxOutputTokens:     entry.MaxOutputTokens,
		Temperature:         entry.Temperature,
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{entry.EmbeddingTimeout, "embedding_timeout", &profile.EmbeddingTimeout},
		{entry.SearchTimeout, "search_timeout", &profile.SearchTimeout},
		{entry.ChatTimeout, "chat_timeout", &profile.ChatTimeout},
		{entry.RetryBaseDelay, "retry_base_delay", &profile.RetryBaseDelay},
		{entry.RetryMaxDelay, "retry_max_delay", &profile.RetryMaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("client %q: invalid %s %q: %w", entry.ID, d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return profile, nil
}

// resolveSecret turns a catalog secret reference into its value, falling
// back to the global default when the entry carries none.
func resolveSecret(ref, fallback string, resolve SecretResolver) (string, error) {
	if ref == "" {
		return fallback, nil
	}
	return resolve(ref)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

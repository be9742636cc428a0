package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/rag-gateway/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	clientsPath := filepath.Join(t.TempDir(), "clients.json")
	require.NoError(t, os.WriteFile(clientsPath, []byte(`{
		"clients": [{
			"id": "acme",
			"search_endpoint": "https://search.example.net",
			"search_index": "acme-docs"
		}]
	}`), 0o600))

	return &config.Config{
		Environment: "development",
		Clients:     config.ClientsConfig{File: clientsPath},
		Upstream: config.UpstreamConfig{
			OpenAIEndpoint: "https://llm.example.net",
			OpenAIAPIKey:   "openai-key",
			ChatDeployment: "gpt-4o",
			SearchAPIKey:   "search-key",
		},
		Observability: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("wires registry from the clients file", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(t), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(context.Background()) })

		require.NotNil(t, deps.Gateway)
		require.NotNil(t, deps.Registry)
		assert.Equal(t, []string{"acme"}, deps.Registry.Clients())
	})

	t.Run("missing clients file fails startup", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Clients.File = filepath.Join(t.TempDir(), "missing.json")

		_, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
	})

	t.Run("startup probe failure is fatal only in production", func(t *testing.T) {
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(down.Close)

		cfg := testConfig(t)
		cfg.Clients.ValidateOnStartup = true
		cfg.Upstream.OpenAIEndpoint = down.URL
		require.NoError(t, os.WriteFile(cfg.Clients.File, []byte(`{
			"clients": [{
				"id": "acme",
				"search_endpoint": "`+down.URL+`",
				"search_index": "acme-docs"
			}]
		}`), 0o600))

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err, "unreachable endpoints are non-fatal outside production")
		_ = deps.Close(context.Background())

		cfg.Environment = "production"
		_, err = NewDependencies(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connectivity")
	})

	t.Run("close is idempotent enough to call once after failure", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(t), zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, deps.Close(context.Background()))
	})
}

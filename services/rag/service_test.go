package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/rag-gateway/internal/gateway"
	"github.com/upb/rag-gateway/internal/retry"
	"github.com/upb/rag-gateway/services"
)

// upstream fakes the three endpoints on one server, counting calls per
// stage so tests can assert ordering and short-circuiting.
type upstream struct {
	server *httptest.Server

	embedCalls    atomic.Int64
	searchCalls   atomic.Int64
	completeCalls atomic.Int64

	embedHandler    http.HandlerFunc
	searchHandler   http.HandlerFunc
	completeHandler http.HandlerFunc
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}

	u.embedHandler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}
	u.searchHandler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"value": []map[string]any{
				{"content": "Refunds are accepted within 30 days.", "@search.score": 0.92, "id": "doc-1"},
				{"content": "Contact support for exchanges.", "@search.score": 0.81, "id": "doc-2"},
			},
		})
	}
	u.completeHandler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Refunds are accepted within 30 days."}},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 18, "total_tokens": 138},
		})
	}

	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/embeddings"):
			u.embedCalls.Add(1)
			u.embedHandler(w, r)
		case strings.Contains(r.URL.Path, "/docs/search"):
			u.searchCalls.Add(1)
			u.searchHandler(w, r)
		case strings.Contains(r.URL.Path, "/chat/completions"):
			u.completeCalls.Add(1)
			u.completeHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) profile() *ClientProfile {
	return &ClientProfile{
		ID:             "acme",
		SearchEndpoint: u.server.URL,
		SearchIndex:    "acme-docs",
		SearchAPIKey:   "search-key",
		OpenAIEndpoint: u.server.URL,
		OpenAIAPIKey:   "openai-key",
		ChatDeployment: "gpt-4o",
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, profile *ClientProfile) *Service {
	t.Helper()
	gw := gateway.NewClient()
	t.Cleanup(gw.Close)
	svc, err := NewService(profile, gw, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestService_Answer(t *testing.T) {
	t.Run("happy path returns answer with sources and usage", func(t *testing.T) {
		u := newUpstream(t)
		svc := newTestService(t, u.profile())

		res, err := svc.Answer(context.Background(), "what is the refund policy?")
		require.NoError(t, err)

		assert.Equal(t, "Refunds are accepted within 30 days.", res.Answer)
		require.Len(t, res.Passages, 2)
		assert.Equal(t, "doc-1", res.Passages[0].Source)
		assert.InDelta(t, 0.92, res.Passages[0].Score, 1e-9)
		assert.Equal(t, 138, res.Usage.TotalTokens)
		assert.Greater(t, res.Usage.ContextTokens, 0)
		assert.False(t, res.QueryTruncated)

		assert.EqualValues(t, 1, u.embedCalls.Load())
		assert.EqualValues(t, 1, u.searchCalls.Load())
		assert.EqualValues(t, 1, u.completeCalls.Load())
	})

	t.Run("empty query fails validation before any call", func(t *testing.T) {
		u := newUpstream(t)
		svc := newTestService(t, u.profile())

		_, err := svc.Answer(context.Background(), "   ")
		assert.ErrorIs(t, err, services.ErrEmptyQuery)
		assert.EqualValues(t, 0, u.embedCalls.Load())
	})

	t.Run("empty search results still produce a completion", func(t *testing.T) {
		u := newUpstream(t)
		u.searchHandler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"value": []any{}})
		}
		var gotBody completionRequest
		u.completeHandler = func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": "I do not know."}},
				},
				"usage": map[string]any{"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35},
			})
		}
		svc := newTestService(t, u.profile())

		res, err := svc.Answer(context.Background(), "what is the refund policy?")
		require.NoError(t, err)

		assert.Empty(t, res.Passages)
		assert.Equal(t, "I do not know.", res.Answer)
		require.Len(t, gotBody.Messages, 3)
		assert.Contains(t, gotBody.Messages[1].Content, noContextMarker)
	})

	t.Run("embedding timeout exhausts retries and skips later stages", func(t *testing.T) {
		u := newUpstream(t)
		u.embedHandler = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}
		p := u.profile()
		p.EmbeddingTimeout = 30 * time.Millisecond
		p.RetryAttempts = 3
		svc := newTestService(t, p)

		_, err := svc.Answer(context.Background(), "what is the refund policy?")
		require.Error(t, err)

		assert.Equal(t, services.ErrorTypeEmbedding, services.GetErrorType(err))

		var exhausted *retry.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)

		var timeout *gateway.TimeoutError
		assert.ErrorAs(t, err, &timeout)

		assert.EqualValues(t, 3, u.embedCalls.Load())
		assert.EqualValues(t, 0, u.searchCalls.Load())
		assert.EqualValues(t, 0, u.completeCalls.Load())
	})

	t.Run("client error status is terminal after one attempt", func(t *testing.T) {
		u := newUpstream(t)
		u.embedHandler = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
		}
		svc := newTestService(t, u.profile())

		_, err := svc.Answer(context.Background(), "what is the refund policy?")
		require.Error(t, err)

		var exhausted *retry.ExhaustedError
		assert.False(t, errors.As(err, &exhausted))
		assert.EqualValues(t, 1, u.embedCalls.Load())
	})

	t.Run("server errors are retried until success", func(t *testing.T) {
		u := newUpstream(t)
		inner := u.embedHandler
		var failures atomic.Int64
		u.embedHandler = func(w http.ResponseWriter, r *http.Request) {
			if failures.Add(1) <= 2 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			inner(w, r)
		}
		svc := newTestService(t, u.profile())

		res, err := svc.Answer(context.Background(), "what is the refund policy?")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Answer)
		assert.EqualValues(t, 3, u.embedCalls.Load())
	})

	t.Run("missing embedding vector is an embedding error", func(t *testing.T) {
		u := newUpstream(t)
		u.embedHandler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"data": []any{}})
		}
		svc := newTestService(t, u.profile())

		_, err := svc.Answer(context.Background(), "anything")
		assert.Equal(t, services.ErrorTypeEmbedding, services.GetErrorType(err))
		assert.EqualValues(t, 0, u.searchCalls.Load())
	})

	t.Run("completion without choices is a completion error", func(t *testing.T) {
		u := newUpstream(t)
		u.completeHandler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"choices": []any{}})
		}
		svc := newTestService(t, u.profile())

		_, err := svc.Answer(context.Background(), "anything")
		assert.Equal(t, services.ErrorTypeCompletion, services.GetErrorType(err))
	})

	t.Run("search request carries vector, top k and api key", func(t *testing.T) {
		u := newUpstream(t)
		var gotKey string
		var gotReq searchRequest
		u.searchHandler = func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("api-key")
			_ = json.NewDecoder(r.Body).Decode(&gotReq)
			writeJSON(w, map[string]any{"value": []any{}})
		}
		svc := newTestService(t, u.profile())

		_, err := svc.Answer(context.Background(), "anything")
		require.NoError(t, err)

		assert.Equal(t, "search-key", gotKey)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, gotReq.Vector.Value)
		assert.Equal(t, "contentVector", gotReq.Vector.Fields)
		assert.Equal(t, defaultTopK, gotReq.Vector.K)
		assert.Equal(t, "content", gotReq.Select)
	})
}

func TestClientProfile(t *testing.T) {
	t.Run("validate rejects missing fields", func(t *testing.T) {
		p := &ClientProfile{ID: "acme"}
		assert.Error(t, p.Validate())
	})

	t.Run("normalized fills defaults", func(t *testing.T) {
		p := (&ClientProfile{
			ID:             "acme",
			ChatDeployment: "gpt-4o",
		}).normalized()

		assert.Equal(t, "gpt-4o", p.EmbeddingDeployment)
		assert.Equal(t, defaultEmbeddingTimeout, p.EmbeddingTimeout)
		assert.Equal(t, defaultTopK, p.TopK)
		assert.Equal(t, defaultMaxContextTokens, p.MaxContextTokens)
		assert.Equal(t, defaultMaxOutputTokens, p.MaxOutputTokens)
		assert.InDelta(t, defaultTemperature, p.Temperature, 1e-9)
	})

	t.Run("urls compose deployment and index paths", func(t *testing.T) {
		p := (&ClientProfile{
			ID:                  "acme",
			SearchEndpoint:      "https://search.example.net/",
			SearchIndex:         "acme-docs",
			OpenAIEndpoint:      "https://llm.example.net/",
			ChatDeployment:      "gpt-4o",
			EmbeddingDeployment: "text-embedding-ada-002",
		}).normalized()

		assert.Equal(t,
			"https://llm.example.net/openai/deployments/text-embedding-ada-002/embeddings?api-version="+openaiAPIVersion,
			p.embeddingURL())
		assert.Equal(t,
			"https://llm.example.net/openai/deployments/gpt-4o/chat/completions?api-version="+openaiAPIVersion,
			p.completionURL())
		assert.Equal(t,
			"https://search.example.net/indexes/acme-docs/docs/search?api-version="+searchAPIVersion,
			p.searchURL())
	})
}

func TestBuildMessages(t *testing.T) {
	t.Run("passages are embedded verbatim in order", func(t *testing.T) {
		msgs := BuildMessages([]Passage{
			{Content: "first passage"},
			{Content: "second passage"},
		}, "what now?")

		require.Len(t, msgs, 3)
		assert.Equal(t, "system", msgs[0].Role)
		assert.Equal(t, "user", msgs[1].Role)
		assert.Equal(t, "Context:\nfirst passage\n\nsecond passage", msgs[1].Content)
		assert.Equal(t, "Question: what now?", msgs[2].Content)
	})

	t.Run("no passages yields the fallback marker", func(t *testing.T) {
		msgs := BuildMessages(nil, "anything")
		assert.Contains(t, msgs[1].Content, noContextMarker)
	})
}

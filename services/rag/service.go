package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/internal/gateway"
	"github.com/upb/rag-gateway/internal/retry"
	"github.com/upb/rag-gateway/services"
	"github.com/upb/rag-gateway/services/tokens"
)

// Service runs the retrieval pipeline for a single client. Stages run
// strictly in order: embed the query, search the index, budget the context,
// complete the answer. Each outbound call goes through the shared gateway
// under the client's retry policy.
type Service struct {
	profile  *ClientProfile
	gw       *gateway.Client
	budgeter *tokens.Budgeter
	logger   *zap.Logger
}

// NewService builds a pipeline service around a validated profile. The
// gateway is shared across services; the token budgeter is constructed once
// here so the estimator choice happens at startup, not per request.
func NewService(profile *ClientProfile, gw *gateway.Client, logger *zap.Logger) (*Service, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	p := profile.normalized()
	return &Service{
		profile:  p,
		gw:       gw,
		budgeter: tokens.NewBudgeter(p.ChatDeployment),
		logger:   logger.With(zap.String("client", p.ID)),
	}, nil
}

// Profile exposes the normalized profile for handlers and health checks.
func (s *Service) Profile() *ClientProfile {
	return s.profile
}

// Answer runs the full pipeline for one query. A failed stage aborts the
// run; later stages are never attempted.
func (s *Service) Answer(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, services.ErrEmptyQuery
	}

	start := time.Now()
	s.logger.Debug("pipeline started", zap.Int("query_chars", len(query)))

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	passages, err := s.searchPassages(ctx, vector)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	trim := s.budgeter.Trim(texts, systemPreamble, query, s.profile.MaxContextTokens)
	kept := passages[:trim.Kept]
	if trim.Kept < len(passages) || trim.QueryTruncated {
		s.logger.Debug("context trimmed to budget",
			zap.Int("retrieved", len(passages)),
			zap.Int("kept", trim.Kept),
			zap.Bool("query_truncated", trim.QueryTruncated),
			zap.Int("prompt_tokens", trim.PromptTokens),
		)
	}

	answer, usage, err := s.complete(ctx, BuildMessages(kept, trim.Query))
	if err != nil {
		return nil, err
	}

	usage.ContextTokens = trim.PromptTokens
	s.logger.Info("pipeline completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("passages", len(kept)),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return &Result{
		Answer:         answer,
		Passages:       kept,
		Usage:          usage,
		QueryTruncated: trim.QueryTruncated,
	}, nil
}

// embedQuery turns the query text into a vector via the embedding
// deployment.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float64, error) {
	var out embeddingResponse
	err := s.post(ctx, s.profile.embeddingURL(), s.profile.OpenAIAPIKey,
		embeddingRequest{Input: query}, s.profile.EmbeddingTimeout, &out)
	if err != nil {
		return nil, services.NewEmbeddingError("generate query embedding", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, services.NewEmbeddingError("response contained no embedding vector", nil)
	}

	s.logger.Debug("embedding generated", zap.Int("dimensions", len(out.Data[0].Embedding)))
	return out.Data[0].Embedding, nil
}

// searchPassages runs the vector query against the client's index.
func (s *Service) searchPassages(ctx context.Context, vector []float64) ([]Passage, error) {
	payload := searchRequest{
		Vector: searchVector{
			Value:  vector,
			Fields: "contentVector",
			K:      s.profile.TopK,
		},
		Select: "content",
	}

	var out searchResponse
	err := s.post(ctx, s.profile.searchURL(), s.profile.SearchAPIKey,
		payload, s.profile.SearchTimeout, &out)
	if err != nil {
		return nil, services.NewSearchError("vector search failed", err).
			WithDetail("index", s.profile.SearchIndex)
	}

	passages := make([]Passage, 0, len(out.Value))
	for _, doc := range out.Value {
		passages = append(passages, Passage{
			Content: doc.Content,
			Score:   doc.Score,
			Source:  doc.ID,
		})
	}

	s.logger.Debug("search completed", zap.Int("results", len(passages)))
	return passages, nil
}

// complete asks the chat deployment for the final answer.
func (s *Service) complete(ctx context.Context, messages []ChatMessage) (string, TokenUsage, error) {
	payload := completionRequest{
		Messages:    messages,
		Temperature: s.profile.Temperature,
		MaxTokens:   s.profile.MaxOutputTokens,
	}

	var out completionResponse
	err := s.post(ctx, s.profile.completionURL(), s.profile.OpenAIAPIKey,
		payload, s.profile.ChatTimeout, &out)
	if err != nil {
		return "", TokenUsage{}, services.NewCompletionError("chat completion failed", err)
	}
	if len(out.Choices) == 0 {
		return "", TokenUsage{}, services.NewCompletionError("response contained no choices", nil)
	}

	usage := TokenUsage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	return out.Choices[0].Message.Content, usage, nil
}

// post sends one JSON request under the client's retry policy. Non-2xx
// statuses become status errors so the classifier can decide whether to
// retry; a body that fails to decode is terminal.
func (s *Service) post(ctx context.Context, url, apiKey string, payload any, timeout time.Duration, out any) error {
	headers := map[string]string{"api-key": apiKey}

	op := func(ctx context.Context) error {
		resp, err := s.gw.Call(ctx, http.MethodPost, url, headers, payload, timeout)
		if err != nil {
			return err
		}
		if resp.Status != http.StatusOK {
			return gateway.NewStatusError(http.MethodPost, url, resp.Status, resp.Body)
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
		return nil
	}

	return retry.Do(ctx, s.retryPolicy(), retry.DefaultClassifier, op)
}

func (s *Service) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: s.profile.RetryAttempts,
		BaseDelay:   s.profile.RetryBaseDelay,
		MaxDelay:    s.profile.RetryMaxDelay,
	}
}

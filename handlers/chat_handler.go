package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/rag-gateway/middleware"
	"github.com/upb/rag-gateway/models"
	"github.com/upb/rag-gateway/services/rag"
	"github.com/upb/rag-gateway/utils"
)

// ChatHandler answers client questions through the retrieval pipeline.
type ChatHandler struct {
	registry *rag.Registry
	logger   *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(registry *rag.Registry, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleChat handles POST /api/v1/chat/{client_id}
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	clientID := chi.URLParam(r, "client_id")
	ctx = middleware.WithClientID(ctx, clientID)

	svc, err := h.registry.Get(clientID)
	if err != nil {
		h.logger.Warn("unknown client",
			zap.String("request_id", requestID),
			zap.String("client_id", clientID))
		HandleServiceError(w, err, h.logger)
		return
	}

	var chatReq models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	h.logger.Debug("answering query",
		zap.String("request_id", requestID),
		zap.String("client_id", clientID),
		zap.Int("query_chars", len(chatReq.Query)))

	start := time.Now()
	result, err := svc.Answer(ctx, chatReq.Query)
	if err != nil {
		h.logger.Error("pipeline failed",
			zap.String("request_id", requestID),
			zap.String("client_id", clientID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	sources := make([]models.SourceDocument, 0, len(result.Passages))
	for _, p := range result.Passages {
		sources = append(sources, models.SourceDocument{
			Content: p.Content,
			Score:   p.Score,
			Source:  p.Source,
		})
	}

	response := models.ChatResponse{
		Answer:  result.Answer,
		Sources: sources,
		Usage: models.ChatUsage{
			ContextTokens:    result.Usage.ContextTokens,
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		QueryTruncated: result.QueryTruncated,
		ElapsedMs:      time.Since(start).Milliseconds(),
	}

	h.logger.Info("query answered",
		zap.String("request_id", requestID),
		zap.String("client_id", clientID),
		zap.Int("sources", len(sources)),
		zap.Int("total_tokens", response.Usage.TotalTokens),
		zap.Int64("elapsed_ms", response.ElapsedMs))

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/services/rag"
	"github.com/upb/rag-gateway/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Clients   int    `json:"clients"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	registry *rag.Registry
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(registry *rag.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleHealth handles GET /health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Clients:   h.registry.Len(),
	}

	_ = utils.WriteOK(w, response)
}

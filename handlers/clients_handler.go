package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/models"
	"github.com/upb/rag-gateway/services/rag"
	"github.com/upb/rag-gateway/utils"
)

// ClientsHandler exposes the configured client catalog.
type ClientsHandler struct {
	registry *rag.Registry
	logger   *zap.Logger
}

// NewClientsHandler creates a new ClientsHandler
func NewClientsHandler(registry *rag.Registry, logger *zap.Logger) *ClientsHandler {
	return &ClientsHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/clients
func (h *ClientsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	response := models.ClientsResponse{Clients: h.registry.Clients()}
	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write clients response", zap.Error(err))
	}
}

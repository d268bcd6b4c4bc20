package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/infrastructure/blockchain"
	"chain-bridge.backend/internal/interfaces/http/response"
)

// ChainHandler handles chain discovery endpoints
type ChainHandler struct {
	registry *blockchain.AdapterRegistry
}

// NewChainHandler creates a new chain handler
func NewChainHandler(registry *blockchain.AdapterRegistry) *ChainHandler {
	return &ChainHandler{registry: registry}
}

// ListChains lists supported chain ids
// GET /api/v1/chains
func (h *ChainHandler) ListChains(c *gin.Context) {
	ids := h.registry.ChainIDs()
	if ids == nil {
		ids = []string{}
	}
	response.Success(c, http.StatusOK, gin.H{"chains": ids})
}

// GetChainInfo returns a descriptive snapshot of one chain
// GET /api/v1/chains/:id/info
func (h *ChainHandler) GetChainInfo(c *gin.Context) {
	adapter, err := h.registry.Resolve(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.NotFound("unsupported chain"))
		return
	}

	info, err := adapter.ChainInfo(c.Request.Context())
	if err != nil {
		if errors.Is(err, domainerrors.ErrChainUnreachable) {
			response.Error(c, domainerrors.ChainUnreachable("chain endpoint unavailable", err))
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, info)
}

// GetChainHealth probes one chain's endpoint
// GET /api/v1/chains/:id/health
func (h *ChainHandler) GetChainHealth(c *gin.Context) {
	adapter, err := h.registry.Resolve(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.NotFound("unsupported chain"))
		return
	}

	if err := adapter.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unreachable"})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

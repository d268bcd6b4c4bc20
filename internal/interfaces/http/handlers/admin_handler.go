package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/interfaces/http/middleware"
	"chain-bridge.backend/internal/interfaces/http/response"
)

// rateLimitAdmin is the limiter capability set the admin surface consumes
type rateLimitAdmin interface {
	ResetLimit(ctx context.Context, address, actor string) int
	Status(address, chainID string) *entities.RateLimitStatus
	Stats() *entities.RateLimitStats
}

// attackReader serves the detector's recent-attacks buffer
type attackReader interface {
	RecentAttacks(limit int) []*entities.DetectedAttack
	ClearAddressHistory(address string)
}

// AdminHandler handles the operator surface
type AdminHandler struct {
	limiter  rateLimitAdmin
	detector attackReader
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(limiter rateLimitAdmin, detector attackReader) *AdminHandler {
	return &AdminHandler{limiter: limiter, detector: detector}
}

// ResetRateLimit clears an address's counters; the acting operator is taken
// from the validated token, never from the request body
// POST /api/v1/admin/rate-limit/reset
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	var input struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, ok := middleware.GetOperator(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("operator identity missing"))
		return
	}

	cleared := h.limiter.ResetLimit(c.Request.Context(), input.Address, actor)
	response.Success(c, http.StatusOK, gin.H{
		"address":         input.Address,
		"countersCleared": cleared,
	})
}

// GetRateLimitStatus reads one address's counter
// GET /api/v1/admin/rate-limit/status?address=&chainId=
func (h *AdminHandler) GetRateLimitStatus(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		response.Error(c, domainerrors.BadRequest("address query parameter is required"))
		return
	}
	response.Success(c, http.StatusOK, h.limiter.Status(address, c.Query("chainId")))
}

// GetRateLimitStats returns the limiter's global counters
// GET /api/v1/admin/rate-limit/stats
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.limiter.Stats())
}

// GetRecentAttacks lists blocked attacks, most recent first
// GET /api/v1/admin/attacks/recent?limit=
func (h *AdminHandler) GetRecentAttacks(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(c, domainerrors.BadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	attacks := h.detector.RecentAttacks(limit)
	if attacks == nil {
		attacks = []*entities.DetectedAttack{}
	}
	response.Success(c, http.StatusOK, gin.H{"attacks": attacks})
}

// ClearAddressHistory resets the detector's tracked state for an address
// POST /api/v1/admin/detector/clear
func (h *AdminHandler) ClearAddressHistory(c *gin.Context) {
	var input struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.detector.ClearAddressHistory(input.Address)
	response.Success(c, http.StatusOK, gin.H{"address": input.Address, "cleared": true})
}

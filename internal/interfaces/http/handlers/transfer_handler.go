package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/interfaces/http/response"
	"chain-bridge.backend/pkg/logger"
)

// transferService is the orchestrator capability set the handler consumes
type transferService interface {
	SubmitTransfer(ctx context.Context, req *entities.TransferRequest, direction entities.TransferDirection) (*entities.BridgeTransfer, error)
	Process(ctx context.Context, id uuid.UUID) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error)
	Cancel(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error)
}

// TransferHandler handles bridge transfer endpoints
type TransferHandler struct {
	service transferService
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(service transferService) *TransferHandler {
	return &TransferHandler{service: service}
}

// CreateTransfer admits a transfer and drives it asynchronously
// POST /api/v1/transfers
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var input entities.CreateTransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("amount is not a valid decimal"))
		return
	}

	direction := entities.DirectionMint
	if input.Direction == string(entities.DirectionUnlock) {
		direction = entities.DirectionUnlock
	}

	transfer, err := h.service.SubmitTransfer(c.Request.Context(), &entities.TransferRequest{
		SourceChainID: input.SourceChainID,
		DestChainID:   input.DestChainID,
		SourceAddress: input.SourceAddress,
		DestAddress:   input.DestAddress,
		Asset:         input.Asset,
		Amount:        amount,
	}, direction)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The admission decision is synchronous; the chain protocol runs in the
	// background. Detach from the request deadline but keep its values so
	// log lines stay correlated.
	go func(ctx context.Context, id uuid.UUID) {
		if err := h.service.Process(ctx, id); err != nil {
			logger.Error(ctx, "transfer processing failed",
				zap.String("transfer_id", id.String()), zap.Error(err))
		}
	}(context.WithoutCancel(c.Request.Context()), transfer.ID)

	response.Success(c, http.StatusCreated, transfer)
}

// GetTransfer returns a transfer by id
// GET /api/v1/transfers/:id
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid transfer id"))
		return
	}

	transfer, err := h.service.GetTransfer(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("transfer not found"))
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, transfer)
}

// CancelTransfer aborts a transfer before funds are locked
// DELETE /api/v1/transfers/:id
func (h *TransferHandler) CancelTransfer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid transfer id"))
		return
	}

	transfer, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrNotFound):
			response.Error(c, domainerrors.NotFound("transfer not found"))
		case errors.Is(err, domainerrors.ErrInvalidPhase):
			response.Error(c, domainerrors.NewAppError(http.StatusConflict, "INVALID_PHASE",
				"transfer can only be cancelled before funds are locked", err))
		default:
			response.Error(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, transfer)
}

package repositories

import (
	"context"
	"time"

	"chain-bridge.backend/internal/domain/entities"
	"github.com/google/uuid"
)

// TransferRepository defines bridge transfer persistence operations
type TransferRepository interface {
	Create(ctx context.Context, transfer *entities.BridgeTransfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error)
	// UpdatePhase advances the phase and persists the accumulated artifacts.
	// It must reject transitions that are not legal successors of the stored
	// phase so that concurrent sweeps and workers cannot race a record
	// backwards.
	UpdatePhase(ctx context.Context, transfer *entities.BridgeTransfer) error
	ListPending(ctx context.Context, limit int) ([]*entities.BridgeTransfer, error)
	// ListExpired returns non-terminal transfers whose expiry passed before
	// the given instant.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*entities.BridgeTransfer, error)
}

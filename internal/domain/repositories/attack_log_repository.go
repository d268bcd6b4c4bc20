package repositories

import (
	"context"

	"chain-bridge.backend/internal/domain/entities"
)

// AttackLogRepository defines persistence for detector audit records
type AttackLogRepository interface {
	Append(ctx context.Context, attack *entities.DetectedAttack) error
	// Recent returns the most recent attacks, newest first.
	Recent(ctx context.Context, limit int) ([]*entities.DetectedAttack, error)
}

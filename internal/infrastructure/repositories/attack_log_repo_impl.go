package repositories

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"chain-bridge.backend/internal/domain/entities"
	"chain-bridge.backend/internal/infrastructure/models"
)

// AttackLogRepository implements detector audit persistence on gorm
type AttackLogRepository struct {
	db *gorm.DB
}

// NewAttackLogRepository creates a new attack log repository
func NewAttackLogRepository(db *gorm.DB) *AttackLogRepository {
	return &AttackLogRepository{db: db}
}

// Append records a detected attack
func (r *AttackLogRepository) Append(ctx context.Context, attack *entities.DetectedAttack) error {
	m := &models.DetectedAttack{
		ID:            attack.ID,
		TxID:          attack.TxID,
		SourceAddress: attack.SourceAddress,
		Flags:         strings.Join(attack.Flags, ","),
		Severity:      string(attack.Severity),
		DetectedAt:    attack.DetectedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("append attack: %w", err)
	}
	return nil
}

// Recent returns the most recent attacks, newest first
func (r *AttackLogRepository) Recent(ctx context.Context, limit int) ([]*entities.DetectedAttack, error) {
	var ms []models.DetectedAttack
	err := r.db.WithContext(ctx).
		Order("detected_at DESC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	out := make([]*entities.DetectedAttack, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		var flags []string
		if m.Flags != "" {
			flags = strings.Split(m.Flags, ",")
		}
		out = append(out, &entities.DetectedAttack{
			ID:            m.ID,
			TxID:          m.TxID,
			SourceAddress: m.SourceAddress,
			Flags:         flags,
			Severity:      entities.Severity(m.Severity),
			DetectedAt:    m.DetectedAt,
		})
	}
	return out, nil
}

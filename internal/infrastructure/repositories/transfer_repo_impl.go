package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/infrastructure/models"
)

// TransferRepository implements bridge transfer persistence on gorm
type TransferRepository struct {
	db *gorm.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func toTransferModel(t *entities.BridgeTransfer) *models.BridgeTransfer {
	m := &models.BridgeTransfer{
		ID:            t.ID,
		SourceChainID: t.SourceChainID,
		DestChainID:   t.DestChainID,
		SourceAddress: t.SourceAddress,
		DestAddress:   t.DestAddress,
		Asset:         t.Asset,
		Amount:        t.Amount.String(),
		FeeAmount:     t.FeeAmount.String(),
		Direction:     string(t.Direction),
		Phase:         string(t.Phase),
		SourceBlock:   t.SourceBlock,
		Confirmations: t.Confirmations,
		ProofBlob:     t.ProofBlob,
		ExpiresAt:     t.ExpiresAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.RejectReason.Valid {
		m.RejectReason = &t.RejectReason.String
	}
	if t.RevertReason.Valid {
		m.RevertReason = &t.RevertReason.String
	}
	if t.SourceTxHash.Valid {
		m.SourceTxHash = &t.SourceTxHash.String
	}
	if t.DestTxHash.Valid {
		m.DestTxHash = &t.DestTxHash.String
	}
	if t.UnlockTxHash.Valid {
		m.UnlockTxHash = &t.UnlockTxHash.String
	}
	return m
}

func toTransferEntity(m *models.BridgeTransfer) (*entities.BridgeTransfer, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transfer %s: %w", m.ID, err)
	}
	fee, err := decimal.NewFromString(m.FeeAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt fee for transfer %s: %w", m.ID, err)
	}

	t := &entities.BridgeTransfer{
		ID:            m.ID,
		SourceChainID: m.SourceChainID,
		DestChainID:   m.DestChainID,
		SourceAddress: m.SourceAddress,
		DestAddress:   m.DestAddress,
		Asset:         m.Asset,
		Amount:        amount,
		FeeAmount:     fee,
		Direction:     entities.TransferDirection(m.Direction),
		Phase:         entities.TransferPhase(m.Phase),
		RejectReason:  null.StringFromPtr(m.RejectReason),
		RevertReason:  null.StringFromPtr(m.RevertReason),
		SourceTxHash:  null.StringFromPtr(m.SourceTxHash),
		SourceBlock:   m.SourceBlock,
		Confirmations: m.Confirmations,
		ProofBlob:     m.ProofBlob,
		DestTxHash:    null.StringFromPtr(m.DestTxHash),
		UnlockTxHash:  null.StringFromPtr(m.UnlockTxHash),
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	return t, nil
}

// Create creates a new bridge transfer record
func (r *TransferRepository) Create(ctx context.Context, transfer *entities.BridgeTransfer) error {
	m := toTransferModel(transfer)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer by id
func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error) {
	var m models.BridgeTransfer
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransferEntity(&m)
}

// UpdatePhase persists a phase transition plus accumulated artifacts. The
// stored phase is re-read inside the update so an illegal transition (stale
// in-memory record, racing sweep) is rejected rather than written.
func (r *TransferRepository) UpdatePhase(ctx context.Context, transfer *entities.BridgeTransfer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.BridgeTransfer
		if err := tx.Clauses().First(&current, "id = ?", transfer.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrNotFound
			}
			return err
		}

		stored := entities.TransferPhase(current.Phase)
		next := transfer.Phase
		if stored != next && !stored.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", domainerrors.ErrInvalidPhase, stored, next)
		}

		transfer.UpdatedAt = time.Now().UTC()
		m := toTransferModel(transfer)
		return tx.Model(&models.BridgeTransfer{}).
			Where("id = ?", transfer.ID).
			Updates(map[string]interface{}{
				"phase":          m.Phase,
				"fee_amount":     m.FeeAmount,
				"reject_reason":  m.RejectReason,
				"revert_reason":  m.RevertReason,
				"source_tx_hash": m.SourceTxHash,
				"source_block":   m.SourceBlock,
				"confirmations":  m.Confirmations,
				"proof_blob":     m.ProofBlob,
				"dest_tx_hash":   m.DestTxHash,
				"unlock_tx_hash": m.UnlockTxHash,
				"updated_at":     m.UpdatedAt,
			}).Error
	})
}

var terminalPhases = []string{
	string(entities.PhaseCompleted),
	string(entities.PhaseRejected),
	string(entities.PhaseReverted),
}

// ListPending returns non-terminal transfers, oldest first
func (r *TransferRepository) ListPending(ctx context.Context, limit int) ([]*entities.BridgeTransfer, error) {
	var ms []models.BridgeTransfer
	err := r.db.WithContext(ctx).
		Where("phase NOT IN ?", terminalPhases).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toTransferEntities(ms)
}

// ListExpired returns non-terminal transfers whose expiry passed before the
// given instant
func (r *TransferRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*entities.BridgeTransfer, error) {
	var ms []models.BridgeTransfer
	err := r.db.WithContext(ctx).
		Where("phase NOT IN ? AND expires_at < ?", terminalPhases, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toTransferEntities(ms)
}

func toTransferEntities(ms []models.BridgeTransfer) ([]*entities.BridgeTransfer, error) {
	out := make([]*entities.BridgeTransfer, 0, len(ms))
	for i := range ms {
		t, err := toTransferEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

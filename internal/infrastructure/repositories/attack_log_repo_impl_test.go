package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/domain/entities"
)

func TestAttackLogAppendAndRecent(t *testing.T) {
	db := newTestDB(t)
	createDetectedAttackTable(t, db)
	repo := NewAttackLogRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &entities.DetectedAttack{
			ID:            uuid.New(),
			TxID:          "tx-" + string(rune('a'+i)),
			SourceAddress: "0xattacker",
			Flags:         []string{entities.FlagSameBlockRoundTrip, entities.FlagRapidSequence},
			Severity:      entities.SeverityCritical,
			DetectedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "tx-c", got[0].TxID)
	require.Equal(t, "tx-b", got[1].TxID)
	require.Equal(t, []string{entities.FlagSameBlockRoundTrip, entities.FlagRapidSequence}, got[0].Flags)
	require.Equal(t, entities.SeverityCritical, got[0].Severity)
}

func TestAttackLogRecentEmpty(t *testing.T) {
	db := newTestDB(t)
	createDetectedAttackTable(t, db)
	repo := NewAttackLogRepository(db)

	got, err := repo.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, got)
}

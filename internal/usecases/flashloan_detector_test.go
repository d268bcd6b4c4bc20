package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
)

func newTestDetector(t *testing.T) *FlashLoanDetector {
	t.Helper()
	return NewFlashLoanDetector(config.DetectorConfig{
		HistorySize:            256,
		RapidSequenceWindow:    time.Minute,
		RapidSequenceThreshold: 5,
		LargeAmountThreshold:   "100000",
		LargeAmountWindow:      time.Hour,
		RecentAttackBuffer:     100,
	}, nil)
}

func check(txID, address string, amount int64, block int64) *entities.TransferCheck {
	return &entities.TransferCheck{
		TxID:        txID,
		Address:     address,
		Amount:      decimal.NewFromInt(amount),
		BlockNumber: block,
	}
}

func TestDetectorSameBlockRoundTripBlocks(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 100)

	result := d.AnalyzeTransfer(ctx, check("tx-1", "addr-x", 10000, 100))
	require.True(t, result.Blocked)
	require.False(t, result.Allowed())
	require.True(t, result.HasFlag(entities.FlagSameBlockRoundTrip))
	require.NotNil(t, result.Attack)
	require.Equal(t, entities.SeverityCritical, result.Attack.Severity)
	require.Equal(t, "addr-x", result.Attack.SourceAddress)

	var reason *entities.DetectionReason
	for i := range result.Reasons {
		if result.Reasons[i].Type == entities.FlagSameBlockRoundTrip {
			reason = &result.Reasons[i]
		}
	}
	require.NotNil(t, reason)
	require.Equal(t, entities.SeverityCritical, reason.Severity)
}

func TestDetectorDifferentBlockNeverFiresRoundTrip(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	// Same address, same amount, adjacent block: round-trip is strictly
	// same-block.
	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 100)

	result := d.AnalyzeTransfer(ctx, check("tx-2", "addr-x", 10000, 101))
	require.False(t, result.Blocked)
	require.True(t, result.Allowed())
	require.False(t, result.HasFlag(entities.FlagSameBlockRoundTrip))
	require.Nil(t, result.Attack)
}

func TestDetectorUnknownBlockNeverFiresRoundTrip(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	// Chains that report no block heights record deposits at block 0. Two
	// unknown blocks must not be treated as the same block.
	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 0)

	result := d.AnalyzeTransfer(ctx, check("tx-1", "addr-x", 10000, 0))
	require.False(t, result.Blocked)
	require.False(t, result.HasFlag(entities.FlagSameBlockRoundTrip))
	require.Nil(t, result.Attack)
}

func TestDetectorRapidSequenceIsInformational(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	for block := int64(1); block <= 4; block++ {
		d.RecordDeposit("addr-r", decimal.NewFromInt(50), block)
	}

	// The 5th event inside the window raises the flag but never blocks by
	// itself.
	result := d.AnalyzeTransfer(ctx, check("tx-5", "addr-r", 50, 99))
	require.True(t, result.HasFlag(entities.FlagRapidSequence))
	require.False(t, result.Blocked)
}

func TestDetectorLargeAmountEscalates(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	severityOf := func(result *entities.DetectionResult) entities.Severity {
		for _, r := range result.Reasons {
			if r.Type == entities.FlagLargeAmountPattern {
				return r.Severity
			}
		}
		return ""
	}

	first := d.AnalyzeTransfer(ctx, check("tx-1", "addr-l", 150000, 10))
	require.True(t, first.HasFlag(entities.FlagLargeAmountPattern))
	require.Equal(t, entities.SeverityMedium, severityOf(first))
	require.False(t, first.Blocked)

	second := d.AnalyzeTransfer(ctx, check("tx-2", "addr-l", 200000, 11))
	require.True(t, second.HasFlag(entities.FlagLargeAmountPattern))
	require.Equal(t, entities.SeverityHigh, severityOf(second))

	// Below threshold never flags.
	small := d.AnalyzeTransfer(ctx, check("tx-3", "addr-l", 99999, 12))
	require.False(t, small.HasFlag(entities.FlagLargeAmountPattern))
}

func TestDetectorLargeAmountWindowExpires(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	current := time.Now()
	d.now = func() time.Time { return current }

	d.AnalyzeTransfer(ctx, check("tx-1", "addr-l", 150000, 10))

	current = current.Add(2 * time.Hour)
	result := d.AnalyzeTransfer(ctx, check("tx-2", "addr-l", 200000, 500))

	for _, r := range result.Reasons {
		if r.Type == entities.FlagLargeAmountPattern {
			require.Equal(t, entities.SeverityMedium, r.Severity)
		}
	}
}

func TestDetectorMutualExclusivity(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 100)

	for i, c := range []*entities.TransferCheck{
		check("tx-1", "addr-x", 10000, 100),
		check("tx-2", "addr-x", 10000, 101),
		check("tx-3", "addr-y", 150000, 200),
	} {
		result := d.AnalyzeTransfer(ctx, c)
		require.NotEqual(t, result.Allowed(), result.Blocked, "case %d", i)
	}
}

func TestDetectorClearAddressHistory(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 100)
	require.True(t, d.AnalyzeTransfer(ctx, check("tx-1", "addr-x", 10000, 100)).Blocked)

	d.ClearAddressHistory("addr-x")

	// First-seen again: the same check sails through.
	result := d.AnalyzeTransfer(ctx, check("tx-2", "addr-x", 10000, 100))
	require.False(t, result.Blocked)
	require.Empty(t, result.Flags)
}

func TestDetectorPerAddressIsolation(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	d.RecordDeposit("addr-x", decimal.NewFromInt(10000), 100)

	result := d.AnalyzeTransfer(ctx, check("tx-1", "addr-other", 10000, 100))
	require.False(t, result.Blocked)
}

func TestDetectorRecentAttacksNewestFirst(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		addr := string(rune('a' + i))
		d.RecordDeposit(addr, decimal.NewFromInt(1000), int64(i+1))
		d.AnalyzeTransfer(ctx, check("tx-"+addr, addr, 1000, int64(i+1)))
	}

	attacks := d.RecentAttacks(2)
	require.Len(t, attacks, 2)
	require.Equal(t, "tx-c", attacks[0].TxID)
	require.Equal(t, "tx-b", attacks[1].TxID)

	require.Len(t, d.RecentAttacks(0), 3)
}

func TestDetectorRecentAttacksBufferIsBounded(t *testing.T) {
	d := NewFlashLoanDetector(config.DetectorConfig{
		HistorySize:            16,
		RapidSequenceWindow:    time.Minute,
		RapidSequenceThreshold: 100,
		LargeAmountThreshold:   "100000",
		LargeAmountWindow:      time.Hour,
		RecentAttackBuffer:     2,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addr := string(rune('a' + i))
		d.RecordDeposit(addr, decimal.NewFromInt(10), int64(i))
		d.AnalyzeTransfer(ctx, check("tx-"+addr, addr, 10, int64(i)))
	}

	attacks := d.RecentAttacks(10)
	require.Len(t, attacks, 2)
	require.Equal(t, "tx-e", attacks[0].TxID)
}

func TestDetectorHistoryRingIsBounded(t *testing.T) {
	d := NewFlashLoanDetector(config.DetectorConfig{
		HistorySize:            4,
		RapidSequenceWindow:    time.Nanosecond,
		RapidSequenceThreshold: 100,
		LargeAmountThreshold:   "100000",
		LargeAmountWindow:      time.Hour,
		RecentAttackBuffer:     10,
	}, nil)
	ctx := context.Background()

	// The deposit at block 1 is pushed out of the ring by later events, so a
	// same-block withdrawal no longer sees it.
	d.RecordDeposit("addr-x", decimal.NewFromInt(10), 1)
	for block := int64(2); block <= 5; block++ {
		d.RecordDeposit("addr-x", decimal.NewFromInt(10), block)
	}

	require.False(t, d.AnalyzeTransfer(ctx, check("tx-1", "addr-x", 10, 1)).Blocked)
	require.True(t, d.AnalyzeTransfer(ctx, check("tx-2", "addr-x", 10, 5)).Blocked)
}

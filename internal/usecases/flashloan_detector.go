package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
	"chain-bridge.backend/internal/domain/repositories"
	"chain-bridge.backend/pkg/logger"
	"chain-bridge.backend/pkg/metrics"
)

type eventKind int

const (
	eventDeposit eventKind = iota
	eventWithdrawal
)

type historyEvent struct {
	kind   eventKind
	amount decimal.Decimal
	block  int64
	at     time.Time
}

// addressHistory is a bounded ring of observed events plus the timestamps of
// large transfers analyzed inside the tracking window.
type addressHistory struct {
	mu        sync.Mutex
	events    []historyEvent
	largeSeen []time.Time
	maxEvents int
}

func (h *addressHistory) append(e historyEvent) {
	h.events = append(h.events, e)
	if len(h.events) > h.maxEvents {
		h.events = h.events[len(h.events)-h.maxEvents:]
	}
}

// FlashLoanDetector classifies prospective transfers against per-address
// deposit/withdraw history. Analysis is a pure function of recorded history;
// the only state an analysis itself records is the large-amount mark and, when
// blocking, the attack audit record.
type FlashLoanDetector struct {
	cfg            config.DetectorConfig
	largeThreshold decimal.Decimal

	historyMu sync.RWMutex
	history   map[string]*addressHistory

	recentMu sync.Mutex
	// recent holds blocked attacks, oldest first; reads reverse it.
	recent []*entities.DetectedAttack

	attackLog repositories.AttackLogRepository

	now func() time.Time
}

// NewFlashLoanDetector builds the detector. attackLog may be nil; the
// in-memory recent-attacks buffer works either way.
func NewFlashLoanDetector(cfg config.DetectorConfig, attackLog repositories.AttackLogRepository) *FlashLoanDetector {
	threshold, err := decimal.NewFromString(cfg.LargeAmountThreshold)
	if err != nil {
		threshold = decimal.NewFromInt(100000)
	}
	return &FlashLoanDetector{
		cfg:            cfg,
		largeThreshold: threshold,
		history:        make(map[string]*addressHistory),
		attackLog:      attackLog,
		now:            time.Now,
	}
}

func (d *FlashLoanDetector) historyFor(address string) *addressHistory {
	d.historyMu.RLock()
	h, ok := d.history[address]
	d.historyMu.RUnlock()
	if ok {
		return h
	}

	d.historyMu.Lock()
	defer d.historyMu.Unlock()
	if h, ok = d.history[address]; ok {
		return h
	}
	h = &addressHistory{maxEvents: d.cfg.HistorySize}
	d.history[address] = h
	return h
}

// RecordDeposit records a completed deposit for the address
func (d *FlashLoanDetector) RecordDeposit(address string, amount decimal.Decimal, block int64) {
	h := d.historyFor(address)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(historyEvent{kind: eventDeposit, amount: amount, block: block, at: d.now()})
}

// RecordWithdrawal records a completed withdrawal for the address
func (d *FlashLoanDetector) RecordWithdrawal(address string, amount decimal.Decimal, block int64) {
	h := d.historyFor(address)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(historyEvent{kind: eventWithdrawal, amount: amount, block: block, at: d.now()})
}

// AnalyzeTransfer classifies a prospective outbound transfer. Blocked and
// Allowed are mutually exclusive; only a same-block round trip blocks on its
// own. The analysis records the large-amount mark it raises, nothing else.
func (d *FlashLoanDetector) AnalyzeTransfer(ctx context.Context, check *entities.TransferCheck) *entities.DetectionResult {
	result := &entities.DetectionResult{}
	now := d.now()

	h := d.historyFor(check.Address)
	h.mu.Lock()

	// Same-block round trip: a recorded deposit in the same block as this
	// withdrawal. Strictly same-block; matching amounts at different blocks
	// never fire this rule, and events with an unknown block (<= 0) never
	// match anything.
	if check.BlockNumber > 0 {
		for _, e := range h.events {
			if e.kind == eventDeposit && e.block == check.BlockNumber {
				result.Flags = append(result.Flags, entities.FlagSameBlockRoundTrip)
				result.Reasons = append(result.Reasons, entities.DetectionReason{
					Type:     entities.FlagSameBlockRoundTrip,
					Severity: entities.SeverityCritical,
				})
				result.Blocked = true
				break
			}
		}
	}

	// Rapid sequence: this transfer would be the Nth event inside the rapid
	// window. Informational only; never blocks by itself.
	rapidCutoff := now.Add(-d.cfg.RapidSequenceWindow)
	rapidCount := 1
	for _, e := range h.events {
		if e.at.After(rapidCutoff) {
			rapidCount++
		}
	}
	if rapidCount >= d.cfg.RapidSequenceThreshold {
		result.Flags = append(result.Flags, entities.FlagRapidSequence)
		result.Reasons = append(result.Reasons, entities.DetectionReason{
			Type:     entities.FlagRapidSequence,
			Severity: entities.SeverityLow,
		})
	}

	// Large-amount pattern: the first large transfer inside the tracking
	// window is MEDIUM, a repeat escalates to HIGH. The mark is recorded
	// here so a later analysis sees this one.
	if check.Amount.GreaterThanOrEqual(d.largeThreshold) {
		largeCutoff := now.Add(-d.cfg.LargeAmountWindow)
		kept := h.largeSeen[:0]
		for _, ts := range h.largeSeen {
			if ts.After(largeCutoff) {
				kept = append(kept, ts)
			}
		}
		h.largeSeen = kept

		severity := entities.SeverityMedium
		if len(h.largeSeen) >= 1 {
			severity = entities.SeverityHigh
		}
		h.largeSeen = append(h.largeSeen, now)

		result.Flags = append(result.Flags, entities.FlagLargeAmountPattern)
		result.Reasons = append(result.Reasons, entities.DetectionReason{
			Type:     entities.FlagLargeAmountPattern,
			Severity: severity,
		})
	}
	h.mu.Unlock()

	if result.Blocked {
		attack := &entities.DetectedAttack{
			ID:            uuid.New(),
			TxID:          check.TxID,
			SourceAddress: check.Address,
			Flags:         result.Flags,
			Severity:      entities.SeverityCritical,
			DetectedAt:    now,
		}
		result.Attack = attack
		d.rememberAttack(ctx, attack)

		metrics.AttacksDetectedTotal.Inc()
		logger.Warn(ctx, "transfer blocked by flash-loan detector",
			zap.String("tx_id", check.TxID),
			zap.String("address", check.Address),
			zap.Strings("flags", result.Flags),
		)
	}
	return result
}

func (d *FlashLoanDetector) rememberAttack(ctx context.Context, attack *entities.DetectedAttack) {
	d.recentMu.Lock()
	d.recent = append(d.recent, attack)
	if len(d.recent) > d.cfg.RecentAttackBuffer {
		d.recent = d.recent[len(d.recent)-d.cfg.RecentAttackBuffer:]
	}
	d.recentMu.Unlock()

	if d.attackLog != nil {
		if err := d.attackLog.Append(ctx, attack); err != nil {
			logger.Error(ctx, "failed to persist attack record", zap.Error(err))
		}
	}
}

// RecentAttacks returns up to limit blocked attacks, most recent first
func (d *FlashLoanDetector) RecentAttacks(limit int) []*entities.DetectedAttack {
	d.recentMu.Lock()
	defer d.recentMu.Unlock()

	if limit <= 0 || limit > len(d.recent) {
		limit = len(d.recent)
	}
	out := make([]*entities.DetectedAttack, 0, limit)
	for i := len(d.recent) - 1; i >= len(d.recent)-limit; i-- {
		out = append(out, d.recent[i])
	}
	return out
}

// ClearAddressHistory drops all tracked state for the address; the next
// analysis behaves as if the address were first-seen
func (d *FlashLoanDetector) ClearAddressHistory(address string) {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()
	delete(d.history, address)
}

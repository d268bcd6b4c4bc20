package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/domain/repositories"
	"chain-bridge.backend/internal/infrastructure/blockchain"
	"chain-bridge.backend/pkg/logger"
	"chain-bridge.backend/pkg/metrics"
	"chain-bridge.backend/pkg/redis"
)

const sweepBatchSize = 100

// BridgeOrchestrator drives the transfer state machine. It is a shared,
// thread-safe singleton: many transfers progress concurrently, but each
// transfer record is only ever mutated by the goroutine driving that id.
type BridgeOrchestrator struct {
	cfg       config.BridgeConfig
	transfers repositories.TransferRepository
	registry  *blockchain.AdapterRegistry
	limiter   *RateLimiter
	detector  *FlashLoanDetector
	quorum    repositories.QuorumService
	idem      *redis.IdempotencyStore

	// workers bounds concurrent chain I/O so the admission fast path never
	// waits behind adapter calls.
	workers chan struct{}

	// lastBlock tracks the most recently observed block per chain, feeding
	// the detector's same-block heuristic at admission time.
	blockMu   sync.RWMutex
	lastBlock map[string]int64

	now          func() time.Time
	pollInterval time.Duration
}

// NewBridgeOrchestrator wires the orchestrator
func NewBridgeOrchestrator(
	cfg config.BridgeConfig,
	transfers repositories.TransferRepository,
	registry *blockchain.AdapterRegistry,
	limiter *RateLimiter,
	detector *FlashLoanDetector,
	quorum repositories.QuorumService,
	idem *redis.IdempotencyStore,
) *BridgeOrchestrator {
	poolSize := cfg.WorkerPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	return &BridgeOrchestrator{
		cfg:          cfg,
		transfers:    transfers,
		registry:     registry,
		limiter:      limiter,
		detector:     detector,
		quorum:       quorum,
		idem:         idem,
		workers:      make(chan struct{}, poolSize),
		lastBlock:    make(map[string]int64),
		now:          time.Now,
		pollInterval: cfg.PollInterval,
	}
}

// withWorker runs one chain I/O operation on the bounded pool
func (o *BridgeOrchestrator) withWorker(ctx context.Context, fn func() error) error {
	select {
	case o.workers <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-o.workers }()
	return fn()
}

func (o *BridgeOrchestrator) observeBlock(chainID string, block int64) {
	if block <= 0 {
		return
	}
	o.blockMu.Lock()
	if block > o.lastBlock[chainID] {
		o.lastBlock[chainID] = block
	}
	o.blockMu.Unlock()
}

func (o *BridgeOrchestrator) observedBlock(chainID string) int64 {
	o.blockMu.RLock()
	defer o.blockMu.RUnlock()
	return o.lastBlock[chainID]
}

// SubmitTransfer validates and admits a transfer request. The returned
// transfer is Admitted on success; on an admission denial it is Rejected
// with a reason distinguishing rate limiting from attack detection, and the
// error carries the matching code.
func (o *BridgeOrchestrator) SubmitTransfer(ctx context.Context, req *entities.TransferRequest, direction entities.TransferDirection) (*entities.BridgeTransfer, error) {
	if !req.Amount.IsPositive() {
		return nil, domainerrors.BadRequest("amount must be strictly positive")
	}

	sourceAdapter, err := o.registry.Resolve(req.SourceChainID)
	if err != nil {
		return nil, domainerrors.BadRequest(fmt.Sprintf("unsupported source chain %s", req.SourceChainID))
	}
	destAdapter, err := o.registry.Resolve(req.DestChainID)
	if err != nil {
		return nil, domainerrors.BadRequest(fmt.Sprintf("unsupported destination chain %s", req.DestChainID))
	}

	sourceAddr := sourceAdapter.ValidateAddress(req.SourceAddress)
	if !sourceAddr.Valid {
		return nil, domainerrors.BadRequest(fmt.Sprintf("invalid source address: %s", sourceAddr.Reason))
	}
	destAddr := destAdapter.ValidateAddress(req.DestAddress)
	if !destAddr.Valid {
		return nil, domainerrors.BadRequest(fmt.Sprintf("invalid destination address: %s", destAddr.Reason))
	}

	now := o.now().UTC()
	transfer := &entities.BridgeTransfer{
		ID:            uuid.New(),
		SourceChainID: req.SourceChainID,
		DestChainID:   req.DestChainID,
		SourceAddress: sourceAddr.Normalized,
		DestAddress:   destAddr.Normalized,
		Asset:         req.Asset,
		Amount:        req.Amount,
		FeeAmount:     decimal.Zero,
		Direction:     direction,
		Phase:         entities.PhaseRequested,
		ExpiresAt:     now.Add(o.cfg.TransferExpiry),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.transfers.Create(ctx, transfer); err != nil {
		return nil, err
	}

	// Admission gate 1: volume.
	limitResult := o.limiter.CheckLimit(ctx, transfer.SourceAddress, transfer.SourceChainID)
	if limitResult.Denied() {
		o.reject(ctx, transfer, entities.RejectReasonRateLimited)
		metrics.AdmissionTotal.WithLabelValues("rate_limited").Inc()
		return transfer, domainerrors.RateLimited(
			fmt.Sprintf("rate limit exceeded for %s, retry after %ds", transfer.SourceAddress, limitResult.RetryAfterSeconds),
			limitResult.Headers,
		)
	}

	// Admission gate 2: attack heuristics.
	detection := o.detector.AnalyzeTransfer(ctx, &entities.TransferCheck{
		TxID:        transfer.ID.String(),
		Address:     transfer.SourceAddress,
		Amount:      transfer.Amount,
		BlockNumber: o.observedBlock(transfer.SourceChainID),
	})
	if detection.Blocked {
		o.reject(ctx, transfer, entities.RejectReasonAttackDetected)
		metrics.AdmissionTotal.WithLabelValues("attack_detected").Inc()
		return transfer, domainerrors.AttackDetected(
			fmt.Sprintf("transfer flagged: %v", detection.Flags),
		)
	}

	transfer.Phase = entities.PhaseAdmitted
	if err := o.transfers.UpdatePhase(ctx, transfer); err != nil {
		return nil, err
	}
	metrics.AdmissionTotal.WithLabelValues("allowed").Inc()
	metrics.PhaseTransitionsTotal.WithLabelValues(string(entities.PhaseAdmitted)).Inc()

	logger.Info(ctx, "transfer admitted",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("source_chain", transfer.SourceChainID),
		zap.String("dest_chain", transfer.DestChainID),
		zap.String("amount", transfer.Amount.String()),
	)
	return transfer, nil
}

func (o *BridgeOrchestrator) reject(ctx context.Context, transfer *entities.BridgeTransfer, reason entities.RejectReason) {
	transfer.Phase = entities.PhaseRejected
	transfer.RejectReason = null.StringFrom(string(reason))
	if err := o.transfers.UpdatePhase(ctx, transfer); err != nil {
		logger.Error(ctx, "failed to persist rejection",
			zap.String("transfer_id", transfer.ID.String()), zap.Error(err))
	}
	metrics.PhaseTransitionsTotal.WithLabelValues(string(entities.PhaseRejected)).Inc()
}

func (o *BridgeOrchestrator) advance(ctx context.Context, transfer *entities.BridgeTransfer, next entities.TransferPhase) error {
	transfer.Phase = next
	if err := o.transfers.UpdatePhase(ctx, transfer); err != nil {
		return err
	}
	metrics.PhaseTransitionsTotal.WithLabelValues(string(next)).Inc()
	return nil
}

// Process drives an admitted transfer to a terminal phase. It resumes from
// whatever non-terminal phase the record is in, so crashed workers can be
// picked up by a later call. Errors are returned only for retryable
// conditions; protocol denials terminate the transfer internally.
func (o *BridgeOrchestrator) Process(ctx context.Context, id uuid.UUID) error {
	transfer, err := o.transfers.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for !transfer.Phase.Terminal() {
		switch transfer.Phase {
		case entities.PhaseRequested:
			return fmt.Errorf("%w: transfer %s not admitted", domainerrors.ErrInvalidPhase, id)
		case entities.PhaseAdmitted:
			err = o.lockSource(ctx, transfer)
		case entities.PhaseLocked:
			err = o.advance(ctx, transfer, entities.PhaseProofPending)
		case entities.PhaseProofPending:
			err = o.awaitAndVerify(ctx, transfer)
		case entities.PhaseVerified:
			err = o.authorize(ctx, transfer)
		case entities.PhaseAuthorized:
			err = o.settleDestination(ctx, transfer)
		case entities.PhaseMinted:
			err = o.complete(ctx, transfer)
		default:
			return fmt.Errorf("%w: %s", domainerrors.ErrInvalidPhase, transfer.Phase)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// lockSource escrows funds on the source chain. The transfer id is the
// idempotency key: a resubmission after a timed-out attempt reuses the
// recorded tx hash instead of locking twice.
func (o *BridgeOrchestrator) lockSource(ctx context.Context, transfer *entities.BridgeTransfer) error {
	adapter, err := o.registry.Resolve(transfer.SourceChainID)
	if err != nil {
		return err
	}

	// The fee is quoted before the lock and tracked apart from the principal;
	// an unavailable fee oracle parks the transfer in Admitted for retry.
	if transfer.FeeAmount.IsZero() {
		var estimate *entities.FeeEstimate
		err = o.withWorker(ctx, func() error {
			var err error
			estimate, err = adapter.EstimateFee(ctx, entities.TransferShape{Asset: transfer.Asset})
			return err
		})
		if err != nil {
			return fmt.Errorf("fee estimate for %s: %w", transfer.ID, err)
		}
		transfer.FeeAmount = estimate.Total
	}

	idemKey := transfer.ID.String()
	claimed, priorTxHash, err := o.idem.Claim(ctx, idemKey)
	if err != nil {
		return err
	}

	txHash := priorTxHash
	if claimed {
		submitErr := o.withWorker(ctx, func() error {
			result, err := adapter.SubmitTransfer(ctx, idemKey, &entities.TransferRequest{
				SourceChainID: transfer.SourceChainID,
				DestChainID:   transfer.DestChainID,
				SourceAddress: transfer.SourceAddress,
				DestAddress:   transfer.DestAddress,
				Asset:         transfer.Asset,
				Amount:        transfer.Amount,
			})
			if err != nil {
				return err
			}
			txHash = result.TxHash
			return nil
		})
		if submitErr != nil {
			if releaseErr := o.idem.Release(ctx, idemKey); releaseErr != nil {
				logger.Error(ctx, "failed to release submission claim",
					zap.String("transfer_id", idemKey), zap.Error(releaseErr))
			}
			// No funds moved; safe to discard.
			o.reject(ctx, transfer, entities.RejectReasonLockFailed)
			logger.Warn(ctx, "source lock failed",
				zap.String("transfer_id", idemKey), zap.Error(submitErr))
			return nil
		}
		if err := o.idem.Complete(ctx, idemKey, txHash); err != nil {
			logger.Error(ctx, "failed to record submission result",
				zap.String("transfer_id", idemKey), zap.Error(err))
		}
	} else if txHash == "" {
		// Another worker is mid-submission; let it drive this transfer.
		return fmt.Errorf("%w: submission in flight for %s", domainerrors.ErrInvalidPhase, idemKey)
	}

	transfer.SourceTxHash = null.StringFrom(txHash)
	return o.advance(ctx, transfer, entities.PhaseLocked)
}

// awaitAndVerify polls source-chain confirmations, then verifies the
// inclusion proof. No per-transfer lock is held between polls; many
// transfers poll concurrently.
func (o *BridgeOrchestrator) awaitAndVerify(ctx context.Context, transfer *entities.BridgeTransfer) error {
	adapter, err := o.registry.Resolve(transfer.SourceChainID)
	if err != nil {
		return err
	}
	txHash := transfer.SourceTxHash.String

	for {
		var status *entities.TransferStatus
		err := o.withWorker(ctx, func() error {
			var err error
			status, err = adapter.GetTransferStatus(ctx, txHash)
			return err
		})
		if err != nil {
			return err
		}

		o.observeBlock(transfer.SourceChainID, status.BlockNumber)
		transfer.Confirmations = status.Confirmations
		transfer.SourceBlock = status.BlockNumber

		if status.State == entities.TransferStateFailed {
			return o.revert(ctx, transfer, entities.RevertReasonProofInvalid)
		}
		if status.State == entities.TransferStateFinalized {
			break
		}

		if o.now().After(transfer.ExpiresAt) {
			return o.revert(ctx, transfer, entities.RevertReasonExpired)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}

	var proofReq *entities.ProofVerificationRequest
	var verification *entities.ProofVerification
	err = o.withWorker(ctx, func() error {
		var err error
		proofReq, err = o.fetchProof(ctx, adapter, txHash)
		if err != nil {
			return err
		}
		verification, err = adapter.VerifyProof(ctx, proofReq)
		return err
	})
	if err != nil {
		return err
	}

	if !verification.Valid {
		logger.Warn(ctx, "inclusion proof rejected",
			zap.String("transfer_id", transfer.ID.String()),
			zap.String("reason", verification.Reason),
		)
		return o.revert(ctx, transfer, entities.RevertReasonProofInvalid)
	}

	// The verified proof artifact is persisted with the transfer for audit.
	blob, err := json.Marshal(proofReq)
	if err != nil {
		return fmt.Errorf("encode proof for %s: %w", transfer.ID, err)
	}
	transfer.ProofBlob = blob
	return o.advance(ctx, transfer, entities.PhaseVerified)
}

func (o *BridgeOrchestrator) fetchProof(ctx context.Context, adapter blockchain.ChainAdapter, txHash string) (*entities.ProofVerificationRequest, error) {
	prover, ok := adapter.(blockchain.InclusionProver)
	if !ok {
		return nil, fmt.Errorf("%w: chain cannot produce inclusion proofs", domainerrors.ErrProofInvalid)
	}
	return prover.FetchInclusionProof(ctx, txHash)
}

// authorize consults the quorum. A denial terminates the transfer through
// the revert path; a transport error is surfaced for retry.
func (o *BridgeOrchestrator) authorize(ctx context.Context, transfer *entities.BridgeTransfer) error {
	approved, err := o.quorum.RequestAuthorization(ctx, transfer, repositories.AuthorizationEvidence{
		SourceTxHash:  transfer.SourceTxHash.String,
		Confirmations: transfer.Confirmations,
		ProofVerified: true,
	})
	if err != nil {
		return err
	}
	if !approved {
		return o.revert(ctx, transfer, entities.RevertReasonAuthorizationDenied)
	}
	return o.advance(ctx, transfer, entities.PhaseAuthorized)
}

// settleDestination mints wrapped value or unlocks pre-escrowed liquidity on
// the destination chain, per the transfer's direction
func (o *BridgeOrchestrator) settleDestination(ctx context.Context, transfer *entities.BridgeTransfer) error {
	adapter, err := o.registry.Resolve(transfer.DestChainID)
	if err != nil {
		return err
	}

	idemKey := "dest:" + transfer.ID.String()
	claimed, priorTxHash, err := o.idem.Claim(ctx, idemKey)
	if err != nil {
		return err
	}

	txHash := priorTxHash
	if claimed {
		submitErr := o.withWorker(ctx, func() error {
			result, err := adapter.SubmitTransfer(ctx, idemKey, &entities.TransferRequest{
				SourceChainID: transfer.SourceChainID,
				DestChainID:   transfer.DestChainID,
				SourceAddress: transfer.SourceAddress,
				DestAddress:   transfer.DestAddress,
				Asset:         transfer.Asset,
				Amount:        transfer.Amount,
			})
			if err != nil {
				return err
			}
			txHash = result.TxHash
			return nil
		})
		if submitErr != nil {
			if releaseErr := o.idem.Release(ctx, idemKey); releaseErr != nil {
				logger.Error(ctx, "failed to release destination claim",
					zap.String("transfer_id", transfer.ID.String()), zap.Error(releaseErr))
			}
			return submitErr
		}
		if err := o.idem.Complete(ctx, idemKey, txHash); err != nil {
			logger.Error(ctx, "failed to record destination result",
				zap.String("transfer_id", transfer.ID.String()), zap.Error(err))
		}
	} else if txHash == "" {
		return fmt.Errorf("%w: destination submission in flight for %s", domainerrors.ErrInvalidPhase, transfer.ID)
	}

	transfer.DestTxHash = null.StringFrom(txHash)
	return o.advance(ctx, transfer, entities.PhaseMinted)
}

// complete marks the transfer done and feeds its outcome back into the
// detector and limiter so future heuristics stay accurate
func (o *BridgeOrchestrator) complete(ctx context.Context, transfer *entities.BridgeTransfer) error {
	if err := o.advance(ctx, transfer, entities.PhaseCompleted); err != nil {
		return err
	}

	o.detector.RecordWithdrawal(transfer.SourceAddress, transfer.Amount, transfer.SourceBlock)
	o.detector.RecordDeposit(transfer.DestAddress, transfer.Amount, o.lookupDestBlock(ctx, transfer))
	o.limiter.RecordTransfer(transfer.SourceAddress, transfer.SourceChainID)

	logger.Info(ctx, "transfer completed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("direction", string(transfer.Direction)),
		zap.String("dest_tx_hash", transfer.DestTxHash.String),
	)
	return nil
}

// lookupDestBlock reads the block the destination settlement landed in and
// feeds the per-chain block watermark. Best effort: an unknown block is
// recorded as 0, which the same-block heuristic ignores.
func (o *BridgeOrchestrator) lookupDestBlock(ctx context.Context, transfer *entities.BridgeTransfer) int64 {
	adapter, err := o.registry.Resolve(transfer.DestChainID)
	if err != nil {
		return 0
	}
	var status *entities.TransferStatus
	err = o.withWorker(ctx, func() error {
		var err error
		status, err = adapter.GetTransferStatus(ctx, transfer.DestTxHash.String)
		return err
	})
	if err != nil {
		logger.Warn(ctx, "destination block lookup failed",
			zap.String("transfer_id", transfer.ID.String()), zap.Error(err))
		return 0
	}
	o.observeBlock(transfer.DestChainID, status.BlockNumber)
	return status.BlockNumber
}

// revert terminates a post-lock transfer and releases the source escrow.
// The unlock is issued before the phase flips so a crash between the two is
// retried by the sweep; the idempotency key guarantees it executes at most
// once on chain.
func (o *BridgeOrchestrator) revert(ctx context.Context, transfer *entities.BridgeTransfer, reason entities.RevertReason) error {
	if !transfer.UnlockTxHash.Valid && transfer.SourceTxHash.Valid {
		unlockHash, err := o.unlockSource(ctx, transfer)
		if err != nil {
			return fmt.Errorf("revert of %s: %w", transfer.ID, err)
		}
		transfer.UnlockTxHash = null.StringFrom(unlockHash)
	}

	transfer.RevertReason = null.StringFrom(string(reason))
	if err := o.advance(ctx, transfer, entities.PhaseReverted); err != nil {
		return err
	}

	logger.Warn(ctx, "transfer reverted",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("reason", string(reason)),
		zap.String("unlock_tx_hash", transfer.UnlockTxHash.String),
	)
	return nil
}

// unlockSource returns escrowed funds to the source address, exactly once
func (o *BridgeOrchestrator) unlockSource(ctx context.Context, transfer *entities.BridgeTransfer) (string, error) {
	adapter, err := o.registry.Resolve(transfer.SourceChainID)
	if err != nil {
		return "", err
	}

	idemKey := "unlock:" + transfer.ID.String()
	claimed, priorTxHash, err := o.idem.Claim(ctx, idemKey)
	if err != nil {
		return "", err
	}
	if !claimed {
		if priorTxHash != "" {
			return priorTxHash, nil
		}
		return "", fmt.Errorf("unlock in flight for %s", transfer.ID)
	}

	var txHash string
	submitErr := o.withWorker(ctx, func() error {
		// The unlock reverses the escrow: funds flow back to the source
		// address on the source chain.
		result, err := adapter.SubmitTransfer(ctx, idemKey, &entities.TransferRequest{
			SourceChainID: transfer.SourceChainID,
			DestChainID:   transfer.SourceChainID,
			SourceAddress: transfer.DestAddress,
			DestAddress:   transfer.SourceAddress,
			Asset:         transfer.Asset,
			Amount:        transfer.Amount,
		})
		if err != nil {
			return err
		}
		txHash = result.TxHash
		return nil
	})
	if submitErr != nil {
		if releaseErr := o.idem.Release(ctx, idemKey); releaseErr != nil {
			logger.Error(ctx, "failed to release unlock claim",
				zap.String("transfer_id", transfer.ID.String()), zap.Error(releaseErr))
		}
		return "", submitErr
	}
	if err := o.idem.Complete(ctx, idemKey, txHash); err != nil {
		logger.Error(ctx, "failed to record unlock result",
			zap.String("transfer_id", transfer.ID.String()), zap.Error(err))
	}
	return txHash, nil
}

// Cancel aborts a transfer before funds are locked. Once Locked, cancellation
// must go through the revert path via the sweep, never directly.
func (o *BridgeOrchestrator) Cancel(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error) {
	transfer, err := o.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Phase != entities.PhaseRequested && transfer.Phase != entities.PhaseAdmitted {
		return nil, fmt.Errorf("%w: cannot cancel in phase %s", domainerrors.ErrInvalidPhase, transfer.Phase)
	}

	o.reject(ctx, transfer, entities.RejectReasonCancelled)
	return transfer, nil
}

// GetTransfer returns a transfer by id
func (o *BridgeOrchestrator) GetTransfer(ctx context.Context, id uuid.UUID) (*entities.BridgeTransfer, error) {
	return o.transfers.GetByID(ctx, id)
}

// ResumePending restarts processing for transfers interrupted mid-protocol,
// typically after a restart. Requested transfers are left for the sweep;
// they were never admitted.
func (o *BridgeOrchestrator) ResumePending(ctx context.Context) (int, error) {
	pending, err := o.transfers.ListPending(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, transfer := range pending {
		if transfer.Phase == entities.PhaseRequested {
			continue
		}
		id := transfer.ID
		resumed++
		go func() {
			if err := o.Process(context.WithoutCancel(ctx), id); err != nil {
				logger.Error(ctx, "resumed transfer failed",
					zap.String("transfer_id", id.String()), zap.Error(err))
			}
		}()
	}
	if resumed > 0 {
		logger.Info(ctx, "pending transfers resumed", zap.Int("count", resumed))
	}
	return resumed, nil
}

// SweepExpired reverts or rejects transfers whose expiry passed. Pre-lock
// transfers are rejected with an expiry-tagged reason (no funds moved);
// post-lock transfers go through the revert path so the source-side unlock
// is guaranteed.
func (o *BridgeOrchestrator) SweepExpired(ctx context.Context) (int, error) {
	expired, err := o.transfers.ListExpired(ctx, o.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, transfer := range expired {
		switch transfer.Phase {
		case entities.PhaseRequested, entities.PhaseAdmitted:
			o.reject(ctx, transfer, entities.RejectReasonExpired)
			swept++
		default:
			if err := o.revert(ctx, transfer, entities.RevertReasonExpired); err != nil {
				logger.Error(ctx, "sweep failed to revert transfer",
					zap.String("transfer_id", transfer.ID.String()), zap.Error(err))
				continue
			}
			swept++
		}
	}
	if swept > 0 {
		logger.Info(ctx, "expired transfers swept", zap.Int("count", swept))
	}
	return swept, nil
}

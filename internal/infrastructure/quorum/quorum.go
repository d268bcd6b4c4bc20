package quorum

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"chain-bridge.backend/internal/domain/entities"
	"chain-bridge.backend/internal/domain/repositories"
	"chain-bridge.backend/pkg/logger"
)

// Approver is one member of the validator set. The signing key lives with the
// approver; the bridge only ever sees signatures.
type Approver interface {
	Address() string
	// Approve signs the authorization digest, or returns an error to decline.
	Approve(ctx context.Context, digest []byte) ([]byte, error)
}

// SignatureQuorum collects M-of-N secp256k1 approvals over a digest binding
// the transfer identity to its on-chain evidence. Destination-side mutation
// is gated on this approval; there is no bypass path.
type SignatureQuorum struct {
	threshold int
	approvers []Approver
}

// NewSignatureQuorum builds a quorum over the given approver set
func NewSignatureQuorum(threshold int, approvers []Approver) (*SignatureQuorum, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("quorum threshold must be at least 1, got %d", threshold)
	}
	if len(approvers) < threshold {
		return nil, fmt.Errorf("approver set of %d cannot meet threshold %d", len(approvers), threshold)
	}
	return &SignatureQuorum{threshold: threshold, approvers: approvers}, nil
}

// AuthorizationDigest binds the transfer id, source tx, amount, and
// destination chain so an approval cannot be replayed for another transfer
func AuthorizationDigest(transfer *entities.BridgeTransfer, sourceTxHash string) []byte {
	payload := fmt.Sprintf("bridge-auth|%s|%s|%s|%s",
		transfer.ID, sourceTxHash, transfer.Amount.String(), transfer.DestChainID)
	return accounts.TextHash([]byte(payload))
}

// RequestAuthorization fans the digest out to every approver and counts
// distinct valid signatures. Unverified proof evidence is denied without
// consulting the quorum.
func (q *SignatureQuorum) RequestAuthorization(ctx context.Context, transfer *entities.BridgeTransfer, evidence repositories.AuthorizationEvidence) (bool, error) {
	if !evidence.ProofVerified {
		logger.Warn(ctx, "authorization requested without verified proof",
			zap.String("transfer_id", transfer.ID.String()))
		return false, nil
	}

	digest := AuthorizationDigest(transfer, evidence.SourceTxHash)

	type vote struct {
		approver string
		sig      []byte
		err      error
	}

	var wg sync.WaitGroup
	votes := make([]vote, len(q.approvers))
	for i, approver := range q.approvers {
		wg.Add(1)
		go func(i int, approver Approver) {
			defer wg.Done()
			sig, err := approver.Approve(ctx, digest)
			votes[i] = vote{approver: approver.Address(), sig: sig, err: err}
		}(i, approver)
	}
	wg.Wait()

	seen := make(map[common.Address]bool)
	valid, errored := 0, 0
	for _, v := range votes {
		if v.err != nil {
			errored++
			logger.Warn(ctx, "approver declined or failed",
				zap.String("transfer_id", transfer.ID.String()),
				zap.String("approver", v.approver),
				zap.Error(v.err),
			)
			continue
		}
		addr, ok := recoverSigner(digest, v.sig)
		if !ok || addr != common.HexToAddress(v.approver) || seen[addr] {
			continue
		}
		seen[addr] = true
		valid++
	}

	if valid >= q.threshold {
		logger.Info(ctx, "quorum reached",
			zap.String("transfer_id", transfer.ID.String()),
			zap.Int("approvals", valid),
			zap.Int("threshold", q.threshold),
		)
		return true, nil
	}

	// If enough approvers errored that the outcome is indeterminate, surface
	// an error so the caller can retry instead of reverting the transfer.
	if valid+errored >= q.threshold {
		return false, fmt.Errorf("quorum indeterminate: %d valid, %d unreachable, threshold %d", valid, errored, q.threshold)
	}
	return false, nil
}

func recoverSigner(digest, sig []byte) (common.Address, bool) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, false
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}

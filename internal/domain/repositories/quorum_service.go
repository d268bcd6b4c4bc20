package repositories

import (
	"context"

	"chain-bridge.backend/internal/domain/entities"
)

// AuthorizationEvidence is the material the quorum signs off on
type AuthorizationEvidence struct {
	SourceTxHash  string
	Confirmations int64
	ProofVerified bool
}

// QuorumService is the external multi-party authorization collaborator. The
// validator set behind it is out of scope; no destination-side mutation may
// happen without its approval.
type QuorumService interface {
	RequestAuthorization(ctx context.Context, transfer *entities.BridgeTransfer, evidence AuthorizationEvidence) (approved bool, err error)
}

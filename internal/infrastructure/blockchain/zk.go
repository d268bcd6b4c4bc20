package blockchain

import (
	"sync"

	"chain-bridge.backend/internal/domain/entities"
)

// ZKVerifier verifies a zero-knowledge proof for one circuit
type ZKVerifier interface {
	Verify(proof, publicInputs []byte) (bool, error)
}

// ZKVerifierRegistry resolves verifiers by the circuit id embedded in the
// proof envelope. An unknown circuit id always fails verification; proofs
// are never valid by default.
type ZKVerifierRegistry struct {
	verifiers map[string]ZKVerifier
	mu        sync.RWMutex
}

// NewZKVerifierRegistry creates an empty registry
func NewZKVerifierRegistry() *ZKVerifierRegistry {
	return &ZKVerifierRegistry{verifiers: make(map[string]ZKVerifier)}
}

// Register adds a verifier for a circuit id
func (r *ZKVerifierRegistry) Register(circuitID string, v ZKVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[circuitID] = v
}

// Verify dispatches a ZK proof to its circuit's verifier
func (r *ZKVerifierRegistry) Verify(p *entities.ZKProof) *entities.ProofVerification {
	if p == nil || p.CircuitID == "" {
		return &entities.ProofVerification{Valid: false, Reason: "missing circuit id"}
	}

	r.mu.RLock()
	v, ok := r.verifiers[p.CircuitID]
	r.mu.RUnlock()
	if !ok {
		return &entities.ProofVerification{Valid: false, Reason: "unknown circuit: " + p.CircuitID}
	}

	valid, err := v.Verify(p.Proof, p.PublicInputs)
	if err != nil {
		return &entities.ProofVerification{Valid: false, Reason: err.Error()}
	}
	if !valid {
		return &entities.ProofVerification{Valid: false, Reason: "proof rejected by circuit verifier"}
	}
	return &entities.ProofVerification{Valid: true}
}

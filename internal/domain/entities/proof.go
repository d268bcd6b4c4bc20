package entities

// ProofKind tags the variant of a ProofVerificationRequest
type ProofKind string

const (
	ProofKindMerkle    ProofKind = "MERKLE"
	ProofKindZK        ProofKind = "ZK"
	ProofKindSignature ProofKind = "SIGNATURE"
)

// MerkleNode is one step of an ordered sibling path. Left reports whether the
// sibling hash sits on the left of the running hash when folding upward.
type MerkleNode struct {
	Hash []byte `json:"hash"`
	Left bool   `json:"left"`
}

// MerkleProof proves inclusion of a leaf under an expected root
type MerkleProof struct {
	LeafHash     []byte       `json:"leafHash"`
	Siblings     []MerkleNode `json:"siblings"`
	ExpectedRoot []byte       `json:"expectedRoot"`
}

// ZKProof carries an opaque proof and its public inputs. The circuit id
// selects the verifier.
type ZKProof struct {
	CircuitID    string `json:"circuitId"`
	Proof        []byte `json:"proof"`
	PublicInputs []byte `json:"publicInputs"`
}

// SignatureProof claims that Signer produced Signature over Message under the
// chain's signature scheme.
type SignatureProof struct {
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
	Signer    string `json:"signer"`
}

// ProofVerificationRequest is a tagged union over the three proof kinds.
// Exactly one variant is set per request; adapters dispatch on Kind.
type ProofVerificationRequest struct {
	Kind      ProofKind       `json:"kind"`
	Merkle    *MerkleProof    `json:"merkle,omitempty"`
	ZK        *ZKProof        `json:"zk,omitempty"`
	Signature *SignatureProof `json:"signature,omitempty"`
}

// ProofVerification is the outcome of verifying a proof
type ProofVerification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

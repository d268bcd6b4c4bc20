package blockchain

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"chain-bridge.backend/internal/domain/entities"
)

// hashFunc is the node-combining hash used when folding a merkle path
type hashFunc func(data ...[]byte) []byte

func keccakHash(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

func doubleSHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	first := h.Sum(nil)
	second := sha256.Sum256(first)
	return second[:]
}

// foldMerkle recomputes the root by folding the ordered sibling path against
// the leaf hash.
func foldMerkle(hash hashFunc, leaf []byte, siblings []entities.MerkleNode) []byte {
	acc := leaf
	for _, node := range siblings {
		if node.Left {
			acc = hash(node.Hash, acc)
		} else {
			acc = hash(acc, node.Hash)
		}
	}
	return acc
}

// rootsEqual compares a recomputed root against the expected one in constant
// time.
func rootsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// verifyMerkleProof checks a merkle variant under the given hash function
func verifyMerkleProof(hash hashFunc, p *entities.MerkleProof) *entities.ProofVerification {
	if p == nil || len(p.LeafHash) == 0 || len(p.ExpectedRoot) == 0 {
		return &entities.ProofVerification{Valid: false, Reason: "missing leaf or root"}
	}
	root := foldMerkle(hash, p.LeafHash, p.Siblings)
	if !rootsEqual(root, p.ExpectedRoot) {
		return &entities.ProofVerification{Valid: false, Reason: "root mismatch"}
	}
	return &entities.ProofVerification{Valid: true}
}

// buildMerkleProof constructs the sibling path for target inside leaves,
// building a binary tree where an odd node is paired with itself. Returns
// the proof with the computed root as expected root.
func buildMerkleProof(hash hashFunc, leaves [][]byte, target []byte) (*entities.MerkleProof, error) {
	idx := -1
	for i, l := range leaves {
		if bytes.Equal(l, target) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("target leaf not present in block")
	}

	proof := &entities.MerkleProof{LeafHash: target}
	level := make([][]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		sibIdx := idx ^ 1
		proof.Siblings = append(proof.Siblings, entities.MerkleNode{
			Hash: level[sibIdx],
			Left: sibIdx < idx,
		})

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hash(level[i], level[i+1]))
		}
		level = next
		idx /= 2
	}

	proof.ExpectedRoot = level[0]
	return proof, nil
}

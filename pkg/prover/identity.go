// Copyright 2025 Worldtree Labs

package prover

import "math/big"

// Identity is a single insertion into the merkle tree: the commitment that
// becomes the new leaf value and the inclusion proof for the leaf position it
// is inserted at. The merkle proof length must equal the tree depth; the
// identity manager validates that before a batch reaches the prover.
type Identity struct {
	Commitment  *big.Int
	MerkleProof []*big.Int
}

// NewIdentity builds an identity insertion from its commitment and proof.
func NewIdentity(commitment *big.Int, merkleProof []*big.Int) Identity {
	return Identity{Commitment: commitment, MerkleProof: merkleProof}
}

// Copyright 2025 Worldtree Labs

package prover

import (
	"encoding/binary"
	"math/big"

	"github.com/iden3/go-iden3-crypto/keccak256"
)

// ComputeInputHash computes the public input hash shared by the coordinator,
// the prover and the on-chain verifier.
//
// The hash is the keccak256 digest of the batch inputs arranged as follows:
//
//	StartIndex || PreRoot || PostRoot || IdComms[0] || ... || IdComms[batchSize-1]
//	  32 bits  || 256 bits|| 256 bits ||  256 bits  || ... ||      256 bits
//
// All values are big-endian (network ordering) so that the on-chain verifier
// does not have to byte-swap. The layout must match the prover byte for byte;
// any deviation makes every proof unverifiable.
func ComputeInputHash(startIndex uint32, preRoot, postRoot *big.Int, identityCommitments []*big.Int) *big.Int {
	data := make([]byte, 0, 4+32+32+32*len(identityCommitments))

	var index [4]byte
	binary.BigEndian.PutUint32(index[:], startIndex)
	data = append(data, index[:]...)
	data = append(data, fieldBytes(preRoot)...)
	data = append(data, fieldBytes(postRoot)...)
	for _, commitment := range identityCommitments {
		data = append(data, fieldBytes(commitment)...)
	}

	return new(big.Int).SetBytes(keccak256.Hash(data))
}

// fieldBytes returns the 32-byte big-endian representation of a field element.
func fieldBytes(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}

// Copyright 2025 Worldtree Labs

package prover

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Proof is a Groth16 proof term as returned by the prover: eight field
// elements in a fixed order. The same eight values, in the same order, form
// the uint256[8] argument of the registration calldata.
type Proof [8]*big.Int

// Points returns the proof in calldata shape.
func (p *Proof) Points() [8]*big.Int {
	return *p
}

// MarshalJSON renders the proof as a flat array of eight hex field elements.
func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeFields(p[:]))
}

// UnmarshalJSON parses the prover's wire format, rejecting anything that is
// not exactly eight field elements.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(p) {
		return fmt.Errorf("proof must contain exactly %d field elements, got %d", len(p), len(raw))
	}
	values, err := decodeFields(raw)
	if err != nil {
		return err
	}
	copy(p[:], values)
	return nil
}

// ProofInput is the full request payload sent to the prover. Its JSON form
// uses camelCase keys and hex-encoded field elements; startIndex is a plain
// JSON number.
type ProofInput struct {
	InputHash           *big.Int
	StartIndex          uint32
	PreRoot             *big.Int
	PostRoot            *big.Int
	IdentityCommitments []*big.Int
	MerkleProofs        [][]*big.Int
}

type proofInputWire struct {
	InputHash           string     `json:"inputHash"`
	StartIndex          uint32     `json:"startIndex"`
	PreRoot             string     `json:"preRoot"`
	PostRoot            string     `json:"postRoot"`
	IdentityCommitments []string   `json:"identityCommitments"`
	MerkleProofs        [][]string `json:"merkleProofs"`
}

func (p ProofInput) MarshalJSON() ([]byte, error) {
	wire := proofInputWire{
		InputHash:           encodeField(p.InputHash),
		StartIndex:          p.StartIndex,
		PreRoot:             encodeField(p.PreRoot),
		PostRoot:            encodeField(p.PostRoot),
		IdentityCommitments: encodeFields(p.IdentityCommitments),
		MerkleProofs:        make([][]string, len(p.MerkleProofs)),
	}
	for i, proof := range p.MerkleProofs {
		wire.MerkleProofs[i] = encodeFields(proof)
	}
	return json.Marshal(wire)
}

func (p *ProofInput) UnmarshalJSON(data []byte) error {
	var wire proofInputWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	inputHash, err := decodeField(wire.InputHash)
	if err != nil {
		return err
	}
	preRoot, err := decodeField(wire.PreRoot)
	if err != nil {
		return err
	}
	postRoot, err := decodeField(wire.PostRoot)
	if err != nil {
		return err
	}
	commitments, err := decodeFields(wire.IdentityCommitments)
	if err != nil {
		return err
	}
	merkleProofs := make([][]*big.Int, len(wire.MerkleProofs))
	for i, proof := range wire.MerkleProofs {
		if merkleProofs[i], err = decodeFields(proof); err != nil {
			return err
		}
	}
	p.InputHash = inputHash
	p.StartIndex = wire.StartIndex
	p.PreRoot = preRoot
	p.PostRoot = postRoot
	p.IdentityCommitments = commitments
	p.MerkleProofs = merkleProofs
	return nil
}

// Copyright 2025 Worldtree Labs

package prover

import (
	"math/big"
	"testing"
)

func mustField(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := decodeField(s)
	if err != nil {
		t.Fatalf("failed to parse field element %q: %v", s, err)
	}
	return v
}

func TestComputeInputHash_KnownVector(t *testing.T) {
	preRoot := mustField(t, "0x1b7201da72494f1e28717ad1a52eb469f95892f957713533de6175e5da190af2")
	postRoot := mustField(t, "0x7b248024e18c30f6c8a6c63dad3748d72cd13d1197bfd79a1323216d6ac6e99")
	commitments := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}

	expected := mustField(t, "0xa2d9c54a0aecf0f2aeb502c4a14ac45209d636986294c5e3168a54a7f143b1d8")

	hash := ComputeInputHash(0, preRoot, postRoot, commitments)
	if hash.Cmp(expected) != 0 {
		t.Errorf("input hash mismatch: got %#x, want %#x", hash, expected)
	}
}

func TestComputeInputHash_IsPure(t *testing.T) {
	preRoot := big.NewInt(7)
	postRoot := big.NewInt(9)
	commitments := []*big.Int{big.NewInt(1), big.NewInt(2)}

	first := ComputeInputHash(3, preRoot, postRoot, commitments)
	second := ComputeInputHash(3, preRoot, postRoot, commitments)
	if first.Cmp(second) != 0 {
		t.Errorf("equal inputs produced different hashes: %#x vs %#x", first, second)
	}
}

func TestComputeInputHash_StartIndexChangesDigest(t *testing.T) {
	preRoot := big.NewInt(7)
	postRoot := big.NewInt(9)
	commitments := []*big.Int{big.NewInt(1)}

	base := ComputeInputHash(0, preRoot, postRoot, commitments)
	shifted := ComputeInputHash(1, preRoot, postRoot, commitments)
	if base.Cmp(shifted) == 0 {
		t.Error("start index is not part of the digest")
	}
}

func TestFieldBytes_Width(t *testing.T) {
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), mustField(t, "0x1b7201da72494f1e28717ad1a52eb469f95892f957713533de6175e5da190af2")} {
		if got := len(fieldBytes(v)); got != 32 {
			t.Errorf("field element %#x serialized to %d bytes, want 32", v, got)
		}
	}
}

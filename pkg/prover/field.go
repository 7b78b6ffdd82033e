// Copyright 2025 Worldtree Labs
//
// Hex codec for field elements on the prover wire.

package prover

import (
	"fmt"
	"math/big"
	"strings"
)

// encodeField renders a field element the way the prover expects it: a
// 0x-prefixed lowercase hex string with no leading-zero padding. Zero encodes
// as "0x0".
func encodeField(v *big.Int) string {
	return "0x" + v.Text(16)
}

// decodeField parses a 0x-prefixed hex field element.
func decodeField(s string) (*big.Int, error) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return nil, fmt.Errorf("field element %q is missing the 0x prefix", s)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("field element %q is not valid hex", s)
	}
	return v, nil
}

func encodeFields(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = encodeField(v)
	}
	return out
}

func decodeFields(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, err := decodeField(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

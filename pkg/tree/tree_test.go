// Copyright 2025 Worldtree Labs

package tree

import (
	"errors"
	"math/big"
	"testing"
)

func update(leafIndex uint64, element, postRoot int64) Update {
	return Update{
		LeafIndex: leafIndex,
		Element:   big.NewInt(element),
		PostRoot:  big.NewInt(postRoot),
	}
}

func TestApplyUpdatesUpTo_AdvancesThroughChain(t *testing.T) {
	v := NewVersion(big.NewInt(100))
	v.AppendUpdates(update(0, 1, 101), update(1, 2, 102), update(2, 3, 103))

	applied, err := v.ApplyUpdatesUpTo(big.NewInt(102))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("expected 2 updates applied, got %d", applied)
	}
	if v.Root().Cmp(big.NewInt(102)) != 0 {
		t.Errorf("root not advanced: %v", v.Root())
	}
	if v.PendingUpdates() != 1 {
		t.Errorf("expected 1 pending update, got %d", v.PendingUpdates())
	}
}

func TestApplyUpdatesUpTo_IsMonotonic(t *testing.T) {
	v := NewVersion(big.NewInt(100))
	v.AppendUpdates(update(0, 1, 101), update(1, 2, 102))

	if _, err := v.ApplyUpdatesUpTo(big.NewInt(101)); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// The same root again no longer terminates any queued update.
	if _, err := v.ApplyUpdatesUpTo(big.NewInt(101)); !errors.Is(err, ErrRootNotSeen) {
		t.Errorf("re-applying a finalized root must fail, got %v", err)
	}

	if _, err := v.ApplyUpdatesUpTo(big.NewInt(102)); err != nil {
		t.Errorf("later root rejected after earlier apply: %v", err)
	}
}

func TestApplyUpdatesUpTo_UnknownRoot(t *testing.T) {
	v := NewVersion(big.NewInt(100))
	v.AppendUpdates(update(0, 1, 101))

	if _, err := v.ApplyUpdatesUpTo(big.NewInt(999)); !errors.Is(err, ErrRootNotSeen) {
		t.Errorf("unknown root must fail, got %v", err)
	}
	if v.Root().Cmp(big.NewInt(100)) != 0 {
		t.Errorf("failed apply must not move the root: %v", v.Root())
	}
}

func TestRoot_ReturnsCopy(t *testing.T) {
	v := NewVersion(big.NewInt(100))
	root := v.Root()
	root.SetInt64(7)
	if v.Root().Cmp(big.NewInt(100)) != 0 {
		t.Error("mutating a returned root leaked into the version")
	}
}

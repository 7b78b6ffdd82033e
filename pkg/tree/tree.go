// Copyright 2025 Worldtree Labs
//
// Canonical finalized view of the identity tree. The tree library proper
// (hashing, inclusion proofs) lives with the collaborators that build
// batches; this package keeps the versioned update log the finalization task
// advances through.

package tree

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrRootNotSeen is returned when ApplyUpdatesUpTo is asked for a root that
// no queued update produces. Applying past an unknown root would silently
// desynchronize the finalized view from the chain.
var ErrRootNotSeen = errors.New("root does not terminate any queued update chain")

// Update is one leaf insertion together with the root it produced.
type Update struct {
	LeafIndex uint64
	Element   *big.Int
	PostRoot  *big.Int
}

// Version is the canonical, finalized tree version. Updates are appended in
// root-chain order as batches are mined and applied as their roots finalize.
// It is internally synchronized; the finalization task is the only writer,
// but any task may read the current root.
type Version struct {
	mu      sync.Mutex
	root    *big.Int
	pending []Update
}

// NewVersion creates a version anchored at the given finalized root.
func NewVersion(root *big.Int) *Version {
	return &Version{root: new(big.Int).Set(root)}
}

// Root returns the most recently finalized root.
func (v *Version) Root() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.root)
}

// PendingUpdates returns the number of queued, not yet finalized updates.
func (v *Version) PendingUpdates() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// AppendUpdates queues updates whose roots extend the current chain. Callers
// append in the order the batches were mined.
func (v *Version) AppendUpdates(updates ...Update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, updates...)
}

// ApplyUpdatesUpTo advances the version through every queued update up to and
// including the first whose post root equals the given root, and returns the
// number of updates applied. The walk is monotonic: a root that no queued
// update produces (including one already applied) is an error.
func (v *Version) ApplyUpdatesUpTo(root *big.Int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	end := -1
	for i, update := range v.pending {
		if update.PostRoot.Cmp(root) == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, fmt.Errorf("%w: %#x", ErrRootNotSeen, root)
	}

	v.root = new(big.Int).Set(v.pending[end].PostRoot)
	v.pending = v.pending[end+1:]
	return end + 1, nil
}

// Copyright 2025 Worldtree Labs
//
// RootWatcher feeds the finalization task by polling the contract's latest
// root and emitting each new value onto the mined-roots channel.

package finalizer

import (
	"context"
	"math/big"
	"time"

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

// RootSource reads the contract's current root.
type RootSource interface {
	LatestRoot(ctx context.Context) (*big.Int, error)
}

// RootWatcher polls the contract for root changes. The channel is the
// backpressure point: when the finalization task falls behind, the watcher
// blocks instead of dropping roots.
type RootWatcher struct {
	source   RootSource
	interval time.Duration
	out      chan<- *big.Int
	lastSeen *big.Int
}

// NewRootWatcher builds a watcher that emits on out. The watcher is seeded
// with the root current at startup so it only emits changes.
func NewRootWatcher(source RootSource, interval time.Duration, initialRoot *big.Int, out chan<- *big.Int) *RootWatcher {
	return &RootWatcher{
		source:   source,
		interval: interval,
		out:      out,
		lastSeen: new(big.Int).Set(initialRoot),
	}
}

// Run polls until the context is cancelled, then closes the output channel so
// the finalization task terminates cleanly. Transient read failures are
// logged and retried on the next tick.
func (w *RootWatcher) Run(ctx context.Context) {
	defer close(w.out)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			root, err := w.source.LatestRoot(ctx)
			if err != nil {
				logging.Logger().Warn().Err(err).Msg("failed to read latest root")
				continue
			}
			if root.Cmp(w.lastSeen) == 0 {
				continue
			}
			w.lastSeen = new(big.Int).Set(root)
			select {
			case w.out <- root:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

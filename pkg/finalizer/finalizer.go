// Copyright 2025 Worldtree Labs
//
// FinalizeRoots consumes mined on-chain roots, waits for them to be
// finalized across chains, then advances the canonical tree version and the
// database record.

package finalizer

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

var finalizeRootSleepTime = 5 * time.Second

var (
	rootsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_roots_finalized_total",
		Help: "Number of mined roots observed as finalized across chains.",
	})
	finalizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coordinator_root_finalization_duration_seconds",
		Help:    "Time from receiving a mined root to observing its cross-chain finalization.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	})
)

// Database is the persistence surface the task needs.
type Database interface {
	MarkRootAsMined(ctx context.Context, root *big.Int) error
}

// IdentityManager is the contract surface the task needs.
type IdentityManager interface {
	IsRootMinedMultiChain(ctx context.Context, root *big.Int) (bool, error)
}

// TreeVersion is the canonical tree surface the task advances.
type TreeVersion interface {
	ApplyUpdatesUpTo(root *big.Int) (int, error)
}

// MinedRoots wraps the mined-roots receiver so a shared handle can be passed
// around while only one task actually consumes. The mutex exists for
// construction ergonomics, not to enable multi-consumer semantics; holding it
// for the task's whole lifetime is intentional.
type MinedRoots struct {
	mu sync.Mutex
	ch <-chan *big.Int
}

// NewMinedRoots wraps a receiver channel.
func NewMinedRoots(ch <-chan *big.Int) *MinedRoots {
	return &MinedRoots{ch: ch}
}

// FinalizeRoots is the long-running finalization task.
type FinalizeRoots struct {
	database        Database
	identityManager IdentityManager
	finalizedTree   TreeVersion
	minedRoots      *MinedRoots
}

// New constructs the task. It does not start running until Run is called.
func New(database Database, identityManager IdentityManager, finalizedTree TreeVersion, minedRoots *MinedRoots) *FinalizeRoots {
	return &FinalizeRoots{
		database:        database,
		identityManager: identityManager,
		finalizedTree:   finalizedTree,
		minedRoots:      minedRoots,
	}
}

// Run consumes mined roots until the channel closes or a non-recoverable
// error occurs. Roots are processed strictly in arrival order. A closed
// channel is a clean shutdown; a tree or database failure is not, and
// external supervision must decide what to do with it.
func (f *FinalizeRoots) Run(ctx context.Context) error {
	f.minedRoots.mu.Lock()
	defer f.minedRoots.mu.Unlock()

	for {
		select {
		case root, ok := <-f.minedRoots.ch:
			if !ok {
				logging.Logger().Warn().Msg("mined roots channel closed, terminating")
				return nil
			}
			if err := f.finalizeRoot(ctx, root); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// finalizeRoot polls until the root is finalized on every chain, then
// advances the canonical tree and marks the database record. There is no
// polling deadline: cross-chain finalization latency is unbounded from the
// coordinator's point of view.
func (f *FinalizeRoots) finalizeRoot(ctx context.Context, root *big.Int) error {
	logging.Logger().Info().Str("root", bigHex(root)).Msg("finalizing root")
	start := time.Now()

	for {
		finalized, err := f.identityManager.IsRootMinedMultiChain(ctx, root)
		if err != nil {
			return err
		}
		if finalized {
			break
		}

		select {
		case <-time.After(finalizeRootSleepTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	finalizationDuration.Observe(time.Since(start).Seconds())

	if _, err := f.finalizedTree.ApplyUpdatesUpTo(root); err != nil {
		return err
	}
	if err := f.database.MarkRootAsMined(ctx, root); err != nil {
		return err
	}

	rootsFinalized.Inc()
	logging.Logger().Info().Str("root", bigHex(root)).Msg("root finalized")
	return nil
}

func bigHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

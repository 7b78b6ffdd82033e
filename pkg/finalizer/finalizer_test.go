// Copyright 2025 Worldtree Labs

package finalizer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"
)

// fakeContract reports each root as unfinalized a configured number of times
// before flipping to finalized.
type fakeContract struct {
	mu        sync.Mutex
	deferrals map[string]int
	polls     map[string]int
	err       error
}

func newFakeContract(deferrals map[string]int) *fakeContract {
	return &fakeContract{deferrals: deferrals, polls: make(map[string]int)}
}

func (f *fakeContract) IsRootMinedMultiChain(ctx context.Context, root *big.Int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	key := root.String()
	f.polls[key]++
	if f.deferrals[key] > 0 {
		f.deferrals[key]--
		return false, nil
	}
	return true, nil
}

type fakeTree struct {
	mu      sync.Mutex
	applied []*big.Int
	err     error
}

func (f *fakeTree) ApplyUpdatesUpTo(root *big.Int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.applied = append(f.applied, new(big.Int).Set(root))
	return 1, nil
}

type fakeDatabase struct {
	mu     sync.Mutex
	marked []*big.Int
	err    error
}

func (f *fakeDatabase) MarkRootAsMined(ctx context.Context, root *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, new(big.Int).Set(root))
	return nil
}

func shortenSleep(t *testing.T) {
	t.Helper()
	previous := finalizeRootSleepTime
	finalizeRootSleepTime = time.Millisecond
	t.Cleanup(func() { finalizeRootSleepTime = previous })
}

func TestRun_FinalizesRootsInChannelOrder(t *testing.T) {
	shortenSleep(t)

	r1 := big.NewInt(101)
	r2 := big.NewInt(202)
	contract := newFakeContract(map[string]int{r1.String(): 1, r2.String(): 1})
	finalizedTree := &fakeTree{}
	db := &fakeDatabase{}

	ch := make(chan *big.Int, 2)
	ch <- r1
	ch <- r2
	close(ch)

	task := New(db, contract, finalizedTree, NewMinedRoots(ch))
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(finalizedTree.applied) != 2 || finalizedTree.applied[0].Cmp(r1) != 0 || finalizedTree.applied[1].Cmp(r2) != 0 {
		t.Errorf("tree updates out of order: %v", finalizedTree.applied)
	}
	if len(db.marked) != 2 || db.marked[0].Cmp(r1) != 0 || db.marked[1].Cmp(r2) != 0 {
		t.Errorf("database marks out of order: %v", db.marked)
	}
	// Each root was reported unfinalized once, so it must have been polled
	// at least twice.
	for _, root := range []*big.Int{r1, r2} {
		if contract.polls[root.String()] < 2 {
			t.Errorf("root %v polled only %d times", root, contract.polls[root.String()])
		}
	}
}

func TestRun_NeverMarksBeforeFinalized(t *testing.T) {
	shortenSleep(t)

	root := big.NewInt(77)
	contract := newFakeContract(map[string]int{root.String(): 3})
	finalizedTree := &fakeTree{}
	db := &fakeDatabase{}

	ch := make(chan *big.Int, 1)
	ch <- root
	close(ch)

	task := New(db, contract, finalizedTree, NewMinedRoots(ch))
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if contract.polls[root.String()] != 4 {
		t.Errorf("expected 4 polls (3 deferrals + success), got %d", contract.polls[root.String()])
	}
	if len(db.marked) != 1 {
		t.Fatalf("root was not marked exactly once: %v", db.marked)
	}
}

func TestRun_ChannelClosureTerminatesCleanly(t *testing.T) {
	ch := make(chan *big.Int)
	close(ch)

	task := New(&fakeDatabase{}, newFakeContract(nil), &fakeTree{}, NewMinedRoots(ch))

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("closed channel must terminate cleanly, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("task did not observe channel closure")
	}
}

func TestRun_TreeFailureTerminatesTask(t *testing.T) {
	shortenSleep(t)

	boom := errors.New("update chain broken")
	finalizedTree := &fakeTree{err: boom}

	ch := make(chan *big.Int, 1)
	ch <- big.NewInt(5)

	task := New(&fakeDatabase{}, newFakeContract(nil), finalizedTree, NewMinedRoots(ch))
	if err := task.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected the tree failure to propagate, got %v", err)
	}
}

func TestRun_DatabaseFailureTerminatesTask(t *testing.T) {
	shortenSleep(t)

	boom := errors.New("connection lost")
	db := &fakeDatabase{err: boom}

	ch := make(chan *big.Int, 1)
	ch <- big.NewInt(5)

	task := New(db, newFakeContract(nil), &fakeTree{}, NewMinedRoots(ch))
	if err := task.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected the database failure to propagate, got %v", err)
	}
}

func TestRun_FinalizationCheckFailureTerminatesTask(t *testing.T) {
	shortenSleep(t)

	contract := newFakeContract(nil)
	contract.err = errors.New("rpc unreachable")

	ch := make(chan *big.Int, 1)
	ch <- big.NewInt(5)

	task := New(&fakeDatabase{}, contract, &fakeTree{}, NewMinedRoots(ch))
	if err := task.Run(context.Background()); !errors.Is(err, contract.err) {
		t.Errorf("expected the rpc failure to propagate, got %v", err)
	}
}

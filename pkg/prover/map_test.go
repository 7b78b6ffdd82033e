// Copyright 2025 Worldtree Labs

package prover

import (
	"errors"
	"testing"
)

func mapProver(t *testing.T, batchSize int) *Prover {
	t.Helper()
	p, err := NewProver(Options{MtbProverURL: "http://localhost:3001", MtbProverTimeoutSecs: 30, BatchSize: batchSize})
	if err != nil {
		t.Fatalf("failed to construct prover: %v", err)
	}
	return p
}

func TestMap_GetExactSize(t *testing.T) {
	m, err := NewMap(mapProver(t, 10), mapProver(t, 50))
	if err != nil {
		t.Fatalf("failed to build map: %v", err)
	}

	p, err := m.Get(10)
	if err != nil {
		t.Fatalf("expected a prover for batch size 10: %v", err)
	}
	if p.BatchSize() != 10 {
		t.Errorf("wrong prover returned: batch size %d", p.BatchSize())
	}
}

func TestMap_GetMiss(t *testing.T) {
	m, err := NewMap(mapProver(t, 10))
	if err != nil {
		t.Fatalf("failed to build map: %v", err)
	}

	_, err = m.Get(11)
	var noProver NoProverForSizeError
	if !errors.As(err, &noProver) {
		t.Fatalf("expected NoProverForSizeError, got %v", err)
	}
	if int(noProver) != 11 {
		t.Errorf("error carries wrong batch size: %d", int(noProver))
	}
}

func TestMap_MaxBatchSize(t *testing.T) {
	m, err := NewMap(mapProver(t, 10), mapProver(t, 100), mapProver(t, 50))
	if err != nil {
		t.Fatalf("failed to build map: %v", err)
	}
	if got := m.MaxBatchSize(); got != 100 {
		t.Errorf("max batch size mismatch: got %d, want 100", got)
	}
}

func TestMap_EmptyMaxBatchSizeIsZero(t *testing.T) {
	m, err := NewMap()
	if err != nil {
		t.Fatalf("failed to build empty map: %v", err)
	}
	if got := m.MaxBatchSize(); got != 0 {
		t.Errorf("empty map max batch size: got %d, want 0", got)
	}
}

func TestMap_DuplicateBatchSize(t *testing.T) {
	if _, err := NewMap(mapProver(t, 10), mapProver(t, 10)); err == nil {
		t.Error("expected duplicate batch size to be rejected")
	}
}

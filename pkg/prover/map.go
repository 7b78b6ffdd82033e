// Copyright 2025 Worldtree Labs

package prover

import "fmt"

// Map is an immutable mapping from batch size to the prover configured for
// that size. It is built once at startup and safe for concurrent reads.
type Map struct {
	provers      map[int]*Prover
	maxBatchSize int
}

// NewMap builds a prover map. Each prover's batch size is its key; duplicate
// batch sizes are a configuration error.
func NewMap(provers ...*Prover) (*Map, error) {
	m := &Map{provers: make(map[int]*Prover, len(provers))}
	for _, p := range provers {
		if _, exists := m.provers[p.BatchSize()]; exists {
			return nil, fmt.Errorf("duplicate prover for batch size %d", p.BatchSize())
		}
		m.provers[p.BatchSize()] = p
		if p.BatchSize() > m.maxBatchSize {
			m.maxBatchSize = p.BatchSize()
		}
	}
	return m, nil
}

// Get returns the prover registered for exactly the given batch size.
func (m *Map) Get(batchSize int) (*Prover, error) {
	p, ok := m.provers[batchSize]
	if !ok {
		return nil, NoProverForSizeError(batchSize)
	}
	return p, nil
}

// MaxBatchSize returns the largest supported batch size, or zero for an
// empty map. Callers use it for admission control.
func (m *Map) MaxBatchSize() int {
	return m.maxBatchSize
}

// Len returns the number of registered provers.
func (m *Map) Len() int {
	return len(m.provers)
}
